package formstream

import (
	"context"
	"errors"
	"io"
	"sync"
)

const (
	chunkSize          = 32 * 1024
	defaultBranchDepth = 4
)

// Branch is one consumer side of a Tee. Each branch buffers at most depth
// chunks, so a slow branch holds back the source but never forces the whole
// payload into memory.
type Branch struct {
	chunks    chan []byte
	detached  chan struct{}
	closeOnce sync.Once
	// err is written by the pump before chunks is closed.
	err error
	cur []byte
}

// Read returns bytes in source order. After the source ends it returns
// io.EOF, or the source's error if it failed.
func (b *Branch) Read(p []byte) (int, error) {
	for len(b.cur) == 0 {
		chunk, ok := <-b.chunks
		if !ok {
			return 0, b.err
		}
		b.cur = chunk
	}
	n := copy(p, b.cur)
	b.cur = b.cur[n:]
	return n, nil
}

// Close detaches the branch. The pump stops delivering to it and keeps
// reading the source for the remaining branches.
func (b *Branch) Close() error {
	b.closeOnce.Do(func() { close(b.detached) })
	return nil
}

// Tee reads src exactly once and fans each chunk out to n branches. The
// source is read to its end even when every branch has been closed, so a
// part stream handed to Tee is always drained. Cancelling ctx stops the pump
// and fails every branch with ctx.Err().
func Tee(ctx context.Context, src io.Reader, n, depth int) []*Branch {
	if depth <= 0 {
		depth = defaultBranchDepth
	}
	branches := make([]*Branch, n)
	for i := range branches {
		branches[i] = &Branch{
			chunks:   make(chan []byte, depth),
			detached: make(chan struct{}),
		}
	}
	go pump(ctx, src, branches)
	return branches
}

func pump(ctx context.Context, src io.Reader, branches []*Branch) {
	err := io.EOF
	defer func() {
		for _, b := range branches {
			b.err = err
			close(b.chunks)
		}
	}()
	gone := make([]bool, len(branches))
	buf := make([]byte, chunkSize)
	for {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			return
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			// Branches only read chunks, so one copy is shared by all of them.
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			for i, b := range branches {
				if gone[i] {
					continue
				}
				select {
				case b.chunks <- chunk:
				case <-b.detached:
					gone[i] = true
				case <-ctx.Done():
					err = ctx.Err()
					return
				}
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				err = rerr
			}
			return
		}
	}
}

// Observed is the settled value of a stream observer. Observers never fail
// outward: a stream error is carried in Err with Data left at its zero value.
type Observed[T any] struct {
	Data T
	Err  error
}

// CountBytes reads r to its end on a new goroutine and reports how many
// bytes it carried.
func CountBytes(r io.Reader) <-chan Observed[int64] {
	return observe(func() (int64, error) {
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return 0, err
		}
		return n, nil
	})
}

// CollectBytes reads r to its end on a new goroutine and reports its
// concatenated contents.
func CollectBytes(r io.Reader) <-chan Observed[[]byte] {
	return observe(func() ([]byte, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return data, nil
	})
}

func observe[T any](fn func() (T, error)) <-chan Observed[T] {
	ch := make(chan Observed[T], 1)
	go func() {
		v, err := fn()
		ch <- Observed[T]{Data: v, Err: err}
	}()
	return ch
}
