package formstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestUpload_FieldAndFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	data := payload(1024)
	c := NewCoordinator[[]byte](Config{}, nil, quietLogger())

	out := c.Upload(context.Background(), script(
		field("title", "Trip"),
		file("photo", "a.png", data),
		finish(),
	))

	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, []FieldEntry{{Name: "title", Value: "Trip"}}, out.Result.Fields)
	require.Len(t, out.Result.Files, 1)
	f := out.Result.Files[0]
	assert.Equal(t, "photo", f.FieldName)
	assert.Equal(t, "a.png", f.FileName)
	assert.Equal(t, int64(1024), f.SizeInBytes)
	assert.Equal(t, data, f.Data)
	assert.NoError(t, f.Err)
}

func TestUpload_FilesKeepArrivalOrder(t *testing.T) {
	const k = 6
	// Later parts finish first.
	handler := func(ctx context.Context, p FilePart) (string, error) {
		body, err := io.ReadAll(p.Stream)
		if err != nil {
			return "", err
		}
		var idx int
		fmt.Sscanf(p.FileName, "f%d.bin", &idx)
		time.Sleep(time.Duration(k-idx) * 15 * time.Millisecond)
		return string(body), nil
	}
	c := NewCoordinator[string](Config{}, handler, quietLogger())

	events := make([]Event, 0, k+1)
	for i := 0; i < k; i++ {
		events = append(events, file(fmt.Sprintf("file%d", i), fmt.Sprintf("f%d.bin", i), []byte(fmt.Sprintf("body-%d", i))))
	}
	out := c.Upload(context.Background(), script(append(events, finish())...))

	require.True(t, out.OK())
	require.Len(t, out.Result.Files, k)
	for i, f := range out.Result.Files {
		assert.Equal(t, fmt.Sprintf("file%d", i), f.FieldName)
		assert.Equal(t, fmt.Sprintf("f%d.bin", i), f.FileName)
		assert.Equal(t, fmt.Sprintf("body-%d", i), f.Data)
	}
}

func TestUpload_FilesKeepArrivalOrderWithRandomLatency(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		k := 3 + rng.Intn(6)
		delays := make(map[string]time.Duration, k)
		events := make([]Event, 0, k+1)
		for i := 0; i < k; i++ {
			name := fmt.Sprintf("r%d-%d.bin", round, i)
			delays[name] = time.Duration(rng.Intn(20)) * time.Millisecond
			events = append(events, file("upload", name, payload(100+i)))
		}
		var mu sync.Mutex
		handler := func(_ context.Context, p FilePart) (int64, error) {
			mu.Lock()
			d := delays[p.FileName]
			mu.Unlock()
			time.Sleep(d)
			return io.Copy(io.Discard, p.Stream)
		}

		out := NewCoordinator[int64](Config{}, handler, quietLogger()).
			Upload(context.Background(), script(append(events, finish())...))

		require.True(t, out.OK())
		require.Len(t, out.Result.Files, k)
		for i, f := range out.Result.Files {
			assert.Equal(t, fmt.Sprintf("r%d-%d.bin", round, i), f.FileName)
			assert.Equal(t, int64(100+i), f.Data)
			assert.Equal(t, int64(100+i), f.SizeInBytes)
		}
	}
}

func TestUpload_OneFailingHandlerIsIsolated(t *testing.T) {
	boom := errors.New("upload rejected")
	handler := func(_ context.Context, p FilePart) ([]byte, error) {
		if p.FileName == "bad.bin" {
			return nil, boom
		}
		return io.ReadAll(p.Stream)
	}
	c := NewCoordinator[[]byte](Config{}, handler, quietLogger())

	out := c.Upload(context.Background(), script(
		file("a", "one.bin", payload(10)),
		file("b", "", payload(10)),
		file("c", "bad.bin", payload(10)),
		file("d", "two.bin", payload(10)),
		finish(),
	))

	require.True(t, out.OK())
	require.Len(t, out.Result.Files, 3)
	failed := 0
	for _, f := range out.Result.Files {
		if f.Failed() {
			failed++
			assert.Equal(t, "bad.bin", f.FileName)
			assert.ErrorIs(t, f.Err, boom)
			assert.Nil(t, f.Data)
			continue
		}
		assert.NotNil(t, f.Data)
	}
	assert.Equal(t, 1, failed)
}

func TestUpload_BlankFileNameIsSkipped(t *testing.T) {
	skipped := &eofReader{r: bytes.NewReader(payload(4096))}
	c := NewCoordinator[[]byte](Config{}, nil, quietLogger())

	out := c.Upload(context.Background(), script(
		fileFrom("avatar", "", skipped),
		file("photo", "b.png", payload(32)),
		field("caption", "after"),
		finish(),
	))

	require.True(t, out.OK())
	require.Len(t, out.Result.Files, 1)
	assert.Equal(t, "b.png", out.Result.Files[0].FileName)
	value, ok := out.Result.Field("caption")
	assert.True(t, ok)
	assert.Equal(t, "after", value)
	assert.True(t, skipped.reached.Load(), "skipped part was not drained")
}

func TestUpload_SettlesOnceWhenFinishAndErrorRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		var settled atomic.Int32
		cfg := Config{OnSettle: func(Settlement) { settled.Add(1) }}
		c := NewCoordinator[[]byte](cfg, nil, quietLogger())

		out := c.Upload(context.Background(), script(
			file("a", "a.bin", payload(8)),
			finish(),
			Event{Kind: EventError, Err: errors.New("socket closed")},
		))

		if out.OK() {
			assert.Nil(t, out.Err)
			assert.Len(t, out.Result.Files, 1)
		} else {
			assert.Nil(t, out.Result)
			assert.Equal(t, CodeRequest, out.Err.Code)
		}
		// Let any straggling work finish before counting.
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, int32(1), settled.Load())
	}
}

func TestUpload_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	handler := func(ctx context.Context, _ FilePart) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := NewCoordinator[[]byte](Config{Timeout: 50 * time.Millisecond}, handler, quietLogger())

	start := time.Now()
	out := c.Upload(context.Background(), script(file("a", "slow.bin", payload(8)), finish()))
	elapsed := time.Since(start)

	require.False(t, out.OK())
	assert.Equal(t, CodeTimeout, out.Err.Code)
	assert.ErrorIs(t, out.Err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestUpload_RequireFile(t *testing.T) {
	events := func() Tokenizer {
		return script(field("title", "Trip"), file("photo", "", payload(4)), finish())
	}

	strict := NewCoordinator[[]byte](Config{RequireFile: true}, nil, quietLogger())
	out := strict.Upload(context.Background(), events())
	require.False(t, out.OK())
	assert.Equal(t, CodeNoFiles, out.Err.Code)

	lenient := NewCoordinator[[]byte](Config{}, nil, quietLogger())
	out = lenient.Upload(context.Background(), events())
	require.True(t, out.OK())
	assert.Empty(t, out.Result.Files)
	assert.NotNil(t, out.Result.Files)
	assert.Equal(t, []FieldEntry{{Name: "title", Value: "Trip"}}, out.Result.Fields)
}

func TestUpload_EmptyFormHasNonNilSlices(t *testing.T) {
	out := NewCoordinator[[]byte](Config{}, nil, quietLogger()).Upload(context.Background(), script(finish()))
	require.True(t, out.OK())
	assert.NotNil(t, out.Result.Fields)
	assert.NotNil(t, out.Result.Files)
}

func TestUpload_TokenizerErrorFailsUpload(t *testing.T) {
	c := NewCoordinator[[]byte](Config{}, nil, quietLogger())

	out := c.Upload(context.Background(), script(
		field("title", "Trip"),
		Event{Kind: EventError, Err: io.ErrUnexpectedEOF},
	))
	require.False(t, out.OK())
	assert.Equal(t, CodeRequest, out.Err.Code)
	assert.ErrorIs(t, out.Err, io.ErrUnexpectedEOF)

	coded := &Error{Code: CodeRequest, Message: "field \"notes\"", Cause: ErrFieldTooLarge}
	out = c.Upload(context.Background(), script(Event{Kind: EventError, Err: coded}))
	require.False(t, out.OK())
	assert.Same(t, coded, out.Err)
}

func TestUpload_TokenizerStoppingEarlyIsUnknown(t *testing.T) {
	out := NewCoordinator[[]byte](Config{}, nil, quietLogger()).
		Upload(context.Background(), script(field("a", "b")))
	require.False(t, out.OK())
	assert.Equal(t, CodeUnknown, out.Err.Code)
}

func TestUpload_DroppedPartsAreDrainedAndCounted(t *testing.T) {
	extra := &eofReader{r: bytes.NewReader(payload(2048))}
	dropped := fileFrom("more", "c.bin", extra)
	dropped.Dropped = true

	out := NewCoordinator[[]byte](Config{}, nil, quietLogger()).Upload(context.Background(), script(
		file("a", "a.bin", payload(4)),
		dropped,
		finish(),
	))

	require.True(t, out.OK())
	assert.Len(t, out.Result.Files, 1)
	assert.Equal(t, 1, out.Result.Dropped)
	assert.Eventually(t, extra.reached.Load, time.Second, 5*time.Millisecond)
}

func TestUpload_ParentCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	handler := func(hctx context.Context, _ FilePart) ([]byte, error) {
		cancel()
		<-hctx.Done()
		return nil, hctx.Err()
	}

	out := NewCoordinator[[]byte](Config{}, handler, quietLogger()).
		Upload(ctx, script(file("a", "a.bin", payload(4)), finish()))

	require.False(t, out.OK())
	assert.Equal(t, CodeRequest, out.Err.Code)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestUpload_NilHandlerWithoutBytesResult(t *testing.T) {
	out := NewCoordinator[string](Config{}, nil, quietLogger()).
		Upload(context.Background(), script(file("a", "a.bin", payload(4)), finish()))

	require.True(t, out.OK())
	require.Len(t, out.Result.Files, 1)
	assert.ErrorIs(t, out.Result.Files[0].Err, ErrNoHandler)
}

func TestCoordinator_ConcurrentUploadsDoNotShareState(t *testing.T) {
	c := NewCoordinator[[]byte](Config{}, nil, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("%d.bin", i)
			out := c.Upload(context.Background(), script(
				field("n", name),
				file("f", name, payload(10+i)),
				finish(),
			))
			if assert.True(t, out.OK()) {
				assert.Len(t, out.Result.Fields, 1)
				assert.Len(t, out.Result.Files, 1)
				assert.Equal(t, name, out.Result.Files[0].FileName)
				assert.Equal(t, int64(10+i), out.Result.Files[0].SizeInBytes)
			}
		}(i)
	}
	wg.Wait()
}

func TestSettleGuard_FirstWins(t *testing.T) {
	var g settleGuard[int]
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(code int) {
			defer wg.Done()
			if g.settle(Outcome[int]{Err: newError(ErrorCode(fmt.Sprint(code)), "x", nil)}) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.NotNil(t, g.outcome.Err)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{MaxFileCount: 3}.withDefaults()
	assert.Equal(t, 3, cfg.MaxFileCount)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, defaultBranchDepth, cfg.BranchDepth)
}
