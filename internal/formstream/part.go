package formstream

import (
	"context"
	"fmt"
	"io"
)

// BufferHandler is the default Handler: it accumulates the whole part in
// memory.
func BufferHandler(_ context.Context, part FilePart) ([]byte, error) {
	o := <-CollectBytes(part.Stream)
	return o.Data, o.Err
}

func defaultHandler[T any]() Handler[T] {
	if h, ok := any(Handler[[]byte](BufferHandler)).(Handler[T]); ok {
		return h
	}
	return func(_ context.Context, part FilePart) (T, error) {
		var zero T
		drain(part.Stream)
		return zero, ErrNoHandler
	}
}

// partTask is the slot one spawned part writes into. Only its own goroutine
// writes it; the coordinator reads it after the join barrier.
type partTask[T any] struct {
	result  PartResult[T]
	skipped bool
}

// processPart never fails outward. Handler errors and panics end up in
// PartResult.Err; a blank file name drains the stream and reports a skip.
func processPart[T any](ctx context.Context, part FilePart, handler Handler[T], depth int) (PartResult[T], bool) {
	res := PartResult[T]{
		FieldName:   part.FieldName,
		FileName:    part.FileName,
		Encoding:    part.Encoding,
		ContentType: part.ContentType,
	}
	if part.Blank() {
		drain(part.Stream)
		return res, true
	}

	branches := Tee(ctx, part.Stream, 2, depth)
	size := CountBytes(branches[0])
	data := branches[1]

	value, err := invoke(ctx, handler, FilePart{Descriptor: part.Descriptor, Stream: data})
	// Whatever the handler left unread is counted and discarded by the pump.
	data.Close()

	// A failed size measurement is not a file error; the size stays 0.
	if observed := <-size; observed.Err == nil {
		res.SizeInBytes = observed.Data
	}
	if err != nil {
		res.Err = newError(CodeFileProcessing, fmt.Sprintf("process %q", part.FileName), err)
		return res, false
	}
	res.Data = value
	return res, false
}

func invoke[T any](ctx context.Context, handler Handler[T], part FilePart) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, part)
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
