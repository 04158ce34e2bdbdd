package formstream

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
)

// scriptTokenizer replays a fixed list of events without waiting for part
// streams to be consumed.
type scriptTokenizer struct {
	events []Event
}

func (s *scriptTokenizer) Tokenize(_ context.Context, emit func(Event) bool) {
	for _, ev := range s.events {
		if !emit(ev) {
			return
		}
	}
}

func script(events ...Event) *scriptTokenizer {
	return &scriptTokenizer{events: events}
}

func field(name, value string) Event {
	return Event{Kind: EventField, Field: FieldEntry{Name: name, Value: value}}
}

func file(fieldName, fileName string, data []byte) Event {
	return fileFrom(fieldName, fileName, bytes.NewReader(data))
}

func fileFrom(fieldName, fileName string, r io.Reader) Event {
	return Event{
		Kind: EventFilePart,
		Part: FilePart{
			Descriptor: Descriptor{
				FieldName:   fieldName,
				FileName:    fileName,
				Encoding:    "7bit",
				ContentType: "application/octet-stream",
			},
			Stream: r,
		},
	}
}

func finish() Event {
	return Event{Kind: EventFinish}
}

// eofReader records whether its source was read to the end.
type eofReader struct {
	r       io.Reader
	reached atomic.Bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.reached.Store(true)
	}
	return n, err
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
