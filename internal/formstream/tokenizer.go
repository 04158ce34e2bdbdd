package formstream

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
)

// EventKind identifies what a tokenizer emitted.
type EventKind int

const (
	EventField EventKind = iota + 1
	EventFilePart
	EventFinish
	EventError
)

// Event is one tokenizer emission.
type Event struct {
	Kind  EventKind
	Field FieldEntry
	Part  FilePart
	// Dropped marks a file part past the file-count limit. The part is
	// still emitted so that its stream gets drained.
	Dropped bool
	Err     error
}

// Tokenizer splits a request body into ordered form events. Tokenize emits
// events in arrival order and returns after emitting EventFinish or
// EventError, or as soon as emit returns false. A file part's stream must
// reach its end before the tokenizer can move on to the next part.
type Tokenizer interface {
	Tokenize(ctx context.Context, emit func(Event) bool)
}

// FormTokenizer adapts mime/multipart to the Tokenizer contract.
type FormTokenizer struct {
	reader *multipart.Reader
	cfg    Config
}

// NewFormTokenizer reads the multipart boundary from header. Limits come
// from cfg; zero fields use the package defaults.
func NewFormTokenizer(header http.Header, body io.Reader, cfg Config) (*FormTokenizer, error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return nil, newError(CodeRequest, "invalid content type", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, newError(CodeRequest, fmt.Sprintf("expected multipart body, got %s", mediaType), nil)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, newError(CodeRequest, "multipart boundary missing", nil)
	}
	return NewBoundaryTokenizer(body, boundary, cfg), nil
}

// NewBoundaryTokenizer is NewFormTokenizer for a body whose boundary is
// already known.
func NewBoundaryTokenizer(body io.Reader, boundary string, cfg Config) *FormTokenizer {
	return &FormTokenizer{
		reader: multipart.NewReader(body, boundary),
		cfg:    cfg.withDefaults(),
	}
}

// Tokenize implements Tokenizer.
func (t *FormTokenizer) Tokenize(ctx context.Context, emit func(Event) bool) {
	files := 0
	for {
		part, err := t.reader.NextPart()
		// Only a bare io.EOF means the closing boundary was seen; a wrapped
		// EOF is a truncated body.
		if err == io.EOF {
			emit(Event{Kind: EventFinish})
			return
		}
		if err != nil {
			emit(Event{Kind: EventError, Err: newError(CodeRequest, "read multipart body", err)})
			return
		}

		if !isFilePart(part) {
			value, err := readField(part, t.cfg.MaxFieldSize)
			if err != nil {
				emit(Event{Kind: EventError, Err: err})
				return
			}
			if !emit(Event{Kind: EventField, Field: FieldEntry{Name: part.FormName(), Value: value}}) {
				return
			}
			continue
		}

		// Blank parts are skipped downstream and do not use up the file count.
		desc := describe(part)
		if !desc.Blank() {
			files++
		}
		stream := newPartStream(part, t.cfg.MaxFileSize)
		ev := Event{
			Kind:    EventFilePart,
			Part:    FilePart{Descriptor: desc, Stream: stream},
			Dropped: !desc.Blank() && files > t.cfg.MaxFileCount,
		}
		if !emit(ev) {
			return
		}
		select {
		case <-stream.done:
		case <-ctx.Done():
			return
		}
	}
}

// isFilePart reports whether the Content-Disposition carries a filename
// parameter, even an empty one.
func isFilePart(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func describe(part *multipart.Part) Descriptor {
	encoding := part.Header.Get("Content-Transfer-Encoding")
	if encoding == "" {
		encoding = "7bit"
	}
	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Descriptor{
		FieldName:   part.FormName(),
		FileName:    part.FileName(),
		Encoding:    encoding,
		ContentType: contentType,
	}
}

func readField(part *multipart.Part, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return "", newError(CodeRequest, fmt.Sprintf("read field %q", part.FormName()), err)
	}
	if int64(len(data)) > limit {
		return "", newError(CodeRequest, fmt.Sprintf("field %q", part.FormName()), ErrFieldTooLarge)
	}
	return string(data), nil
}

// partStream signals done the first time the part returns an error,
// including io.EOF and the size limit. Nothing reads it after that, so the
// multipart reader is free to advance.
type partStream struct {
	part  *multipart.Part
	limit int64
	read  int64
	done  chan struct{}
	once  sync.Once
}

func newPartStream(part *multipart.Part, limit int64) *partStream {
	return &partStream{part: part, limit: limit, done: make(chan struct{})}
}

func (s *partStream) Read(p []byte) (int, error) {
	n, err := s.part.Read(p)
	s.read += int64(n)
	if s.limit > 0 && s.read > s.limit {
		n -= int(s.read - s.limit)
		if n < 0 {
			n = 0
		}
		s.finish()
		return n, ErrFileTooLarge
	}
	if err != nil {
		s.finish()
	}
	return n, err
}

func (s *partStream) finish() {
	s.once.Do(func() { close(s.done) })
}
