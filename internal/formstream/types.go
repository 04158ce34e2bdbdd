package formstream

import (
	"context"
	"io"
	"strings"
	"time"
)

// FieldEntry is one non-file form field. Entries keep arrival order and
// duplicate names are kept as separate entries.
type FieldEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Descriptor is the tokenizer's metadata for one file part.
type Descriptor struct {
	FieldName   string `json:"fieldName"`
	FileName    string `json:"fileName"`
	Encoding    string `json:"encoding"`
	ContentType string `json:"contentType"`
}

// Blank reports whether the part carries no actual file, as browsers send
// for an empty file input.
func (d Descriptor) Blank() bool {
	return strings.TrimSpace(d.FileName) == ""
}

// FilePart is a file part as handed to a Handler. Stream must be read to the
// end or abandoned; the coordinator drains whatever the handler leaves.
type FilePart struct {
	Descriptor
	Stream io.Reader
}

// Handler consumes one file part and produces a typed result. It runs on
// its own goroutine; ctx is cancelled once the upload settles.
type Handler[T any] func(ctx context.Context, part FilePart) (T, error)

// PartResult is the record for one processed file. Err is nil when Data is
// valid; when Err is set Data holds the zero value.
type PartResult[T any] struct {
	FieldName   string `json:"fieldName"`
	FileName    string `json:"fileName"`
	Encoding    string `json:"encoding"`
	ContentType string `json:"contentType"`
	SizeInBytes int64  `json:"sizeInBytes"`
	Data        T      `json:"data"`
	Err         error  `json:"-"`
}

// Failed reports whether the handler failed for this file.
func (r PartResult[T]) Failed() bool {
	return r.Err != nil
}

// Result is a settled successful upload. Files are in arrival order.
type Result[T any] struct {
	Fields []FieldEntry    `json:"fields"`
	Files  []PartResult[T] `json:"files"`
	// Dropped counts file parts beyond MaxFileCount that were drained
	// without being processed.
	Dropped int `json:"dropped,omitempty"`
}

// Field returns the first value submitted under name.
func (r *Result[T]) Field(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Outcome is produced exactly once per Upload. Exactly one of Result and
// Err is set.
type Outcome[T any] struct {
	Result *Result[T]
	Err    *Error
}

// OK reports whether the upload succeeded. Individual files may still have
// failed; see PartResult.Failed.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Settlement summarises a settled run for Config.OnSettle.
type Settlement struct {
	// From is the state the run was in when it settled.
	From    string
	Code    ErrorCode
	Fields  int
	Files   int
	Elapsed time.Duration
}
