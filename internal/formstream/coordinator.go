package formstream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type state int

const (
	stateIdle state = iota
	stateReceiving
	stateFinalizing
	stateSettled
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateReceiving:
		return "receiving"
	case stateFinalizing:
		return "finalizing"
	case stateSettled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// settleGuard lets exactly one outcome through. Later calls are no-ops.
type settleGuard[T any] struct {
	done    atomic.Bool
	outcome Outcome[T]
}

func (g *settleGuard[T]) settle(o Outcome[T]) bool {
	if !g.done.CompareAndSwap(false, true) {
		return false
	}
	g.outcome = o
	return true
}

// Coordinator turns a tokenizer's event stream into a single Outcome,
// running the handler for every file part concurrently. It keeps no state
// between uploads and is safe for concurrent use.
type Coordinator[T any] struct {
	cfg     Config
	handler Handler[T]
	logger  logrus.FieldLogger
}

// NewCoordinator builds a Coordinator. A nil handler buffers each file in
// memory, which only works for T = []byte; other types record ErrNoHandler
// per file. A nil logger uses the logrus standard logger.
func NewCoordinator[T any](cfg Config, handler Handler[T], logger logrus.FieldLogger) *Coordinator[T] {
	if handler == nil {
		handler = defaultHandler[T]()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator[T]{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  logger.WithField("component", "formstream"),
	}
}

// Config returns the effective configuration.
func (c *Coordinator[T]) Config() Config {
	return c.cfg
}

// Upload consumes tok until the upload settles and returns the outcome.
// Expected failures are reported in Outcome.Err, never as a panic. When
// Upload returns, the context passed to the tokenizer and to every handler
// has been cancelled.
func (c *Coordinator[T]) Upload(ctx context.Context, tok Tokenizer) Outcome[T] {
	r := &run[T]{
		cfg:     c.cfg,
		handler: c.handler,
		log:     c.logger,
		state:   stateIdle,
		started: time.Now(),
	}
	return r.execute(ctx, tok)
}

// run holds the state of one Upload. fields and tasks are only touched by
// the goroutine executing the loop.
type run[T any] struct {
	cfg     Config
	handler Handler[T]
	log     logrus.FieldLogger

	state   state
	guard   settleGuard[T]
	fields  []FieldEntry
	tasks   []*partTask[T]
	group   errgroup.Group
	joined  chan struct{}
	dropped int
	started time.Time
}

func (r *run[T]) execute(parent context.Context, tok Tokenizer) Outcome[T] {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

	events := make(chan Event)
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	tokDone := make(chan struct{})
	r.transition(stateReceiving)
	go func() {
		defer close(tokDone)
		tok.Tokenize(ctx, emit)
	}()

	for r.state != stateSettled {
		select {
		case ev := <-events:
			r.handle(ctx, ev)
		case <-r.joined:
			if err := parent.Err(); err != nil {
				r.fail(newError(CodeRequest, "request aborted", err))
				continue
			}
			r.finalize()
		case <-tokDone:
			tokDone = nil
			if r.state == stateReceiving {
				r.fail(newError(CodeUnknown, "tokenizer stopped before the request finished", nil))
			}
		case <-timer.C:
			r.fail(newError(CodeTimeout, fmt.Sprintf("upload did not settle within %s", r.cfg.Timeout), nil))
		case <-parent.Done():
			r.fail(newError(CodeRequest, "request aborted", parent.Err()))
		}
	}
	return r.guard.outcome
}

func (r *run[T]) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventField:
		if r.state == stateReceiving {
			r.fields = append(r.fields, ev.Field)
		}
	case EventFilePart:
		if r.state != stateReceiving || ev.Dropped {
			if ev.Dropped {
				r.dropped++
				r.log.WithField("field", ev.Part.FieldName).Warn("file limit reached, draining part")
			}
			go drain(ev.Part.Stream)
			return
		}
		r.spawn(ctx, ev.Part)
	case EventFinish:
		if r.state != stateReceiving {
			return
		}
		r.transition(stateFinalizing)
		r.joined = make(chan struct{})
		go func(done chan struct{}) {
			_ = r.group.Wait()
			close(done)
		}(r.joined)
	case EventError:
		r.fail(asError(ev.Err, CodeRequest, "malformed or interrupted request"))
	}
}

func (r *run[T]) spawn(ctx context.Context, part FilePart) {
	task := &partTask[T]{}
	r.tasks = append(r.tasks, task)
	r.log.WithFields(logrus.Fields{
		"index": len(r.tasks) - 1,
		"field": part.FieldName,
		"file":  part.FileName,
	}).Debug("file part received")
	r.group.Go(func() error {
		task.result, task.skipped = processPart(ctx, part, r.handler, r.cfg.BranchDepth)
		return nil
	})
}

// finalize runs after the join barrier; tasks are read in arrival order.
func (r *run[T]) finalize() {
	files := make([]PartResult[T], 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.skipped {
			continue
		}
		files = append(files, t.result)
	}
	if len(files) == 0 && r.cfg.RequireFile {
		r.fail(newError(CodeNoFiles, "no files were uploaded", nil))
		return
	}
	fields := r.fields
	if fields == nil {
		fields = []FieldEntry{}
	}
	r.settle(Outcome[T]{Result: &Result[T]{Fields: fields, Files: files, Dropped: r.dropped}})
}

func (r *run[T]) fail(err *Error) {
	r.settle(Outcome[T]{Err: err})
}

func (r *run[T]) settle(o Outcome[T]) {
	if !r.guard.settle(o) {
		return
	}
	from := r.state
	r.transition(stateSettled)

	s := Settlement{From: from.String(), Fields: len(r.fields), Elapsed: time.Since(r.started)}
	log := r.log.WithFields(logrus.Fields{"from": s.From, "elapsed": s.Elapsed})
	if o.Err != nil {
		s.Code = o.Err.Code
		log.WithError(o.Err).Warn("upload failed")
	} else {
		s.Files = len(o.Result.Files)
		log.WithField("files", s.Files).Info("upload settled")
	}
	if r.cfg.OnSettle != nil {
		r.cfg.OnSettle(s)
	}
}

func (r *run[T]) transition(to state) {
	r.log.WithFields(logrus.Fields{"from": r.state, "to": to}).Debug("upload state change")
	r.state = to
}
