// Package processing runs accepted local files through a bounded worker pool.
package processing

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/model"
	"github.com/dharsanguruparan/StreamDrop/internal/storage"
)

type Job struct {
	FileID string
}

// Step does the work for one file and returns a completion message.
type Step func(ctx context.Context, rec *model.FileRecord) (string, error)

// Processor moves queued files through processing to complete or failed.
type Processor struct {
	store   *storage.MemoryStore
	step    Step
	queue   chan Job
	workers int
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

// New builds a Processor whose queue holds four jobs per worker.
func New(store *storage.MemoryStore, workers int, step Step, logger logrus.FieldLogger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Processor{
		store:   store,
		step:    step,
		queue:   make(chan Job, workers*4),
		workers: workers,
		log:     logger.WithField("component", "processing"),
	}
}

// Start launches the workers; they exit when ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Submit queues a job without blocking. A full queue fails the file.
func (p *Processor) Submit(job Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.log.WithField("file", job.FileID).Warn("processing queue full, dropping job")
		_ = p.store.UpdateStatus(job.FileID, model.StatusFailed, "processing queue full")
		return false
	}
}

func (p *Processor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	log := p.log.WithField("file", job.FileID)
	if err := p.store.UpdateStatus(job.FileID, model.StatusProcessing, "processing started"); err != nil {
		log.WithError(err).Warn("file vanished before processing")
		return
	}
	rec, err := p.store.Get(job.FileID)
	if err != nil {
		return
	}
	msg, err := p.step(ctx, rec)
	if err != nil {
		log.WithError(err).Warn("processing failed")
		_ = p.store.UpdateStatus(job.FileID, model.StatusFailed, err.Error())
		return
	}
	if err := p.store.UpdateStatus(job.FileID, model.StatusComplete, msg); err != nil {
		log.WithError(err).Error("update status")
	}
}
