// Package queue runs fire-and-forget uploads in the background.
//
// The Markdown rewrite path executes inside a synchronous parse and cannot
// await network calls, so it enqueues here and moves on with a predicted
// URL. Drain provides the post-render synchronization point: callers that
// can afford to wait learn how many uploads actually failed. An upload that
// fails after the render leaves the generated page linking at a URL the
// service never received (404 at request time); the failure is logged and
// journaled, never surfaced to the render.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/imgcdn/internal/cloudinary"
	"git.home.luguber.info/inful/imgcdn/internal/journal"
	"git.home.luguber.info/inful/imgcdn/internal/metrics"
)

// Job is one pending upload.
type Job struct {
	LocalPath    string
	Folder       string
	PredictedURL string
}

// Options configures optional queue collaborators.
type Options struct {
	// Journal, when non-nil, receives a record per upload attempt.
	Journal *journal.Journal
	// Recorder defaults to metrics.NoopRecorder.
	Recorder metrics.Recorder
	// MaxSize bounds the number of queued jobs. Defaults to 256.
	MaxSize int
}

// Queue processes uploads with a fixed pool of workers.
type Queue struct {
	jobs     chan Job
	wg       sync.WaitGroup
	pending  sync.WaitGroup
	uploader cloudinary.Uploader
	journal  *journal.Journal
	recorder metrics.Recorder
	depth    atomic.Int64
	failed   atomic.Int64
	closed   atomic.Bool
}

// New creates a queue and starts its workers.
func New(uploader cloudinary.Uploader, workers int, opts Options) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 256
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	q := &Queue{
		jobs:     make(chan Job, opts.MaxSize),
		uploader: uploader,
		journal:  opts.Journal,
		recorder: opts.Recorder,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules an upload without waiting for it. Returns an error when
// the queue is full or already closed; the caller decides whether that is
// worth more than a warning (the render never is).
func (q *Queue) Enqueue(job Job) error {
	if q.closed.Load() {
		return fmt.Errorf("upload queue is closed")
	}

	q.pending.Add(1)
	select {
	case q.jobs <- job:
		q.recorder.SetQueueDepth(int(q.depth.Add(1)))
		return nil
	default:
		q.pending.Done()
		return fmt.Errorf("upload queue is full (%d pending)", cap(q.jobs))
	}
}

// Drain blocks until every enqueued upload has been attempted, or ctx
// expires. It returns the number of failed uploads observed so far.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return int(q.failed.Load()), nil
	case <-ctx.Done():
		return int(q.failed.Load()), fmt.Errorf("drain interrupted: %w", ctx.Err())
	}
}

// Close stops accepting jobs and waits for the workers to exit. Pending
// jobs are still processed.
func (q *Queue) Close() {
	if q.closed.Swap(true) {
		return
	}
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(job)
	}
}

func (q *Queue) process(job Job) {
	defer q.pending.Done()
	defer func() {
		q.recorder.SetQueueDepth(int(q.depth.Add(-1)))
	}()

	// Uploads are not cancellable once initiated; the render that queued
	// them has long moved on.
	start := time.Now()
	result, err := q.uploader.Upload(context.Background(), job.LocalPath, job.Folder)
	q.recorder.ObserveUploadDuration(time.Since(start), err == nil)
	q.recorder.IncUploadResult(err == nil)

	entry := journal.Entry{
		LocalPath:    job.LocalPath,
		Folder:       job.Folder,
		PredictedURL: job.PredictedURL,
	}

	if err != nil {
		q.failed.Add(1)
		slog.Warn("Background upload failed; predicted URL may dangle",
			"path", job.LocalPath,
			"predicted_url", job.PredictedURL,
			"error", err)
		entry.Outcome = journal.OutcomeFailed
		entry.Error = err.Error()
	} else {
		slog.Debug("Background upload completed",
			"path", job.LocalPath,
			"public_id", result.PublicID,
			"secure_url", result.SecureURL)
		entry.Outcome = journal.OutcomeUploaded
		entry.ActualURL = result.SecureURL
	}

	if q.journal != nil {
		if jerr := q.journal.Record(context.Background(), entry); jerr != nil {
			slog.Warn("Failed to journal upload attempt", "path", job.LocalPath, "error", jerr)
		}
	}
}
