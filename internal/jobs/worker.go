package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"comictracker/internal/logging"
	"comictracker/pkg/models"
)

const (
	DefaultPollInterval = 10 * time.Second
	finalizeTimeout     = 5 * time.Second
)

var ErrWorkerRunning = errors.New("another job worker already holds the lock")

// Processor executes one job type. The returned value is stored as the job result.
type Processor interface {
	Process(ctx context.Context, job *models.Job) (any, error)
}

type ProcessorFunc func(ctx context.Context, job *models.Job) (any, error)

func (f ProcessorFunc) Process(ctx context.Context, job *models.Job) (any, error) { return f(ctx, job) }

type Notifier interface {
	BroadcastJSON(v any)
}

// JobEvent is broadcast on every state change the worker makes.
type JobEvent struct {
	Type   string           `json:"type"`
	UserID string           `json:"user_id"`
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	At     time.Time        `json:"at"`
}

// Worker is the single job consumer. Jobs are never retried: a failure is
// recorded on the job and the worker moves on.
type Worker struct {
	Store      *Store
	Processors map[string]Processor
	Interval   time.Duration
	Notifier   Notifier
	Logger     *slog.Logger
}

func NewWorker(store *Store, interval time.Duration, notifier Notifier, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Worker{
		Store:      store,
		Processors: map[string]Processor{},
		Interval:   interval,
		Notifier:   notifier,
		Logger:     logging.OrDiscard(logger),
	}
}

func (w *Worker) Register(jobType string, p Processor) {
	w.Processors[jobType] = p
}

// RunNext processes the oldest pending job. It returns nil when there was
// nothing to do or the claim was lost, else the job in its final state.
func (w *Worker) RunNext(ctx context.Context) (*models.Job, error) {
	job, err := w.Store.OldestPending(ctx)
	if err != nil || job == nil {
		return nil, err
	}
	claimed, err := w.Store.Claim(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		w.Logger.Debug("job claim lost", "job_id", job.ID)
		return nil, nil
	}
	w.notify(job, models.JobRunning, "")
	log := w.Logger.With("job_id", job.ID, "job_type", job.Type, "user_id", job.UserID)
	log.Info("job started")

	start := time.Now()
	result, procErr := w.process(ctx, job)

	// a claimed job must leave RUNNING even when ctx was cancelled mid-run
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if procErr != nil {
		if err := w.Store.Fail(finishCtx, job.ID, procErr.Error()); err != nil {
			return nil, err
		}
		log.Warn("job failed", "error", procErr, "duration", time.Since(start))
		w.notify(job, models.JobFailed, procErr.Error())
	} else {
		if err := w.Store.Complete(finishCtx, job.ID, result); err != nil {
			return nil, err
		}
		log.Info("job completed", "duration", time.Since(start))
		w.notify(job, models.JobCompleted, "")
	}
	return w.Store.Get(finishCtx, job.UserID, job.ID)
}

// process dispatches by type and turns a panic into a job failure.
func (w *Worker) process(ctx context.Context, job *models.Job) (result any, err error) {
	p, ok := w.Processors[job.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported job type: %s", job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.Process(ctx, job)
}

func (w *Worker) notify(job *models.Job, status models.JobStatus, msg string) {
	if w.Notifier == nil {
		return
	}
	w.Notifier.BroadcastJSON(JobEvent{
		Type: "job.updated", UserID: job.UserID, JobID: job.ID,
		Status: status, Error: msg, At: time.Now().UTC(),
	})
}

// Run polls every Interval until ctx is cancelled. Store errors are logged
// and polling continues.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("job worker started", "interval", w.Interval)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("job worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.RunNext(ctx); err != nil && ctx.Err() == nil {
				w.Logger.Error("job poll failed", "error", err)
			}
		}
	}
}

// Lock takes the process-level worker lock at path. The returned func
// releases it.
func Lock(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire worker lock: %w", err)
	}
	if !ok {
		return nil, ErrWorkerRunning
	}
	return lock.Unlock, nil
}
