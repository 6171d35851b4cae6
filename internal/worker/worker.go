package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome of one job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one source photo to process.
type Job struct {
	ID   string
	Path string
}

// Output describes what a successful job produced.
type Output struct {
	Path   string
	Width  int
	Height int
	Bytes  int
	Detail string
}

// Result pairs a job with its outcome.
type Result struct {
	Job      Job
	Status   Status
	Output   Output
	Err      error
	Duration time.Duration
}

// ProcessFunc handles a single job.
type ProcessFunc func(ctx context.Context, job Job) (Output, error)

// Worker runs a job, times it and records whether it succeeded.
type Worker struct {
	process ProcessFunc
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a worker. A positive timeout bounds each job.
func New(process ProcessFunc, timeout time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.L()
	}
	return &Worker{
		process: process,
		timeout: timeout,
		logger:  logger.Named("worker"),
	}
}

// Run processes job. A job whose context is already done is not started and
// fails with ctx.Err().
func (w *Worker) Run(ctx context.Context, job Job) Result {
	res := Result{Job: job, Status: StatusPending}
	if err := ctx.Err(); err != nil {
		w.failJob(&res, err)
		return res
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	w.logger.Debug("processing job", zap.String("job", job.ID), zap.String("file", job.Path))
	start := time.Now()
	out, err := w.process(ctx, job)
	res.Duration = time.Since(start)
	if err == nil {
		// a process that ignores ctx may finish after the deadline
		err = ctx.Err()
	}
	if err != nil {
		w.failJob(&res, err)
		return res
	}
	w.completeJob(&res, out)
	return res
}

func (w *Worker) completeJob(res *Result, out Output) {
	res.Status = StatusCompleted
	res.Output = out
	w.logger.Info("job completed",
		zap.String("job", res.Job.ID),
		zap.String("file", res.Job.Path),
		zap.String("output", out.Path),
		zap.Duration("took", res.Duration),
	)
}

func (w *Worker) failJob(res *Result, err error) {
	res.Status = StatusFailed
	res.Err = err
	w.logger.Warn("job failed", zap.String("job", res.Job.ID), zap.String("file", res.Job.Path), zap.Error(err))
}
