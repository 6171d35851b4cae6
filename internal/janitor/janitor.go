package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Default schedule and idle limit.
const (
	DefaultInterval = time.Minute
	DefaultMaxIdle  = 30 * time.Minute
)

// Expirer drops sessions that have been idle for longer than maxIdle and
// returns how many it removed.
type Expirer interface {
	Expire(maxIdle time.Duration) int
	Len() int
}

// Janitor handles periodic cleanup of idle sessions so their decoded photos are
// released even when the browser never says goodbye.
type Janitor struct {
	sessions Expirer
	interval time.Duration
	maxIdle  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// Config holds janitor configuration
type Config struct {
	Sessions Expirer
	Interval time.Duration
	MaxIdle  time.Duration
	Logger   *zap.Logger
}

// New creates a new Janitor instance
func New(cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}

	return &Janitor{
		sessions: cfg.Sessions,
		interval: cfg.Interval,
		maxIdle:  cfg.MaxIdle,
		logger:   cfg.Logger.Named("janitor"),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup scheduler in a goroutine
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// Stop gracefully stops the janitor
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan // wait for cleanup to finish
}

// run is the main loop that runs cleanup tasks
func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneChan)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce()
		case <-j.stopChan:
			j.logger.Debug("received stop signal, shutting down")
			return
		case <-ctx.Done():
			j.logger.Debug("context cancelled, shutting down")
			return
		}
	}
}

// RunOnce executes one cleanup cycle and returns the number of expired sessions.
func (j *Janitor) RunOnce() int {
	start := time.Now()
	n := j.sessions.Expire(j.maxIdle)
	if n > 0 {
		j.logger.Info("expired idle sessions",
			zap.Int("expired", n),
			zap.Int("remaining", j.sessions.Len()),
			zap.Duration("took", time.Since(start)),
		)
	}
	return n
}
