// Package session keeps the per-user photo state between HTTP requests: the
// decoded source raster, the busy flag and the last error.
package session

import (
	"context"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"idphoto/internal/pipeline"
)

// Info describes a loaded source. It is a copy and stays valid after the
// raster is released.
type Info struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Orientation int    `json:"orientation"`
	Oriented    bool   `json:"oriented"`
}

func infoOf(r *pipeline.Raster) Info {
	return Info{
		Name:        r.Name,
		ContentType: r.ContentType,
		Width:       r.Width(),
		Height:      r.Height(),
		Orientation: r.Orientation,
		Oriented:    r.Oriented,
	}
}

// Session is one user's working context. All operations are serialized by a
// weight-1 semaphore; a second operation arriving while one is running fails
// with pipeline.ErrBusy instead of queueing.
type Session struct {
	id   string
	busy *semaphore.Weighted

	mu       sync.Mutex
	source   *pipeline.Raster
	lastErr  error
	lastUsed time.Time
	now      func() time.Time
}

func newSession(id string, now func() time.Time) *Session {
	return &Session{
		id:       id,
		busy:     semaphore.NewWeighted(1),
		lastUsed: now(),
		now:      now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// acquire takes the busy guard. The returned func must be deferred.
func (s *Session) acquire() (func(), error) {
	if !s.busy.TryAcquire(1) {
		return nil, pipeline.ErrBusy
	}
	s.touch()
	return func() { s.busy.Release(1) }, nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *Session) setErr(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Load decodes up and makes it the current source. A failed load leaves the
// previous source in place; a successful one releases it.
func (s *Session) Load(ctx context.Context, dec *pipeline.Decoder, up pipeline.Upload) (Info, error) {
	release, err := s.acquire()
	if err != nil {
		return Info{}, err
	}
	defer release()

	r, err := dec.Decode(ctx, up)
	if err != nil {
		return Info{}, s.setErr(err)
	}
	info := infoOf(r)

	s.mu.Lock()
	prev := s.source
	s.source = r
	s.lastErr = nil
	s.mu.Unlock()

	if prev != nil && prev != r {
		prev.Release()
	}
	zap.L().Debug("session source loaded",
		zap.String("session", s.id),
		zap.String("name", info.Name),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Bool("oriented", info.Oriented),
	)
	return info, nil
}

// Resize runs the pipeline on the current source with default encoder settings.
func (s *Session) Resize(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
	return s.ResizeWith(ctx, opts, pipeline.Encoder{})
}

// ResizeWith is Resize with explicit encoder settings.
func (s *Session) ResizeWith(ctx context.Context, opts pipeline.Options, enc pipeline.Encoder) (*pipeline.Result, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	src := s.Source()
	if src == nil {
		return nil, s.setErr(pipeline.ErrMissingSource)
	}
	res, err := pipeline.ProcessWithEncoder(ctx, src, opts, enc)
	if err != nil {
		return nil, s.setErr(err)
	}
	s.setErr(nil)
	return res, nil
}

// Rotate turns the current source clockwise by degrees.
func (s *Session) Rotate(ctx context.Context, degrees int) (Info, error) {
	release, err := s.acquire()
	if err != nil {
		return Info{}, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	src := s.Source()
	if src == nil {
		return Info{}, s.setErr(pipeline.ErrMissingSource)
	}
	rotated, err := pipeline.RotateRaster(src, degrees)
	if err != nil {
		return Info{}, s.setErr(err)
	}
	info := infoOf(rotated)

	s.mu.Lock()
	if s.source == src {
		s.source = rotated
	}
	s.lastErr = nil
	s.mu.Unlock()
	if rotated.Image != src.Image {
		src.Release()
	}
	return info, nil
}

// Clear drops the current source. It fails with pipeline.ErrBusy while an
// operation is running.
func (s *Session) Clear() error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	s.drop(true)
	return nil
}

// Close drops the source without waiting for the busy guard. Used when the
// store evicts or expires the session. If an operation is running it keeps its
// reference and the pixels are left to the garbage collector.
func (s *Session) Close() {
	if !s.busy.TryAcquire(1) {
		s.drop(false)
		return
	}
	defer s.busy.Release(1)
	s.drop(true)
}

func (s *Session) drop(release bool) {
	s.mu.Lock()
	src := s.source
	s.source = nil
	s.lastErr = nil
	s.mu.Unlock()
	if release && src != nil {
		src.Release()
	}
}

// Source returns the current raster, or nil when nothing is loaded.
func (s *Session) Source() *pipeline.Raster {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source.Released() {
		return nil
	}
	return s.source
}

// Snapshot returns the current pixels and their description. The image stays
// usable even if the session replaces or releases its source afterwards.
func (s *Session) Snapshot() (image.Image, Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source.Released() {
		return nil, Info{}, false
	}
	return s.source.Image, infoOf(s.source), true
}

// Busy reports whether an operation is in flight.
func (s *Session) Busy() bool {
	if s.busy.TryAcquire(1) {
		s.busy.Release(1)
		return false
	}
	return true
}

// LastError returns the error of the most recent operation, nil after a success.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastUsed returns when the session last started an operation.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
