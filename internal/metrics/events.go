package metrics

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType represents the type of activity event
type EventType string

const (
	EventUpload        EventType = "upload"
	EventResize        EventType = "resize"
	EventRotate        EventType = "rotate"
	EventRejectedType  EventType = "rejected_type"
	EventDecodeFailure EventType = "decode_failure"
	EventEncodeFailure EventType = "encode_failure"
	EventMissingSource EventType = "missing_source"
	EventBusy          EventType = "busy"
)

// Logger counts activity events in memory and writes one log line per event.
type Logger struct {
	mu      sync.Mutex
	counts  map[EventType]int64
	last    map[EventType]time.Time
	started time.Time
	log     *zap.Logger
	now     func() time.Time
}

// New creates a new metrics logger. A nil logger uses the zap global.
func New(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.L()
	}
	return &Logger{
		counts:  make(map[EventType]int64),
		last:    make(map[EventType]time.Time),
		started: time.Now().UTC(),
		log:     log.Named("metrics"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent records one event. Extra fields are attached to the log line only.
func (l *Logger) LogEvent(eventType EventType, fields ...zap.Field) {
	now := l.now()
	l.mu.Lock()
	l.counts[eventType]++
	l.last[eventType] = now
	l.mu.Unlock()

	l.log.Info("activity", append([]zap.Field{zap.String("event", string(eventType))}, fields...)...)
}

// LogUpload logs a photo upload event
func (l *Logger) LogUpload(name string, width, height int) {
	l.LogEvent(EventUpload, zap.String("name", name), zap.Int("width", width), zap.Int("height", height))
}

// LogResize logs a completed resize
func (l *Logger) LogResize(width, height int, format string, bytes int) {
	l.LogEvent(EventResize,
		zap.Int("width", width),
		zap.Int("height", height),
		zap.String("format", format),
		zap.Int("bytes", bytes),
	)
}

// LogRotate logs a manual rotation
func (l *Logger) LogRotate(degrees int) {
	l.LogEvent(EventRotate, zap.Int("degrees", degrees))
}

// Count returns how many events of the type were recorded.
func (l *Logger) Count(eventType EventType) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[eventType]
}

// EventStat is one row of a snapshot.
type EventStat struct {
	Event string    `json:"event"`
	Count int64     `json:"count"`
	Last  time.Time `json:"last"`
}

// Stats holds aggregated metrics
type Stats struct {
	Since  time.Time   `json:"since"`
	Total  int64       `json:"total"`
	Events []EventStat `json:"events"`
}

// GetStats returns a snapshot of all counters, sorted by event name.
func (l *Logger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{Since: l.started, Events: make([]EventStat, 0, len(l.counts))}
	for ev, n := range l.counts {
		stats.Total += n
		stats.Events = append(stats.Events, EventStat{Event: string(ev), Count: n, Last: l.last[ev]})
	}
	sort.Slice(stats.Events, func(i, j int) bool { return stats.Events[i].Event < stats.Events[j].Event })
	return stats
}
