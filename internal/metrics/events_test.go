package metrics

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return New(zap.New(core)), logs
}

func TestLogUpload(t *testing.T) {
	logger, logs := newObserved()

	logger.LogUpload("me.jpg", 4000, 3000)

	if got := logger.Count(EventUpload); got != 1 {
		t.Fatalf("Expected 1 upload, got %d", got)
	}
	entries := logs.FilterField(zap.String("event", "upload")).All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["name"] != "me.jpg" {
		t.Errorf("Expected name 'me.jpg', got '%v'", fields["name"])
	}
	if fields["width"] != int64(4000) {
		t.Errorf("Expected width 4000, got %v", fields["width"])
	}
}

func TestLogResizeAndRotate(t *testing.T) {
	logger, logs := newObserved()

	logger.LogResize(600, 600, "jpeg", 12345)
	logger.LogResize(413, 531, "png", 999)
	logger.LogRotate(90)

	if got := logger.Count(EventResize); got != 2 {
		t.Errorf("Expected 2 resizes, got %d", got)
	}
	if got := logger.Count(EventRotate); got != 1 {
		t.Errorf("Expected 1 rotate, got %d", got)
	}
	if logs.Len() != 3 {
		t.Errorf("Expected 3 log entries, got %d", logs.Len())
	}
}

func TestGetStats(t *testing.T) {
	logger, _ := newObserved()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	logger.LogEvent(EventBusy)
	logger.LogEvent(EventDecodeFailure)
	logger.LogEvent(EventDecodeFailure)
	logger.LogEvent(EventRejectedType)

	stats := logger.GetStats()
	if stats.Total != 4 {
		t.Fatalf("Expected total 4, got %d", stats.Total)
	}
	if len(stats.Events) != 3 {
		t.Fatalf("Expected 3 event rows, got %d", len(stats.Events))
	}
	want := []EventStat{
		{Event: "busy", Count: 1, Last: fixed},
		{Event: "decode_failure", Count: 2, Last: fixed},
		{Event: "rejected_type", Count: 1, Last: fixed},
	}
	for i, w := range want {
		if stats.Events[i] != w {
			t.Errorf("row %d: expected %+v, got %+v", i, w, stats.Events[i])
		}
	}
}

func TestGetStats_Empty(t *testing.T) {
	stats := New(zap.NewNop()).GetStats()
	if stats.Total != 0 || len(stats.Events) != 0 {
		t.Fatalf("Expected empty stats, got %+v", stats)
	}
	if stats.Since.IsZero() {
		t.Error("Expected start time to be set")
	}
}

func TestConcurrentEvents(t *testing.T) {
	logger := New(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogEvent(EventResize)
		}()
	}
	wg.Wait()
	if got := logger.Count(EventResize); got != 50 {
		t.Fatalf("Expected 50 resizes, got %d", got)
	}
}
