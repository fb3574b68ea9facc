package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockTokenPruner はTokenPrunerのモック。
type mockTokenPruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	deleted int64
	err     error
}

func (m *mockTokenPruner) DeleteRequestedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cutoffs = append(m.cutoffs, before)
	return m.deleted, m.err
}

func (m *mockTokenPruner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockTokenPruner{}, newTestLogger(&buf), 0)

	if job.Retention != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", job.Retention)
	}
}

func TestRun_DeletesTokensOlderThanRetention(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockTokenPruner{deleted: 3}
	job := NewCleanupJob(pruner, newTestLogger(&buf), 2*time.Hour)

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(pruner.cutoffs) != 1 {
		t.Fatalf("DeleteRequestedBefore calls = %d, want 1", len(pruner.cutoffs))
	}
	if want := fixed.Add(-2 * time.Hour); !pruner.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", pruner.cutoffs[0], want)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("deleted_count = %v, want 3", entry["deleted_count"])
	}
}

func TestRun_NothingToDelete_IsNotError(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockTokenPruner{}, newTestLogger(&buf), time.Hour)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRun_StoreErrorIsReturnedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	storeErr := errors.New("connection reset")
	job := NewCleanupJob(&mockTokenPruner{err: storeErr}, newTestLogger(&buf), time.Hour)

	err := job.Run(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("failure should be logged at ERROR, got %s", buf.String())
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockTokenPruner{}
	job := NewCleanupJob(pruner, newTestLogger(&buf), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pruner.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want at least 2", pruner.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
