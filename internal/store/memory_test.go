package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/agentoven/actionrag/internal/store"
	"github.com/agentoven/actionrag/pkg/models"
)

func newTestStore(t *testing.T) store.MetricsStore {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b"} {
		idx, err := s.Append(ctx, models.QueryMetrics{RunID: id})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if idx != i {
			t.Errorf("Append() index = %d, want %d", idx, i)
		}
	}

	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RunID != "run-b" {
		t.Errorf("Get(1).RunID = %q, want %q", got.RunID, "run-b")
	}

	n, _ := s.Len(ctx)
	if n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
}

func TestGetOutOfRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Append(ctx, models.QueryMetrics{RunID: "only"})

	for _, idx := range []int{-1, 1, 42} {
		_, err := s.Get(ctx, idx)
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Errorf("Get(%d) error = %v, want ErrNotFound", idx, err)
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Append(ctx, models.QueryMetrics{RunID: "orig"})

	got, _ := s.Get(ctx, 0)
	got.RunID = "changed"

	again, _ := s.Get(ctx, 0)
	if again.RunID != "orig" {
		t.Errorf("Get(0).RunID = %q after caller mutation, want %q", again.RunID, "orig")
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(ctx, models.QueryMetrics{})
		}()
	}
	wg.Wait()

	if n, _ := s.Len(ctx); n != 50 {
		t.Errorf("Len() = %d, want 50", n)
	}
}

func TestHistoryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "metrics.jsonl")
	ctx := context.Background()

	s := store.NewMemoryStore(path)
	s.Append(ctx, models.QueryMetrics{RunID: "persisted", TokenUsage: 42})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := store.NewMemoryStore(path)
	defer reopened.Close()

	got, err := reopened.Get(ctx, 0)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.RunID != "persisted" || got.TokenUsage != 42 {
		t.Errorf("Get(0) = %+v, want persisted entry", got)
	}

	idx, _ := reopened.Append(ctx, models.QueryMetrics{RunID: "second"})
	if idx != 1 {
		t.Errorf("Append() after reopen index = %d, want 1", idx)
	}
}

func TestHistoryFileSkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	data := `{"run_id":"ok"}` + "\n" + `{"run_id":"tor`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	s := store.NewMemoryStore(path)
	defer s.Close()

	if n, _ := s.Len(context.Background()); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}
