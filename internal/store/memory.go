package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// maxLineSize bounds a single history line; QueryMetrics carry agent
// outputs and can be large.
const maxLineSize = 16 << 20

// MemoryStore implements MetricsStore with an in-memory slice, optionally
// mirrored to a JSON Lines file: one QueryMetrics per line, appended as runs
// finish and replayed on open.
type MemoryStore struct {
	mu      sync.RWMutex
	metrics []models.QueryMetrics

	path   string   // empty = no persistence
	file   *os.File // guarded by mu
	closed bool
}

// NewMemoryStore creates an in-memory history. When path is set, entries
// already in the file are loaded and new ones are appended to it. A file
// that cannot be opened disables persistence with a warning.
func NewMemoryStore(path string) *MemoryStore {
	m := &MemoryStore{}

	if path != "" {
		if err := m.open(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Metrics history file unavailable, persistence disabled")
		}
	}

	log.Info().
		Str("path", m.path).
		Int("entries", len(m.metrics)).
		Msg("Metrics store configured")
	return m
}

func (m *MemoryStore) open(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	loaded, err := replay(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	m.metrics = loaded
	m.path = path
	m.file = f
	return nil
}

// replay reads every complete line of the history file. A torn last line
// (crash mid-write) is skipped.
func replay(path string) ([]models.QueryMetrics, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer f.Close()

	var out []models.QueryMetrics
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var q models.QueryMetrics
		if err := json.Unmarshal(sc.Bytes(), &q); err != nil {
			log.Warn().Err(err).Str("path", path).Int("line", line).Msg("Skipping unreadable history line")
			continue
		}
		out = append(out, q)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, q models.QueryMetrics) (int, error) {
	var line []byte
	if m.path != "" {
		data, err := json.Marshal(q)
		if err != nil {
			return 0, fmt.Errorf("encode query metrics: %w", err)
		}
		line = append(data, '\n')
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The in-memory entry is kept even if the write fails: the index handed
	// back must stay valid for this process.
	m.metrics = append(m.metrics, q)
	idx := len(m.metrics) - 1

	if m.file != nil && !m.closed {
		if _, err := m.file.Write(line); err != nil {
			log.Error().Err(err).Str("path", m.path).Int("index", idx).Msg("Failed to persist query metrics")
		}
	}
	return idx, nil
}

func (m *MemoryStore) Get(_ context.Context, index int) (*models.QueryMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.metrics) {
		return nil, notFound(index)
	}
	q := m.metrics[index]
	return &q, nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.metrics), nil
}

// Close syncs and closes the history file. It is safe to call twice.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.file == nil {
		m.closed = true
		return nil
	}
	m.closed = true
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	return m.file.Close()
}
