// Package store keeps the query metrics history.
//
// Entries are append-only and addressed by arrival index. The in-memory
// implementation can mirror entries to a JSON Lines file so history
// survives restarts.
package store

import (
	"context"
	"strconv"

	"github.com/agentoven/actionrag/pkg/models"
)

// MetricsStore is the process-wide history of finished runs.
type MetricsStore interface {
	// Append adds a run summary and returns its index.
	Append(ctx context.Context, m models.QueryMetrics) (int, error)

	// Get returns the summary at index, in arrival order.
	Get(ctx context.Context, index int) (*models.QueryMetrics, error)

	// Len returns the number of stored summaries.
	Len(ctx context.Context) (int, error)

	Close() error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

func notFound(index int) error {
	return &ErrNotFound{Entity: "query metrics", Key: strconv.Itoa(index)}
}
