package bulk

import (
	"context"
	"time"

	"github.com/rcm/rcm/internal/platform/db"
)

// Repository runs one statement per call. Each mutating method returns the
// ids the statement touched.
type Repository interface {
	UpdateStatus(ctx context.Context, table string, ids []string, status string) ([]string, error)
	Assign(ctx context.Context, table string, ids []string, assigneeID string, at time.Time) ([]string, error)
	Delete(ctx context.Context, table string, ids []string) ([]string, error)
	// Fetch returns the selected rows and their column order.
	Fetch(ctx context.Context, table string, ids []string) ([]string, []db.Record, error)
}
