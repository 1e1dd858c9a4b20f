package denial

import (
	"context"

	"github.com/rcm/rcm/internal/platform/db"
)

type Repository interface {
	// ListDenials returns the newest denials. An empty companyID means no
	// company filter.
	ListDenials(ctx context.Context, companyID string, limit int) ([]db.Record, error)
	// GetDenial reads one denial visible to companyID; "" skips the company
	// filter.
	GetDenial(ctx context.Context, id, companyID string) (db.Record, error)
	// ClaimsByID reads rows from one of the claim tables.
	ClaimsByID(ctx context.Context, table string, ids []string) ([]db.Record, error)
	CreateWorkflow(ctx context.Context, w *AppealWorkflow) error
}
