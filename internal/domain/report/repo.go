package report

import (
	"context"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/platform/db"
)

type Repository interface {
	Create(ctx context.Context, d *Definition) error
	// GetByID, Update and Delete only see definitions of the request's
	// company.
	GetByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	// List returns definitions visible to the request's company. An empty
	// ownerID lists every owner.
	List(ctx context.Context, ownerID string, limit, offset int) ([]*Definition, int, error)
	Update(ctx context.Context, d *Definition) error
	Delete(ctx context.Context, id uuid.UUID) error
	// FetchRows reads up to limit of the newest rows of a data source.
	FetchRows(ctx context.Context, dataSource string, limit int) ([]db.Record, error)
}
