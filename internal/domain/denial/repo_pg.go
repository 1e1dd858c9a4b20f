package denial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) records(ctx context.Context, q *db.Query) ([]db.Record, error) {
	sql, args := q.SQL()
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	_, recs, err := db.CollectRecords(rows)
	return recs, err
}

func (r *repoPG) ListDenials(ctx context.Context, companyID string, limit int) ([]db.Record, error) {
	q := db.NewQuery("claim_denials", "*")
	if companyID != "" {
		q.CompanyScoped(companyID)
	}
	return r.records(ctx, q.OrderBy("created_at DESC").Limit(limit))
}

func (r *repoPG) GetDenial(ctx context.Context, id, companyID string) (db.Record, error) {
	q := db.NewQuery("claim_denials", "*").Add("id::text = $%d", id)
	if companyID != "" {
		q.CompanyScoped(companyID)
	}
	recs, err := r.records(ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (r *repoPG) ClaimsByID(ctx context.Context, table string, ids []string) ([]db.Record, error) {
	if table != TableInstitutional && table != TableProfessional {
		return nil, fmt.Errorf("unknown claim table %q", table)
	}
	return r.records(ctx, db.NewQuery(table, "*").Add("id::text = ANY($%d)", ids))
}

func (r *repoPG) CreateWorkflow(ctx context.Context, w *AppealWorkflow) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appeal_workflows (id, denial_id, claim_id, appeal_type, status, appeal_letter, created_by, company_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		w.ID, w.DenialID, w.ClaimID, w.AppealType, w.Status, w.AppealLetter, w.OwnerID, w.CompanyID,
	).Scan(&w.CreatedAt)
}
