package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// scope appends the company filter when the request carries a company.
func scope(ctx context.Context, sql string, args []interface{}) (string, []interface{}) {
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		args = append(args, companyID)
		sql += fmt.Sprintf(" AND (company_id = $%d OR company_id IS NULL)", len(args))
	}
	return sql, args
}

func (r *repoPG) returning(ctx context.Context, sql string, args []interface{}) ([]string, error) {
	sql, args = scope(ctx, sql, args)
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql+" RETURNING id::text", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, table string, ids []string, status string) ([]string, error) {
	return r.returning(ctx,
		fmt.Sprintf("UPDATE %s SET status = $1, updated_at = NOW() WHERE id::text = ANY($2)", table),
		[]interface{}{status, ids})
}

func (r *repoPG) Assign(ctx context.Context, table string, ids []string, assigneeID string, at time.Time) ([]string, error) {
	return r.returning(ctx,
		fmt.Sprintf("UPDATE %s SET assigned_to = $1, assigned_at = $2, updated_at = NOW() WHERE id::text = ANY($3)", table),
		[]interface{}{assigneeID, at, ids})
}

func (r *repoPG) Delete(ctx context.Context, table string, ids []string) ([]string, error) {
	return r.returning(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id::text = ANY($1)", table),
		[]interface{}{ids})
}

func (r *repoPG) Fetch(ctx context.Context, table string, ids []string) ([]string, []db.Record, error) {
	q := db.NewQuery(table, "*").AnyOf("id::text", ids)
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		q.CompanyScoped(companyID)
	}
	sql, args := q.OrderBy("created_at").SQL()
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, err
	}
	return db.CollectRecords(rows)
}
