package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const defCols = `id, name, description, data_source, fields, filters, group_by, sort_by,
	output_format, chart_type, created_by, company_id, created_at, updated_at`

func scanDefinition(row pgx.Row) (*Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.DataSource, &d.Fields, &d.Filters, &d.GroupBy, &d.SortBy,
		&d.OutputFormat, &d.ChartType, &d.OwnerID, &d.CompanyID, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Definition) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO report_definitions (id, name, description, data_source, fields, filters, group_by, sort_by,
			output_format, chart_type, created_by, company_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Description, d.DataSource, d.Fields, d.Filters, d.GroupBy, d.SortBy,
		d.OutputFormat, d.ChartType, d.OwnerID, d.CompanyID,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// companyClause limits a statement keyed on $1 to the request's company.
// The company id, when present, becomes parameter n.
func companyClause(ctx context.Context, n int) (string, []interface{}) {
	companyID := db.CompanyFromContext(ctx)
	if companyID == "" {
		return "", nil
	}
	return fmt.Sprintf(" AND (company_id = $%d OR company_id IS NULL)", n), []interface{}{companyID}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Definition, error) {
	q := db.NewQuery("report_definitions", defCols).Eq("id", id)
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		q.CompanyScoped(companyID)
	}
	sql, args := q.SQL()
	d, err := scanDefinition(db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *repoPG) List(ctx context.Context, ownerID string, limit, offset int) ([]*Definition, int, error) {
	q := db.NewQuery("report_definitions", defCols)
	if ownerID != "" {
		q.Eq("created_by", ownerID)
	}
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		q.CompanyScoped(companyID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	sql, args := q.OrderBy("name, created_at").Limit(limit).Offset(offset).SQL()
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, d *Definition) error {
	scope, scopeArgs := companyClause(ctx, 11)
	args := append([]interface{}{
		d.ID, d.Name, d.Description, d.DataSource, d.Fields, d.Filters, d.GroupBy, d.SortBy,
		d.OutputFormat, d.ChartType,
	}, scopeArgs...)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE report_definitions SET name = $2, description = $3, data_source = $4, fields = $5, filters = $6,
			group_by = $7, sort_by = $8, output_format = $9, chart_type = $10, updated_at = NOW()
		WHERE id = $1`+scope+`
		RETURNING updated_at`, args...,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	scope, scopeArgs := companyClause(ctx, 2)
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM report_definitions WHERE id = $1`+scope,
		append([]interface{}{id}, scopeArgs...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) FetchRows(ctx context.Context, dataSource string, limit int) ([]db.Record, error) {
	if !DataSources[dataSource] {
		return nil, fmt.Errorf("%w: unknown data source %q", ErrInvalidDefinition, dataSource)
	}
	q := db.NewQuery(dataSource, "*")
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		q.CompanyScoped(companyID)
	}
	sql, args := q.OrderBy("created_at DESC").Limit(limit).SQL()
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	_, recs, err := db.CollectRecords(rows)
	return recs, err
}
