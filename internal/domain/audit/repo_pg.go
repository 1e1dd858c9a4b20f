package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const entryCols = `id, authorization_id, resource_type, user_id, user_email, user_name,
	action, action_category, severity, old_values, new_values, old_status, new_status,
	notes, reason, user_agent, company_id, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.AuthorizationID, &e.ResourceType, &e.UserID, &e.UserEmail, &e.UserName,
		&e.Action, &e.ActionCategory, &e.Severity, &e.OldValues, &e.NewValues, &e.OldStatus, &e.NewStatus,
		&e.Notes, &e.Reason, &e.UserAgent, &e.CompanyID, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Insert(ctx context.Context, e *Entry) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO authorization_audit_logs (
			id, authorization_id, resource_type, user_id, user_email, user_name,
			action, action_category, severity, old_values, new_values, old_status, new_status,
			notes, reason, user_agent, company_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at`,
		e.ID, e.AuthorizationID, e.ResourceType, e.UserID, e.UserEmail, e.UserName,
		e.Action, e.ActionCategory, e.Severity, e.OldValues, e.NewValues, e.OldStatus, e.NewStatus,
		e.Notes, e.Reason, e.UserAgent, e.CompanyID,
	).Scan(&e.CreatedAt)
}

func (r *repoPG) Query(ctx context.Context, f Filter) ([]*Entry, int, error) {
	q := db.NewQuery("authorization_audit_logs", entryCols)
	if f.AuthorizationID != "" {
		q.Eq("authorization_id", f.AuthorizationID)
	}
	if f.UserID != "" {
		q.Eq("user_id", f.UserID)
	}
	if f.Action != "" {
		q.Eq("action", string(f.Action))
	}
	if f.Category != "" {
		q.Eq("action_category", f.Category)
	}
	if f.From != nil {
		q.Add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		q.Add("created_at <= $%d", *f.To)
	}
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		q.CompanyScoped(companyID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql, args := q.OrderBy("created_at DESC").Limit(f.Limit).Offset(f.Offset).SQL()
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
