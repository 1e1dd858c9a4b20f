package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	CompanyIDKey contextKey = "company_id"
	TxKey        contextKey = "db_tx"
)

var companyIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxBeginner starts transactions; *pgxpool.Pool implements it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CompanyMiddleware resolves the company the request acts for and stores it in
// the request context. Rows are scoped by their company_id column, not by schema.
func CompanyMiddleware(defaultCompany string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			companyID := extractCompanyID(c, defaultCompany)
			if companyID != "" && !companyIDPattern.MatchString(companyID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid company identifier")
			}

			ctx := WithCompany(c.Request().Context(), companyID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("company_id", companyID)
			return next(c)
		}
	}
}

func extractCompanyID(c echo.Context, defaultCompany string) string {
	// token claim wins over anything the client sends
	if cid, ok := c.Get("jwt_company_id").(string); ok && cid != "" {
		return cid
	}
	if cid := c.Request().Header.Get("X-Company-ID"); cid != "" {
		return cid
	}
	if cid := c.QueryParam("company_id"); cid != "" {
		return cid
	}
	return defaultCompany
}

func WithCompany(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, CompanyIDKey, companyID)
}

// CompanyFromContext returns the company id, or "" when the request is unscoped.
func CompanyFromContext(ctx context.Context) string {
	cid, _ := ctx.Value(CompanyIDKey).(string)
	return cid
}

// TxFromContext returns the transaction started by WithTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction and returns a context carrying it. Repositories
// that resolve their connection through Conn pick it up automatically.
func WithTx(ctx context.Context, b TxBeginner) (context.Context, pgx.Tx, error) {
	if b == nil {
		return ctx, nil, fmt.Errorf("no database connection available")
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, TxKey, tx), tx, nil
}

// WithoutTx hides any transaction carried by ctx, for writes that must
// commit on their own whatever happens to the caller's transaction.
func WithoutTx(ctx context.Context) context.Context {
	if TxFromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, TxKey, nil)
}

// Conn prefers a transaction from ctx over the fallback querier.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}
