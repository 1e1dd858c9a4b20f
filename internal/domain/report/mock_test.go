package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
)

type mockRepo struct {
	defs        map[uuid.UUID]*Definition
	rows        map[string][]db.Record
	fetched     []int
	created     int
	createdInTx int
	failCreate  int // fail the nth create when > 0
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		defs: make(map[uuid.UUID]*Definition),
		rows: map[string][]db.Record{
			"claim_denials": {
				{"id": "d1", "denial_code": "CO-50", "denied_amount": 100.0, "payer_name": "Aetna"},
				{"id": "d2", "denial_code": "CO-97", "denied_amount": "20", "payer_name": "Cigna"},
				{"id": "d3", "denial_code": "CO-50", "denied_amount": 50.0, "payer_name": "Aetna"},
			},
		},
	}
}

func (m *mockRepo) Create(ctx context.Context, d *Definition) error {
	if m.failCreate > 0 && m.created+1 == m.failCreate {
		return errors.New("unique violation")
	}
	if db.TxFromContext(ctx) != nil {
		m.createdInTx++
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.defs[d.ID] = &cp
	m.created++
	return nil
}

// visible mirrors the company scope of the postgres repository.
func visible(ctx context.Context, d *Definition) bool {
	companyID := db.CompanyFromContext(ctx)
	return companyID == "" || d.CompanyID == nil || *d.CompanyID == companyID
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Definition, error) {
	d, ok := m.defs[id]
	if !ok || !visible(ctx, d) {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) List(ctx context.Context, ownerID string, limit, offset int) ([]*Definition, int, error) {
	var out []*Definition
	for _, d := range m.defs {
		if (ownerID == "" || d.OwnerID == ownerID) && visible(ctx, d) {
			out = append(out, d)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) Update(ctx context.Context, d *Definition) error {
	if existing, ok := m.defs[d.ID]; !ok || !visible(ctx, existing) {
		return ErrNotFound
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.defs[d.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if d, ok := m.defs[id]; !ok || !visible(ctx, d) {
		return ErrNotFound
	}
	delete(m.defs, id)
	return nil
}

func (m *mockRepo) FetchRows(_ context.Context, dataSource string, limit int) ([]db.Record, error) {
	m.fetched = append(m.fetched, limit)
	rows := m.rows[dataSource]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func newTestService(repo *mockRepo, maxRows int) *Service {
	svc := NewService(repo, maxRows, nil, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc
}

func userCtx(id string, roles ...string) context.Context {
	ctx := auth.WithActor(context.Background(), auth.Actor{ID: id, Email: id + "@example.com"})
	ctx = auth.WithRoles(ctx, roles)
	return db.WithCompany(ctx, "acme")
}

func denialsByCode() *Definition {
	return &Definition{
		Name:       "Denials by code",
		DataSource: "claim_denials",
		Fields: []Field{
			{Name: "denial_code", Label: "Code"},
			{Name: "denied_amount", Label: "Denied", Aggregate: AggSum},
		},
		GroupBy: []string{"denial_code"},
		SortBy:  []Sort{{Field: "denied_amount", Direction: "desc"}},
	}
}

type stubTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type stubBeginner struct{ tx *stubTx }

func (b *stubBeginner) Begin(context.Context) (pgx.Tx, error) { return b.tx, nil }
