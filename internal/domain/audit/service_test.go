package audit

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/metrics"
)

type mockRepo struct {
	entries []*Entry
	err     error
	panics  bool
	inTx    bool
}

func (m *mockRepo) Insert(ctx context.Context, e *Entry) error {
	m.inTx = m.inTx || db.TxFromContext(ctx) != nil
	if m.panics {
		panic("connection reset")
	}
	if m.err != nil {
		return m.err
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) Query(_ context.Context, f Filter) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if f.AuthorizationID != "" && e.AuthorizationID != f.AuthorizationID {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Category != "" && e.ActionCategory != f.Category {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, zerolog.Nop())
}

func actorCtx() context.Context {
	ctx := auth.WithActor(context.Background(), auth.Actor{ID: "u1", Email: "u1@example.com", Name: "Pat Biller"})
	ctx = auth.WithUserAgent(ctx, "Mozilla/5.0")
	return db.WithCompany(ctx, "acme")
}

func TestLogAction_CapturesActorAndClassification(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	e := svc.LogAction(actorCtx(), "auth-1", ActionDelete, Options{
		OldValues: map[string]interface{}{"status": "approved"},
		Reason:    "duplicate",
	})
	require.NotNil(t, e)
	require.Len(t, repo.entries, 1)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "u1@example.com", e.UserEmail)
	assert.Equal(t, "Pat Biller", e.UserName)
	assert.Equal(t, SeverityHigh, e.Severity)
	assert.Equal(t, CategoryLifecycle, e.ActionCategory)
	assert.Equal(t, ResourceAuthorization, e.ResourceType)
	assert.Equal(t, "Mozilla/5.0", *e.UserAgent)
	assert.Equal(t, "acme", *e.CompanyID)
	assert.Equal(t, "duplicate", *e.Reason)
	assert.Nil(t, e.Notes)
}

func TestLogAction_SeverityIgnoresStatuses(t *testing.T) {
	svc := newTestService(&mockRepo{})
	for _, status := range []string{"approved", "denied", "cancelled", ""} {
		e := svc.LogAction(actorCtx(), "a", ActionView, Options{OldStatus: status, NewStatus: status})
		assert.Equal(t, SeverityLow, e.Severity)
		e = svc.LogAction(actorCtx(), "a", ActionDelete, Options{OldStatus: status, NewStatus: status})
		assert.Equal(t, SeverityHigh, e.Severity)
	}
}

func TestLogAction_UnknownActorFallback(t *testing.T) {
	repo := &mockRepo{}
	e := newTestService(repo).LogAction(context.Background(), "auth-1", ActionView, Options{})
	require.NotNil(t, e)
	assert.Equal(t, "unknown", e.UserID)
	assert.Equal(t, "unknown", e.UserEmail)
	assert.Equal(t, "Unknown User", e.UserName)
	assert.Nil(t, e.CompanyID)
}

func TestLogAction_FailuresAreSwallowed(t *testing.T) {
	m := metrics.New()
	svc := NewService(&mockRepo{err: errors.New("permission denied")}, m, zerolog.Nop())
	assert.Nil(t, svc.LogAction(actorCtx(), "auth-1", ActionUpdate, Options{}))

	svc = newTestService(&mockRepo{panics: true})
	assert.NotPanics(t, func() { svc.LogAction(actorCtx(), "auth-1", ActionUpdate, Options{}) })

	svc = newTestService(nil)
	assert.Nil(t, svc.LogAction(actorCtx(), "auth-1", ActionUpdate, Options{}))
}

func TestLogAction_SurvivesCancelledRequest(t *testing.T) {
	repo := &mockRepo{}
	ctx, cancel := context.WithCancel(actorCtx())
	cancel()
	assert.NotNil(t, newTestService(repo).LogAction(ctx, "auth-1", ActionSubmit, Options{}))
}

func TestWrappers(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)
	ctx := actorCtx()

	assert.Equal(t, ActionCreate, svc.LogCreate(ctx, "a", map[string]interface{}{"status": "draft"}).Action)
	assert.Equal(t, ActionUpdate, svc.LogUpdate(ctx, "a", nil, nil, "").Action)
	assert.Equal(t, ActionSubmit, svc.LogSubmit(ctx, "a", "draft").Action)
	assert.Equal(t, ActionUseVisit, svc.LogUseVisit(ctx, "a", 3, 7).Action)
	assert.Equal(t, ActionRenew, svc.LogRenewal(ctx, "a", "b").Action)

	appeal := svc.LogAppeal(ctx, "d1", "claim_denial", "", nil)
	assert.Equal(t, ActionAppeal, appeal.Action)
	assert.Equal(t, SeverityMedium, appeal.Severity)
	assert.Equal(t, "claim_denial", appeal.ResourceType)
	assert.Equal(t, "Appeal initiated", *appeal.Reason)

	visit := repo.entries[3]
	assert.Equal(t, "Visit used (7 remaining)", *visit.Reason)
}

func TestLogStatusChange_MapsDecisionStatuses(t *testing.T) {
	svc := newTestService(&mockRepo{})
	ctx := actorCtx()
	tests := map[string]Action{
		"approved":  ActionApprove,
		"denied":    ActionDeny,
		"cancelled": ActionCancel,
		"submitted": ActionSubmit,
		"pending":   ActionUpdate,
	}
	for status, want := range tests {
		e := svc.LogStatusChange(ctx, "a", "draft", status, "")
		assert.Equal(t, want, e.Action, status)
		assert.Equal(t, status, *e.NewStatus)
		assert.Equal(t, "draft", *e.OldStatus)
	}
}

func TestQuery_DefaultsAndValidation(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)
	ctx := actorCtx()
	for i := 0; i < 3; i++ {
		svc.LogAction(ctx, "a", ActionView, Options{})
	}
	svc.LogAction(ctx, "b", ActionDelete, Options{})

	items, total, err := svc.Query(ctx, Filter{AuthorizationID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 3)

	items, _, err = svc.Query(ctx, Filter{Category: CategoryLifecycle})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].AuthorizationID)

	_, _, err = svc.Query(ctx, Filter{Action: "archive"})
	assert.Error(t, err)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, _, err = svc.Query(ctx, Filter{From: &from, To: &to})
	assert.Error(t, err)
}

type stubTx struct{ pgx.Tx }

type stubBeginner struct{}

func (stubBeginner) Begin(context.Context) (pgx.Tx, error) { return &stubTx{}, nil }

func TestLogAction_WritesOutsideCallerTransaction(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, zerolog.Nop())
	ctx, tx, err := db.WithTx(db.WithCompany(context.Background(), "acme"), stubBeginner{})
	require.NoError(t, err)
	require.NotNil(t, tx)

	e := svc.LogAction(ctx, "auth-1", ActionUpdate, Options{})
	require.NotNil(t, e)
	assert.False(t, repo.inTx)
	require.NotNil(t, e.CompanyID)
	assert.Equal(t, "acme", *e.CompanyID)
}
