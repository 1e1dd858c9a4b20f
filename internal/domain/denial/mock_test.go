package denial

import (
	"context"
	"errors"
	"time"

	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/insight"
)

type mockRepo struct {
	denials      []db.Record
	claims       map[string][]db.Record
	scopedErr    error
	claimErr     map[string]error
	listCalls    []string
	claimLookups int
	workflows    []*AppealWorkflow
	workflowErr  error
}

func (m *mockRepo) ListDenials(_ context.Context, companyID string, limit int) ([]db.Record, error) {
	m.listCalls = append(m.listCalls, companyID)
	if companyID != "" && m.scopedErr != nil {
		return nil, m.scopedErr
	}
	var out []db.Record
	for _, d := range m.denials {
		if companyID != "" && d["company_id"] != nil && d["company_id"] != companyID {
			continue
		}
		out = append(out, d)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) GetDenial(_ context.Context, id, companyID string) (db.Record, error) {
	for _, d := range m.denials {
		if companyID != "" && d["company_id"] != nil && d["company_id"] != companyID {
			continue
		}
		if d["id"] == id {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ClaimsByID(_ context.Context, table string, ids []string) ([]db.Record, error) {
	m.claimLookups++
	if err := m.claimErr[table]; err != nil {
		return nil, err
	}
	want := make(map[string]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []db.Record
	for _, c := range m.claims[table] {
		if want[c["id"].(string)] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateWorkflow(_ context.Context, w *AppealWorkflow) error {
	if m.workflowErr != nil {
		return m.workflowErr
	}
	w.CreatedAt = time.Now()
	m.workflows = append(m.workflows, w)
	return nil
}

type fakeInsight struct {
	batches    [][]insight.DenialRecord
	triage     *insight.TriageResult
	triageErr  error
	analysis   *insight.Analysis
	analyzeErr error
	appeals    []insight.AppealRequest
	letter     string
	appealErr  error
	calls      int
}

func (f *fakeInsight) Triage(_ context.Context, denials []insight.DenialRecord) (*insight.TriageResult, error) {
	f.calls++
	f.batches = append(f.batches, denials)
	if f.triageErr != nil {
		return nil, f.triageErr
	}
	if f.triage == nil {
		return &insight.TriageResult{Queue: []insight.QueueItem{}, Clusters: []insight.Cluster{}}, nil
	}
	return f.triage, nil
}

func (f *fakeInsight) Analyze(_ context.Context, denialID, claimID string) (*insight.Analysis, error) {
	f.calls++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	a := *f.analysis
	a.DenialID, a.ClaimID = denialID, claimID
	return &a, nil
}

func (f *fakeInsight) DraftAppeal(_ context.Context, req insight.AppealRequest) (*insight.AppealDraft, error) {
	f.calls++
	f.appeals = append(f.appeals, req)
	if f.appealErr != nil {
		return nil, f.appealErr
	}
	return &insight.AppealDraft{AppealLetter: f.letter}, nil
}

// auditRepo backs a real audit.Service so appeal entries are classified the
// same way production ones are.
type auditRepo struct {
	entries []*audit.Entry
}

func (r *auditRepo) Insert(_ context.Context, e *audit.Entry) error {
	e.CreatedAt = time.Now()
	r.entries = append(r.entries, e)
	return nil
}

func (r *auditRepo) Query(context.Context, audit.Filter) ([]*audit.Entry, int, error) {
	return nil, 0, errors.New("not implemented")
}
