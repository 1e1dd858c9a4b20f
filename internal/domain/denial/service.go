package denial

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/insight"
	"github.com/rcm/rcm/internal/platform/metrics"
)

// Insight is the subset of the insight client the orchestrator uses.
type Insight interface {
	Triage(ctx context.Context, denials []insight.DenialRecord) (*insight.TriageResult, error)
	Analyze(ctx context.Context, denialID, claimID string) (*insight.Analysis, error)
	DraftAppeal(ctx context.Context, req insight.AppealRequest) (*insight.AppealDraft, error)
}

// Auditor records appeal actions.
type Auditor interface {
	LogAppeal(ctx context.Context, resourceID, resourceType, reason string, details map[string]interface{}) *audit.Entry
}

const auditResourceType = "claim_denial"

type Service struct {
	repo      Repository
	insight   Insight
	auditor   Auditor
	workspace *Workspace
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewService(repo Repository, ins Insight, auditor Auditor, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		insight:   ins,
		auditor:   auditor,
		workspace: NewWorkspace(),
		metrics:   m,
		logger:    logger.With().Str("component", "denial").Logger(),
	}
}

func (s *Service) Workspace() *Workspace { return s.workspace }

func operator(ctx context.Context) string {
	if id := auth.UserIDFromContext(ctx); id != "" {
		return id
	}
	return "anonymous"
}

// LoadDenials returns up to LoadLimit of the newest denials paired with their
// claims. With a company the query matches that company or untagged rows; if
// that query fails the load is retried without the company filter.
func (s *Service) LoadDenials(ctx context.Context, companyID string) ([]Pair, error) {
	recs, err := s.listDenials(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load denials: %w", err)
	}
	denials := make([]Denial, len(recs))
	for i, rec := range recs {
		denials[i] = denialFromRecord(rec)
	}
	claims, err := s.resolveClaims(ctx, denials)
	if err != nil {
		return nil, fmt.Errorf("resolve claims: %w", err)
	}

	pairs := make([]Pair, len(denials))
	for i, d := range denials {
		pairs[i] = Pair{Denial: d, Claim: claims[d.ClaimID]}
	}
	s.logger.Debug().Int("denials", len(pairs)).Int("claims", len(claims)).Msg("denials loaded")
	return pairs, nil
}

func (s *Service) listDenials(ctx context.Context, companyID string) ([]db.Record, error) {
	if companyID == "" {
		return s.repo.ListDenials(ctx, "", LoadLimit)
	}
	recs, err := s.repo.ListDenials(ctx, companyID, LoadLimit)
	if err == nil {
		s.logger.Debug().Str("company_id", companyID).Int("rows", len(recs)).Msg("company-scoped denial query")
		return recs, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	s.logger.Warn().Err(err).Str("company_id", companyID).Msg("company-scoped denial query failed, retrying unscoped")
	recs, err = s.repo.ListDenials(ctx, "", LoadLimit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("rows", len(recs)).Msg("unscoped denial query")
	return recs, nil
}

// resolveClaims looks claim ids up in both claim tables. When an id is in
// both, the institutional row wins. A table that cannot be read is skipped
// as long as the other one answers.
func (s *Service) resolveClaims(ctx context.Context, denials []Denial) (map[string]*Claim, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range denials {
		if d.ClaimID != "" && !seen[d.ClaimID] {
			seen[d.ClaimID] = true
			ids = append(ids, d.ClaimID)
		}
	}
	out := make(map[string]*Claim)
	if len(ids) == 0 {
		return out, nil
	}

	var failures []error
	for _, table := range []string{TableProfessional, TableInstitutional} {
		recs, err := s.repo.ClaimsByID(ctx, table, ids)
		if err != nil {
			s.logger.Warn().Err(err).Str("table", table).Msg("claim lookup failed")
			failures = append(failures, err)
			continue
		}
		for _, rec := range recs {
			c := claimFromRecord(rec, table)
			if prev, ok := out[c.ID]; ok {
				s.logger.Warn().Str("claim_id", c.ID).Str("kept", table).Str("dropped", prev.Source).
					Msg("claim id present in both claim tables")
			}
			out[c.ID] = c
		}
	}
	if len(failures) == 2 {
		return nil, errors.Join(failures...)
	}
	return out, nil
}

// GetPair loads one denial of the request's company and its claim.
func (s *Service) GetPair(ctx context.Context, denialID string) (*Pair, error) {
	rec, err := s.repo.GetDenial(ctx, denialID, db.CompanyFromContext(ctx))
	if err != nil {
		return nil, err
	}
	d := denialFromRecord(rec)
	claims, err := s.resolveClaims(ctx, []Denial{d})
	if err != nil {
		return nil, fmt.Errorf("resolve claims: %w", err)
	}
	return &Pair{Denial: d, Claim: claims[d.ClaimID]}, nil
}

// RunTriage sends the first MaxTriageBatch pairs to the triage capability.
// Any failure aborts the whole batch.
func (s *Service) RunTriage(ctx context.Context, pairs []Pair) (*insight.TriageResult, error) {
	if len(pairs) > MaxTriageBatch {
		pairs = pairs[:MaxTriageBatch]
	}
	batch := make([]insight.DenialRecord, len(pairs))
	for i, p := range pairs {
		batch[i] = p.Flatten()
	}
	s.metrics.TriageBatch(len(batch))

	res, err := s.insight.Triage(ctx, batch)
	if err != nil {
		s.logger.Error().Err(err).Int("batch", len(batch)).Msg("triage failed")
		return nil, fmt.Errorf("%w: %w", ErrInsight, err)
	}
	s.logger.Info().Int("batch", len(batch)).Int("queue", len(res.Queue)).Int("clusters", len(res.Clusters)).Msg("triage complete")
	return res, nil
}

// OpenAnalysis asks for a per-denial analysis. Failures yield a view with
// Available false instead of an error.
func (s *Service) OpenAnalysis(ctx context.Context, p Pair) *AnalysisView {
	op := operator(ctx)
	s.workspace.BeginAnalysis(op, p.Denial.ID)

	view := &AnalysisView{DenialID: p.Denial.ID, ClaimID: p.Denial.ClaimID}
	a, err := s.insight.Analyze(ctx, p.Denial.ID, p.Denial.ClaimID)
	if err != nil {
		s.logger.Warn().Err(err).Str("denial_id", p.Denial.ID).Msg("denial analysis unavailable")
		s.workspace.RecordAnalysis(op, p.Denial.ID, nil)
		view.Message = "Analysis unavailable: " + err.Error()
		return view
	}
	shown := a.ForDisplay()
	s.workspace.RecordAnalysis(op, p.Denial.ID, &shown)
	view.Available = true
	view.Analysis = &shown
	return view
}

// GenerateAppeal drafts an appeal letter and records an appeal workflow owned
// by the requesting user.
func (s *Service) GenerateAppeal(ctx context.Context, p Pair, analysisContext map[string]interface{}) (*AppealWorkflow, error) {
	actorID := auth.UserIDFromContext(ctx)
	if actorID == "" {
		return nil, ErrNoActor
	}

	draft, err := s.insight.DraftAppeal(ctx, insight.AppealRequest{
		DenialID:   p.Denial.ID,
		ClaimID:    p.Denial.ClaimID,
		AppealType: AppealTypeStandard,
		ActorID:    actorID,
		Context:    analysisContext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsight, err)
	}

	w := &AppealWorkflow{
		ID:           uuid.New(),
		DenialID:     p.Denial.ID,
		ClaimID:      optional(p.Denial.ClaimID),
		AppealType:   AppealTypeStandard,
		Status:       WorkflowDraft,
		AppealLetter: draft.AppealLetter,
		OwnerID:      actorID,
		CompanyID:    optional(db.CompanyFromContext(ctx)),
	}
	if err := s.repo.CreateWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("create appeal workflow: %w", err)
	}

	s.auditor.LogAppeal(ctx, p.Denial.ID, auditResourceType, "Appeal drafted", map[string]interface{}{
		"workflow_id": w.ID.String(),
		"claim_id":    p.Denial.ClaimID,
		"denial_code": p.Denial.DenialCode,
		"appeal_type": w.AppealType,
	})
	s.workspace.RecordAppeal(actorID, p.Denial.ID, w.ID.String(), w.AppealLetter)
	s.logger.Info().Str("denial_id", p.Denial.ID).Str("workflow_id", w.ID.String()).Msg("appeal drafted")
	return w, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
