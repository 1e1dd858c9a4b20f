package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/metrics"
)

const writeTimeout = 5 * time.Second

// Service appends audit entries. Writes are best effort: a failed insert is
// logged and counted but never reported to the caller.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(repo Repository, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		logger:  logger.With().Str("component", "audit").Logger(),
	}
}

// LogAction records one action against an authorization (or the resource
// named in opts). The entry is returned for callers that want to echo it;
// it is nil when the write failed.
func (s *Service) LogAction(ctx context.Context, authorizationID string, action Action, opts Options) *Entry {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		actor = auth.UnknownActor
	}

	e := &Entry{
		ID:              uuid.New(),
		AuthorizationID: authorizationID,
		ResourceType:    opts.ResourceType,
		UserID:          actor.ID,
		UserEmail:       actor.Email,
		UserName:        actor.Name,
		Action:          action,
		ActionCategory:  action.Category(),
		Severity:        action.Severity(),
		OldValues:       opts.OldValues,
		NewValues:       opts.NewValues,
		OldStatus:       optional(opts.OldStatus),
		NewStatus:       optional(opts.NewStatus),
		Notes:           optional(opts.Notes),
		Reason:          optional(opts.Reason),
		UserAgent:       optional(auth.UserAgentFromContext(ctx)),
		CompanyID:       optional(db.CompanyFromContext(ctx)),
	}
	if e.ResourceType == "" {
		e.ResourceType = ResourceAuthorization
	}

	// Detached from request cancellation and from any caller transaction,
	// bounded by writeTimeout.
	wctx, cancel := context.WithTimeout(db.WithoutTx(context.WithoutCancel(ctx)), writeTimeout)
	defer cancel()

	if err := s.insert(wctx, e); err != nil {
		s.metrics.AuditFailure()
		s.logger.Error().Err(err).
			Str("authorization_id", authorizationID).
			Str("action", string(action)).
			Str("user_id", actor.ID).
			Msg("failed to write audit entry")
		return nil
	}
	return e
}

func (s *Service) insert(ctx context.Context, e *Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit insert panicked: %v", r)
		}
	}()
	if s.repo == nil {
		return fmt.Errorf("audit repository not configured")
	}
	return s.repo.Insert(ctx, e)
}

func (s *Service) LogCreate(ctx context.Context, authorizationID string, newValues map[string]interface{}) *Entry {
	return s.LogAction(ctx, authorizationID, ActionCreate, Options{
		NewValues: newValues,
		Reason:    "Authorization request created",
	})
}

func (s *Service) LogUpdate(ctx context.Context, authorizationID string, oldValues, newValues map[string]interface{}, reason string) *Entry {
	if reason == "" {
		reason = "Authorization request updated"
	}
	return s.LogAction(ctx, authorizationID, ActionUpdate, Options{
		OldValues: oldValues,
		NewValues: newValues,
		Reason:    reason,
	})
}

// statusActions maps a target status onto the decision or workflow action
// it represents. Other statuses are recorded as updates.
var statusActions = map[string]Action{
	"submitted": ActionSubmit,
	"approved":  ActionApprove,
	"denied":    ActionDeny,
	"cancelled": ActionCancel,
	"appealed":  ActionAppeal,
}

func (s *Service) LogStatusChange(ctx context.Context, authorizationID, oldStatus, newStatus, reason string) *Entry {
	action, ok := statusActions[newStatus]
	if !ok {
		action = ActionUpdate
	}
	if reason == "" {
		reason = fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus)
	}
	return s.LogAction(ctx, authorizationID, action, Options{
		OldStatus: oldStatus,
		NewStatus: newStatus,
		OldValues: map[string]interface{}{"status": oldStatus},
		NewValues: map[string]interface{}{"status": newStatus},
		Reason:    reason,
	})
}

func (s *Service) LogSubmit(ctx context.Context, authorizationID, oldStatus string) *Entry {
	return s.LogAction(ctx, authorizationID, ActionSubmit, Options{
		OldStatus: oldStatus,
		NewStatus: "submitted",
		Reason:    "Submitted to payer",
	})
}

func (s *Service) LogUseVisit(ctx context.Context, authorizationID string, visitsUsed, visitsRemaining int) *Entry {
	return s.LogAction(ctx, authorizationID, ActionUseVisit, Options{
		NewValues: map[string]interface{}{
			"visits_used":      visitsUsed,
			"visits_remaining": visitsRemaining,
		},
		Reason: "Visit used (" + strconv.Itoa(visitsRemaining) + " remaining)",
	})
}

func (s *Service) LogRenewal(ctx context.Context, authorizationID, newAuthorizationID string) *Entry {
	return s.LogAction(ctx, authorizationID, ActionRenew, Options{
		NewValues: map[string]interface{}{"renewed_authorization_id": newAuthorizationID},
		Reason:    "Authorization renewed",
	})
}

// LogAppeal records an appeal. resourceType lets the denial workflow audit
// against claim denials rather than authorizations.
func (s *Service) LogAppeal(ctx context.Context, resourceID, resourceType, reason string, details map[string]interface{}) *Entry {
	if reason == "" {
		reason = "Appeal initiated"
	}
	return s.LogAction(ctx, resourceID, ActionAppeal, Options{
		ResourceType: resourceType,
		NewValues:    details,
		Reason:       reason,
	})
}

// Query returns matching entries newest first.
func (s *Service) Query(ctx context.Context, f Filter) ([]*Entry, int, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, 0, fmt.Errorf("unknown action %q", f.Action)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, fmt.Errorf("date range end precedes start")
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.Query(ctx, f)
}
