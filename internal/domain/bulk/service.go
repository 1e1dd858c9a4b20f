package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/export"
	"github.com/rcm/rcm/internal/platform/metrics"
)

// Auditor records changes to authorization requests.
type Auditor interface {
	LogAction(ctx context.Context, authorizationID string, action audit.Action, opts audit.Options) *audit.Entry
}

type Service struct {
	repo    Repository
	auditor Auditor
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, auditor Auditor, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		metrics: m,
		logger:  logger.With().Str("component", "bulk").Logger(),
		now:     time.Now,
	}
}

func (s *Service) prepare(target Target, ids []string) (string, error) {
	table, err := target.Table()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: ids are required", ErrInvalidRequest)
	}
	return table, nil
}

func (s *Service) finish(r Result, auditFn func(id string)) *Result {
	s.metrics.BulkResult(string(r.Operation), string(r.Target), r.Successful, r.Failed)
	ev := s.logger.Info()
	if r.Failed > 0 {
		ev = s.logger.Warn()
	}
	ev.Str("operation", string(r.Operation)).Str("target", string(r.Target)).
		Int("total", r.Total).Int("successful", r.Successful).Int("failed", r.Failed).
		Msg("bulk operation finished")
	if r.Target == TargetAuthorization && auditFn != nil {
		for _, id := range r.Succeeded {
			auditFn(id)
		}
	}
	return &r
}

// UpdateStatus sets status on every id in one statement.
func (s *Service) UpdateStatus(ctx context.Context, target Target, ids []string, status string) (*Result, error) {
	return s.updateStatus(ctx, OpStatusUpdate, target, ids, status, "Bulk status update")
}

// Archive moves every id to the archived status.
func (s *Service) Archive(ctx context.Context, target Target, ids []string) (*Result, error) {
	return s.updateStatus(ctx, OpArchive, target, ids, StatusArchived, "Bulk archive")
}

func (s *Service) updateStatus(ctx context.Context, op Operation, target Target, ids []string, status, reason string) (*Result, error) {
	table, err := s.prepare(target, ids)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(status) == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidRequest)
	}
	returned, stmtErr := s.repo.UpdateStatus(ctx, table, ids, status)
	r := NewResult(op, target, ids, returned, stmtErr, msgUpdateFailed)
	return s.finish(r, func(id string) {
		s.auditor.LogAction(ctx, id, audit.ActionUpdate, audit.Options{
			NewValues: map[string]interface{}{"status": status},
			NewStatus: status,
			Reason:    reason,
		})
	}), nil
}

// Assign sets the assignee and assignment time on every id.
func (s *Service) Assign(ctx context.Context, target Target, ids []string, assigneeID string) (*Result, error) {
	table, err := s.prepare(target, ids)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(assigneeID) == "" {
		return nil, fmt.Errorf("%w: assignee is required", ErrInvalidRequest)
	}
	at := s.now().UTC()
	returned, stmtErr := s.repo.Assign(ctx, table, ids, assigneeID, at)
	r := NewResult(OpAssignment, target, ids, returned, stmtErr, msgUpdateFailed)
	return s.finish(r, func(id string) {
		s.auditor.LogAction(ctx, id, audit.ActionUpdate, audit.Options{
			NewValues: map[string]interface{}{"assigned_to": assigneeID, "assigned_at": at},
			Reason:    "Bulk assignment",
		})
	}), nil
}

// Delete removes every id.
func (s *Service) Delete(ctx context.Context, target Target, ids []string) (*Result, error) {
	table, err := s.prepare(target, ids)
	if err != nil {
		return nil, err
	}
	returned, stmtErr := s.repo.Delete(ctx, table, ids)
	r := NewResult(OpDelete, target, ids, returned, stmtErr, msgDeleteFailed)
	return s.finish(r, func(id string) {
		s.auditor.LogAction(ctx, id, audit.ActionDelete, audit.Options{Reason: "Bulk delete"})
	}), nil
}

// Export renders the selected rows. PDF is not offered for bulk exports.
func (s *Service) Export(ctx context.Context, target Target, ids []string, format export.Format) (*ExportFile, error) {
	table, err := s.prepare(target, ids)
	if err != nil {
		return nil, err
	}
	switch format {
	case export.FormatCSV, export.FormatJSON, export.FormatExcel:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}

	cols, records, err := s.repo.Fetch(ctx, table, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	if records == nil {
		records = []db.Record{}
	}

	var data []byte
	switch format {
	case export.FormatCSV:
		data = []byte(export.CSV(cols, records))
	case export.FormatJSON:
		data, err = export.JSON(records)
	case export.FormatExcel:
		data, err = export.Excel(string(target), cols, records)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", format, err)
	}

	s.metrics.BulkResult(string(OpExport), string(target), len(records), len(ids)-len(records))
	if target == TargetAuthorization {
		for _, rec := range records {
			s.auditor.LogAction(ctx, fmt.Sprint(rec["id"]), audit.ActionExport, audit.Options{Notes: "Exported as " + string(format)})
		}
	}
	return &ExportFile{
		Filename:    export.Filename(string(target), format, s.now()),
		ContentType: format.ContentType(),
		Data:        data,
		Rows:        len(records),
	}, nil
}
