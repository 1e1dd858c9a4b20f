package report

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/export"
	"github.com/rcm/rcm/internal/platform/metrics"
)

type Service struct {
	repo    Repository
	tx      db.TxBeginner
	maxRows int
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, maxRows int, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &Service{
		repo:    repo,
		maxRows: maxRows,
		metrics: m,
		logger:  logger.With().Str("component", "report").Logger(),
		now:     time.Now,
	}
}

// WithTransactions makes Import run inside one database transaction begun
// on b. Without it imported definitions are written one at a time.
func (s *Service) WithTransactions(b db.TxBeginner) *Service {
	s.tx = b
	return s
}

func ownerFromContext(ctx context.Context) string {
	if id := auth.UserIDFromContext(ctx); id != "" {
		return id
	}
	return auth.UnknownActor.ID
}

// authorize lets the owner or an admin change a definition.
func authorize(ctx context.Context, d *Definition) error {
	if d.OwnerID == auth.UserIDFromContext(ctx) || auth.HasRole(auth.RolesFromContext(ctx), "admin") {
		return nil
	}
	return ErrForbidden
}

func (s *Service) Create(ctx context.Context, d *Definition) (*Definition, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.ID = uuid.New()
	if d.OwnerID == "" {
		d.OwnerID = ownerFromContext(ctx)
	}
	if companyID := db.CompanyFromContext(ctx); companyID != "" {
		d.CompanyID = &companyID
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create report definition: %w", err)
	}
	s.logger.Info().Str("report_id", d.ID.String()).Str("name", d.Name).Msg("report definition created")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Definition, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the caller's definitions, or every definition in the company
// when all is set.
func (s *Service) List(ctx context.Context, all bool, limit, offset int) ([]*Definition, int, error) {
	owner := ""
	if !all {
		owner = ownerFromContext(ctx)
	}
	return s.repo.List(ctx, owner, limit, offset)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, d *Definition) (*Definition, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, existing); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.ID = existing.ID
	d.OwnerID = existing.OwnerID
	d.CompanyID = existing.CompanyID
	d.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(ctx, existing); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Run loads a saved definition and executes it.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*Definition, *Result, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.execute(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	return d, res, nil
}

// Preview executes an unsaved definition.
func (s *Service) Preview(ctx context.Context, d *Definition) (*Result, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, d)
}

// execute reads at most maxRows source rows; one extra row is requested to
// tell whether the source was truncated.
func (s *Service) execute(ctx context.Context, d *Definition) (*Result, error) {
	start := time.Now()
	rows, err := s.repo.FetchRows(ctx, d.DataSource, s.maxRows+1)
	if err != nil {
		s.metrics.ReportRun(time.Since(start), err)
		return nil, fmt.Errorf("read %s: %w", d.DataSource, err)
	}
	truncated := len(rows) > s.maxRows
	if truncated {
		rows = rows[:s.maxRows]
		s.logger.Warn().Str("report", d.Name).Int("max_rows", s.maxRows).Msg("report source truncated")
	}
	res := Generate(rows, *d)
	res.Metadata.Truncated = truncated
	res.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()
	s.metrics.ReportRun(time.Since(start), nil)
	return res, nil
}

// File is a rendered report download.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "report"
	}
	return s
}

// Export runs a saved definition and renders it.
func (s *Service) Export(ctx context.Context, id uuid.UUID, format export.Format) (*File, error) {
	switch format {
	case export.FormatCSV, export.FormatJSON, export.FormatText, export.FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
	d, res, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := Render(d, res, format)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return &File{
		Filename:    export.Filename(slug(d.Name), format, s.now()),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// Import validates every definition before creating any of them. With
// transactions enabled a failed create rolls back the ones before it.
func (s *Service) Import(ctx context.Context, defs []*Definition) (out []*Definition, err error) {
	for i, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("definition %d (%s): %w", i+1, d.Name, err)
		}
	}

	if s.tx != nil {
		var tx pgx.Tx
		ctx, tx, err = db.WithTx(ctx, s.tx)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
					s.logger.Warn().Err(rbErr).Msg("rollback report import")
				}
				out = nil
				return
			}
			if err = tx.Commit(ctx); err != nil {
				err = fmt.Errorf("commit report import: %w", err)
				out = nil
			}
		}()
	}

	out = make([]*Definition, 0, len(defs))
	for _, d := range defs {
		created, cerr := s.Create(ctx, d)
		if cerr != nil {
			return nil, fmt.Errorf("import %q: %w", d.Name, cerr)
		}
		out = append(out, created)
	}
	return out, nil
}
