package audit

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/export"
	"github.com/rcm/rcm/internal/platform/validate"
	"github.com/rcm/rcm/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit", auth.RequireRole("admin", "billing"))
	g.GET("", h.Query)
	g.GET("/export", h.Export)
	g.POST("", h.Log)
}

type logRequest struct {
	AuthorizationID string `json:"authorization_id" validate:"required"`
	Action          Action `json:"action" validate:"required"`
	Options
}

func (h *Handler) Log(c echo.Context) error {
	var req logRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Action.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action: "+string(req.Action))
	}
	entry := h.svc.LogAction(c.Request().Context(), req.AuthorizationID, req.Action, req.Options)
	if entry == nil {
		// The write is best effort; the caller's operation is unaffected.
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusCreated, entry)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	pg := pagination.FromContext(c)
	f := Filter{
		AuthorizationID: c.QueryParam("authorization_id"),
		UserID:          c.QueryParam("user_id"),
		Action:          Action(c.QueryParam("action")),
		Category:        c.QueryParam("category"),
		Limit:           pg.Limit,
		Offset:          pg.Offset,
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := c.QueryParam(key)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+key+" date")
		}
		*dst = &t
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (h *Handler) Query(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.Query(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if items == nil {
		items = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pagination.Params{Limit: f.Limit, Offset: f.Offset}))
}

var exportColumns = []string{
	"created_at", "authorization_id", "resource_type", "action", "action_category", "severity",
	"user_id", "user_email", "user_name", "old_status", "new_status", "reason", "notes",
}

// Export downloads the matching entries as CSV.
func (h *Handler) Export(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, _, err := h.svc.Query(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	records := make([]export.Record, 0, len(items))
	for _, e := range items {
		records = append(records, export.Record{
			"created_at":       e.CreatedAt,
			"authorization_id": e.AuthorizationID,
			"resource_type":    e.ResourceType,
			"action":           string(e.Action),
			"action_category":  e.ActionCategory,
			"severity":         e.Severity,
			"user_id":          e.UserID,
			"user_email":       e.UserEmail,
			"user_name":        e.UserName,
			"old_status":       e.OldStatus,
			"new_status":       e.NewStatus,
			"reason":           e.Reason,
			"notes":            e.Notes,
		})
	}
	filename := export.Filename("audit", export.FormatCSV, time.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, export.FormatCSV.ContentType(), []byte(export.CSV(exportColumns, records)))
}
