package denial

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/insight"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/denials", auth.RequireRole("admin", "billing"))
	g.GET("", h.List)
	g.GET("/workspace", h.Workspace)
	g.POST("/triage", h.Triage)
	g.POST("/:id/analysis", h.Analysis)
	g.POST("/:id/appeal", h.Appeal)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNoActor):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsight):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type listResponse struct {
	Data   []Pair `json:"data"`
	Totals Totals `json:"totals"`
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pairs, err := h.svc.LoadDenials(ctx, db.CompanyFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	pairs = Filter(pairs, c.QueryParam("q"))
	return c.JSON(http.StatusOK, listResponse{Data: pairs, Totals: ComputeTotals(pairs)})
}

type triageRequest struct {
	Query     string   `json:"q"`
	DenialIDs []string `json:"denial_ids"`
}

type triageResponse struct {
	insight.TriageResult
	BatchSize int `json:"batchSize"`
}

func (h *Handler) Triage(c echo.Context) error {
	var req triageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	pairs, err := h.svc.LoadDenials(ctx, db.CompanyFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	pairs = Filter(pairs, req.Query)
	if len(req.DenialIDs) > 0 {
		pairs = selectIDs(pairs, req.DenialIDs)
	}
	if len(pairs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no denials to triage")
	}
	res, err := h.svc.RunTriage(ctx, pairs)
	if err != nil {
		return httpError(err)
	}
	batch := len(pairs)
	if batch > MaxTriageBatch {
		batch = MaxTriageBatch
	}
	return c.JSON(http.StatusOK, triageResponse{TriageResult: res.ForDisplay(), BatchSize: batch})
}

func selectIDs(pairs []Pair, ids []string) []Pair {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]Pair, 0, len(ids))
	for _, p := range pairs {
		if want[p.Denial.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handler) Analysis(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.GetPair(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.svc.OpenAnalysis(ctx, *p))
}

type appealRequest struct {
	AnalysisContext map[string]interface{} `json:"analysis_context"`
}

func (h *Handler) Appeal(c echo.Context) error {
	var req appealRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if auth.UserIDFromContext(ctx) == "" {
		return httpError(ErrNoActor)
	}
	p, err := h.svc.GetPair(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	w, err := h.svc.GenerateAppeal(ctx, *p, req.AnalysisContext)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) Workspace(c echo.Context) error {
	entries := h.svc.Workspace().Snapshot(operator(c.Request().Context()))
	return c.JSON(http.StatusOK, map[string]interface{}{"data": entries})
}
