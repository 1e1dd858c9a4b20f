package edi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/edi", auth.RequireRole("admin", "billing"))
	g.POST("/eligibility", h.CheckEligibility)
	g.POST("/claim-status", h.CheckClaimStatus)
	g.POST("/claims", h.SubmitClaim)
	g.POST("/remittances", h.ProcessRemittance)
	g.POST("/x12/:type", h.GenerateX12)
	g.GET("/transactions/:id", h.GetTransaction)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrImmutableTransaction), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrClearinghouse):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CheckEligibility(c echo.Context) error {
	var req EligibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	resp, err := h.svc.CheckEligibility(ctx, req, db.CompanyFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CheckClaimStatus(c echo.Context) error {
	var req ClaimStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.CheckClaimStatus(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SubmitClaim(c echo.Context) error {
	var sub ClaimSubmission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	tx, err := h.svc.SubmitClaim(ctx, sub, db.CompanyFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, tx)
}

func (h *Handler) ProcessRemittance(c echo.Context) error {
	var in RemittanceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	advice, err := h.svc.ProcessRemittance(ctx, in, db.CompanyFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, advice)
}

func (h *Handler) GenerateX12(c echo.Context) error {
	var data X12Request
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	txType := c.Param("type")
	out, err := h.svc.GenerateX12Format(txType, data)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"transaction_type": txType,
		"content":          out,
	})
}

func (h *Handler) GetTransaction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	tx, err := h.svc.GetTransaction(ctx, id, db.CompanyFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tx)
}
