package denial

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/insight"
)

func newTestHandler(ins *fakeInsight) (*Handler, *mockRepo, *echo.Echo) {
	repo := seedRepo()
	svc, _ := newTestService(repo, ins)
	return NewHandler(svc), repo, echo.New()
}

func TestHandler_List(t *testing.T) {
	h, _, e := newTestHandler(&fakeInsight{})
	req := httptest.NewRequest(http.MethodGet, "/?q=co-", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req.WithContext(actorCtx()), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Totals.TotalDenials != 2 || resp.Totals.TotalDeniedAmount != 200.5 {
		t.Errorf("unexpected totals: %+v", resp.Totals)
	}
}

func TestHandler_Triage(t *testing.T) {
	ins := &fakeInsight{triage: &insight.TriageResult{
		Queue: make([]insight.QueueItem, 15),
	}}
	h, _, e := newTestHandler(ins)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"denial_ids":["d1","d2"]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Triage(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp triageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Queue) != 10 || resp.BatchSize != 2 {
		t.Errorf("queue=%d batch=%d", len(resp.Queue), resp.BatchSize)
	}
	if len(ins.batches[0]) != 2 {
		t.Errorf("expected 2 records sent, got %d", len(ins.batches[0]))
	}
}

func TestHandler_Triage_UpstreamError(t *testing.T) {
	h, _, e := newTestHandler(&fakeInsight{triageErr: errors.New("boom")})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.Triage(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %v", err)
	}
}

func TestHandler_Analysis_UnavailableIsOK(t *testing.T) {
	h, _, e := newTestHandler(&fakeInsight{analyzeErr: errors.New("timeout")})
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil).WithContext(actorCtx()), rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")
	if err := h.Analysis(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view AnalysisView
	_ = json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Available || view.Message == "" {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestHandler_Analysis_NotFound(t *testing.T) {
	h, _, e := newTestHandler(&fakeInsight{})
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")
	he, ok := h.Analysis(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404")
	}
}

func TestHandler_Appeal(t *testing.T) {
	h, repo, e := newTestHandler(&fakeInsight{letter: "Dear payer"})

	anon := e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), httptest.NewRecorder())
	anon.SetParamNames("id")
	anon.SetParamValues("d1")
	if he, ok := h.Appeal(anon).(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an actor")
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"analysis_context":{"rootCause":"docs"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req.WithContext(actorCtx()), rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")
	if err := h.Appeal(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated || len(repo.workflows) != 1 {
		t.Errorf("code=%d workflows=%d", rec.Code, len(repo.workflows))
	}

	ws := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(actorCtx()), httptest.NewRecorder())
	if err := h.Workspace(ws); err != nil {
		t.Fatalf("workspace: %v", err)
	}
	if !strings.Contains(ws.Response().Writer.(*httptest.ResponseRecorder).Body.String(), `"stage":"appeal_drafted"`) {
		t.Error("workspace does not show the drafted appeal")
	}
}

func TestHandler_OtherCompanyDenialIsNotFound(t *testing.T) {
	ins := &fakeInsight{letter: "Dear payer"}
	h, repo, e := newTestHandler(ins)

	for name, fn := range map[string]echo.HandlerFunc{"analysis": h.Analysis, "appeal": h.Appeal} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req.WithContext(actorCtx()), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues("d4")
		if he, ok := fn(c).(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404", name)
		}
	}
	if ins.calls != 0 || len(repo.workflows) != 0 {
		t.Errorf("calls=%d workflows=%d", ins.calls, len(repo.workflows))
	}
}
