// Package insight calls the hosted triage, denial-analysis and appeal-drafting
// capabilities. Responses are untrusted: every field is read through gjson
// and coerced, missing fields fall back to zero values.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/rcm/rcm/internal/platform/metrics"
	"github.com/rcm/rcm/pkg/coerce"
)

const (
	CapabilityTriage   = "denial-triage"
	CapabilityAnalysis = "denial-analysis"
	CapabilityAppeal   = "appeal-draft"
)

// ErrNotConfigured is returned when no base URL was supplied.
var ErrNotConfigured = errors.New("insight service is not configured")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
	enabled bool
}

func NewClient(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}
	return &Client{
		http:    rc,
		metrics: m,
		logger:  logger.With().Str("component", "insight").Logger(),
		enabled: cfg.BaseURL != "",
	}
}

// Triage sends the batch for ranking and clustering.
func (c *Client) Triage(ctx context.Context, denials []DenialRecord) (*TriageResult, error) {
	body, err := c.invoke(ctx, CapabilityTriage, map[string]interface{}{"denials": denials})
	if err != nil {
		return nil, err
	}
	return decodeTriage(body), nil
}

// Analyze requests the root-cause analysis for a single denial.
func (c *Client) Analyze(ctx context.Context, denialID, claimID string) (*Analysis, error) {
	body, err := c.invoke(ctx, CapabilityAnalysis, map[string]interface{}{
		"denialId": denialID,
		"claimId":  claimID,
	})
	if err != nil {
		return nil, err
	}
	a := decodeAnalysis(body)
	if a.DenialID == "" {
		a.DenialID = denialID
	}
	if a.ClaimID == "" {
		a.ClaimID = claimID
	}
	return a, nil
}

// DraftAppeal asks for an appeal letter. An empty letter is an error.
func (c *Client) DraftAppeal(ctx context.Context, req AppealRequest) (*AppealDraft, error) {
	body, err := c.invoke(ctx, CapabilityAppeal, req)
	if err != nil {
		return nil, err
	}
	d := decodeAppeal(body)
	if strings.TrimSpace(d.AppealLetter) == "" {
		return nil, fmt.Errorf("%s: response did not include an appeal letter", CapabilityAppeal)
	}
	return d, nil
}

func (c *Client) invoke(ctx context.Context, capability string, payload interface{}) (gjson.Result, error) {
	if !c.enabled {
		return gjson.Result{}, ErrNotConfigured
	}
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/" + capability)
	if err != nil {
		err = fmt.Errorf("%s: %w", capability, err)
		c.metrics.InsightCall(capability, err)
		return gjson.Result{}, err
	}

	raw := resp.Body()
	if resp.IsError() {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = gjson.GetBytes(raw, "message").String()
		}
		if msg == "" {
			msg = resp.Status()
		}
		err := fmt.Errorf("%s: status %d: %s", capability, resp.StatusCode(), msg)
		c.metrics.InsightCall(capability, err)
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(raw) {
		err := fmt.Errorf("%s: response is not valid JSON", capability)
		c.metrics.InsightCall(capability, err)
		return gjson.Result{}, err
	}

	c.metrics.InsightCall(capability, nil)
	c.logger.Debug().
		Str("capability", capability).
		Dur("latency", time.Since(start)).
		Int("bytes", len(raw)).
		Msg("insight call completed")

	root := gjson.ParseBytes(raw)
	if data := root.Get("data"); data.IsObject() {
		return data, nil
	}
	return root, nil
}

// first returns the first of the given paths that is present.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func str(r gjson.Result, paths ...string) string {
	v := first(r, paths...)
	if !v.Exists() {
		return ""
	}
	return v.String()
}

func num(r gjson.Result, paths ...string) float64 {
	v := first(r, paths...)
	if !v.Exists() {
		return 0
	}
	return coerce.ToNumber(v.Value())
}

func strs(r gjson.Result, paths ...string) []string {
	v := first(r, paths...)
	out := []string{}
	if !v.IsArray() {
		return out
	}
	for _, item := range v.Array() {
		s := item.String()
		if item.IsObject() {
			s = str(item, "title", "action", "description", "text")
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func decodeTriage(r gjson.Result) *TriageResult {
	res := &TriageResult{Queue: []QueueItem{}, Clusters: []Cluster{}}
	for _, q := range first(r, "queue", "prioritizedQueue").Array() {
		if !q.IsObject() {
			continue
		}
		res.Queue = append(res.Queue, QueueItem{
			DenialID:           str(q, "denialId", "denial_id", "id"),
			ClaimID:            str(q, "claimId", "claim_id"),
			Priority:           str(q, "priority"),
			Rationale:          str(q, "rationale", "reason"),
			SuccessProbability: num(q, "successProbability", "predictedSuccess", "success_probability"),
			EstimatedRecovery:  num(q, "estimatedRecovery", "estimatedRecoveryAmount", "estimated_recovery"),
			NextBestAction:     str(q, "nextBestAction", "next_best_action", "action"),
		})
	}
	for _, c := range first(r, "clusters").Array() {
		if !c.IsObject() {
			continue
		}
		res.Clusters = append(res.Clusters, Cluster{
			Label:                str(c, "label", "name", "rootCause"),
			DenialCodes:          strs(c, "denialCodes", "codes"),
			Count:                int(num(c, "count", "size")),
			EstimatedRecoverable: num(c, "estimatedRecoverable", "estimatedRecovery", "recoverableAmount"),
			Suggestions:          strs(c, "suggestions", "remediations", "topSuggestions"),
		})
	}
	return res
}

func decodeAnalysis(r gjson.Result) *Analysis {
	if a := r.Get("analysis"); a.IsObject() {
		r = a
	}
	return &Analysis{
		DenialID:            str(r, "denialId", "denial_id"),
		ClaimID:             str(r, "claimId", "claim_id"),
		RecoveryProbability: num(r, "recoveryProbability", "recovery_probability"),
		RecoveryAmount:      num(r, "recoveryAmount", "estimatedRecovery", "recovery_amount"),
		Appealable:          first(r, "appealable", "isAppealable").Bool(),
		RootCause:           str(r, "rootCause", "root_cause"),
		Actions:             strs(r, "actions", "recommendedActions", "recommended_actions"),
	}
}

func decodeAppeal(r gjson.Result) *AppealDraft {
	if w := r.Get("workflow"); w.IsObject() {
		r = w
	}
	return &AppealDraft{
		WorkflowID:   str(r, "id", "workflowId"),
		AppealLetter: str(r, "appealLetter", "appeal_letter", "letter"),
	}
}
