package denial

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/insight"
	"github.com/rcm/rcm/pkg/coerce"
)

var (
	ErrNotFound = errors.New("denial not found")
	// ErrNoActor is returned before any external call when the request
	// carries no authenticated user.
	ErrNoActor = errors.New("an authenticated user is required")
	ErrInsight = errors.New("insight capability failed")
)

const (
	// LoadLimit bounds how many of the newest denials are loaded.
	LoadLimit = 200
	// MaxTriageBatch bounds the payload sent to the triage capability.
	MaxTriageBatch = 80

	AppealTypeStandard = "standard"
	WorkflowDraft      = "draft"

	TableInstitutional = "claims"
	TableProfessional  = "professional_claims"
)

// Denial is a read-only view over a claim_denials row.
type Denial struct {
	ID           string    `json:"id"`
	ClaimID      string    `json:"claim_id,omitempty"`
	DenialCode   string    `json:"denial_code"`
	DenialReason string    `json:"denial_reason"`
	DeniedAmount float64   `json:"denied_amount"`
	DenialDate   string    `json:"denial_date,omitempty"`
	PayerName    string    `json:"payer_name,omitempty"`
	Raw          db.Record `json:"-"`
}

// Claim is a read-only view over a claims or professional_claims row.
type Claim struct {
	ID             string    `json:"id"`
	ClaimNumber    string    `json:"claim_number,omitempty"`
	PatientName    string    `json:"patient_name,omitempty"`
	PayerName      string    `json:"payer_name,omitempty"`
	TotalCharge    float64   `json:"total_charge"`
	ProcedureCodes []string  `json:"procedure_codes"`
	DiagnosisCodes []string  `json:"diagnosis_codes"`
	Source         string    `json:"source"`
	Raw            db.Record `json:"-"`
}

// Pair is a denial with its resolved claim. Claim is nil when the claim id
// did not resolve in either claim table.
type Pair struct {
	Denial Denial `json:"denial"`
	Claim  *Claim `json:"claim"`
}

type Totals struct {
	TotalDenials      int     `json:"totalDenials"`
	TotalDeniedAmount float64 `json:"totalDeniedAmount"`
}

// AppealWorkflow maps to appeal_workflows.
type AppealWorkflow struct {
	ID           uuid.UUID `json:"id"`
	DenialID     string    `json:"denial_id"`
	ClaimID      *string   `json:"claim_id,omitempty"`
	AppealType   string    `json:"appeal_type"`
	Status       string    `json:"status"`
	AppealLetter string    `json:"appeal_letter"`
	OwnerID      string    `json:"owner_id"`
	CompanyID    *string   `json:"company_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnalysisView is what the analysis dialog shows. A failed analysis is not
// an error: Available is false and Message says why.
type AnalysisView struct {
	DenialID  string            `json:"denialId"`
	ClaimID   string            `json:"claimId,omitempty"`
	Available bool              `json:"available"`
	Analysis  *insight.Analysis `json:"analysis,omitempty"`
	Message   string            `json:"message,omitempty"`
}

func denialFromRecord(rec db.Record) Denial {
	return Denial{
		ID:           coerce.ToString(rec["id"]),
		ClaimID:      coerce.ToString(rec["claim_id"]),
		DenialCode:   coerce.ToString(rec["denial_code"]),
		DenialReason: coerce.ToString(rec["denial_reason"]),
		DeniedAmount: coerce.ToNumber(rec["denied_amount"]),
		DenialDate:   day(rec["denial_date"]),
		PayerName:    coerce.ToString(rec["payer_name"]),
		Raw:          rec,
	}
}

func claimFromRecord(rec db.Record, source string) *Claim {
	c := &Claim{
		ID:             coerce.ToString(rec["id"]),
		ClaimNumber:    coerce.ToString(rec["claim_number"]),
		PatientName:    coerce.ToString(rec["patient_name"]),
		PayerName:      coerce.ToString(rec["payer_name"]),
		TotalCharge:    coerce.ToNumber(rec["total_charge"]),
		ProcedureCodes: codes(rec["procedure_codes"]),
		DiagnosisCodes: codes(rec["diagnosis_codes"]),
		Source:         source,
		Raw:            rec,
	}
	if c.PatientName == "" {
		first, last := coerce.ToString(rec["patient_first_name"]), coerce.ToString(rec["patient_last_name"])
		c.PatientName = strings.TrimSpace(first + " " + last)
	}
	return c
}

func day(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	}
	return coerce.ToString(v)
}

// codes reads a code list stored as a text array, a JSON array or a
// comma-separated string.
func codes(v interface{}) []string {
	out := []string{}
	switch x := v.(type) {
	case []string:
		for _, s := range x {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, e := range x {
			if s := strings.TrimSpace(coerce.ToString(e)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(x, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Flatten builds the record sent to the triage capability.
func (p Pair) Flatten() insight.DenialRecord {
	r := insight.DenialRecord{
		DenialID:       p.Denial.ID,
		ClaimID:        p.Denial.ClaimID,
		DenialCode:     p.Denial.DenialCode,
		DenialReason:   p.Denial.DenialReason,
		DeniedAmount:   p.Denial.DeniedAmount,
		PayerName:      p.Denial.PayerName,
		ProcedureCodes: []string{},
		DiagnosisCodes: []string{},
		DenialDate:     p.Denial.DenialDate,
	}
	if p.Claim != nil {
		if p.Claim.PayerName != "" {
			r.PayerName = p.Claim.PayerName
		}
		r.ProcedureCodes = p.Claim.ProcedureCodes
		r.DiagnosisCodes = p.Claim.DiagnosisCodes
	}
	return r
}

// Filter keeps pairs whose denial code, denial reason, claim number or
// patient name contains term, ignoring case. An empty term keeps everything
// in order.
func Filter(pairs []Pair, term string) []Pair {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return pairs
	}
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		fields := []string{p.Denial.DenialCode, p.Denial.DenialReason}
		if p.Claim != nil {
			fields = append(fields, p.Claim.ClaimNumber, p.Claim.PatientName)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// ComputeTotals counts pairs and sums their denied amounts.
func ComputeTotals(pairs []Pair) Totals {
	t := Totals{TotalDenials: len(pairs)}
	for _, p := range pairs {
		t.TotalDeniedAmount += coerce.ToNumber(p.Denial.DeniedAmount)
	}
	return t
}
