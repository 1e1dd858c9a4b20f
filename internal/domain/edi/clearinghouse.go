package edi

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rcm/rcm/internal/platform/x12"
)

// Clearinghouse exchanges X12 documents with payers. Send returns the raw
// response interchange.
type Clearinghouse interface {
	Send(ctx context.Context, payload string) (string, error)
}

// SimulatedClearinghouse answers 276 inquiries and 837 submissions with a
// 277. The outcome is a pure function of the claim reference, so repeated
// calls for the same claim agree.
type SimulatedClearinghouse struct {
	ID  string
	Now func() time.Time
}

func NewSimulatedClearinghouse(id string) *SimulatedClearinghouse {
	return &SimulatedClearinghouse{ID: id, Now: func() time.Time { return time.Now().UTC() }}
}

type simOutcome struct {
	category string
	code     string
	paidPct  float64
	message  string
}

// Claim status outcomes, indexed by hash.
var statusOutcomes = []simOutcome{
	{category: "P1", code: "20", message: "Pending: in process"},
	{category: "A2", code: "20", message: "Accepted for adjudication"},
	{category: "F1", code: "65", paidPct: 0.8, message: "Finalized: payment issued"},
	{category: "F2", code: "88", message: "CO-50: Non-covered service, not deemed a medical necessity"},
	{category: "A7", code: "21", message: "Missing or invalid subscriber information"},
}

func (s *SimulatedClearinghouse) Send(ctx context.Context, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ic, err := x12.Parse(payload)
	if err != nil {
		return "", fmt.Errorf("simulated clearinghouse: %w", err)
	}

	var info x12.StatusInfo
	switch ic.TransactionType {
	case x12.Type276:
		info = s.claimStatus(ic)
	case x12.Type837:
		info = s.acknowledge(ic)
	default:
		return "", fmt.Errorf("simulated clearinghouse: %w %s", ErrUnsupportedType, ic.TransactionType)
	}
	info.EffectiveOn = s.Now()

	return x12.Generate(x12.Type277, x12.Envelope{
		SenderID:           s.ID,
		ReceiverID:         ic.SenderID,
		InterchangeControl: ic.ControlNumber,
		Time:               info.EffectiveOn,
	}, x12.Build277(info))
}

func (s *SimulatedClearinghouse) claimStatus(ic *x12.Interchange) x12.StatusInfo {
	info := x12.StatusInfo{}
	for _, seg := range ic.Body() {
		switch {
		case seg.ID == "TRN":
			info.TraceID = seg.Element(2)
		case seg.ID == "REF" && seg.Element(1) == "EJ":
			info.ClaimID = seg.Element(2)
		case seg.ID == "AMT" && seg.Element(1) == "T3":
			info.ChargeAmount = x12.ParseAmount(seg.Element(2))
		}
	}
	o := statusOutcomes[bucket(info.ClaimID, len(statusOutcomes))]
	info.Category, info.Code, info.Message = o.category, o.code, o.message
	info.PaidAmount = info.ChargeAmount * o.paidPct
	return info
}

// acknowledge accepts nine in ten submissions.
func (s *SimulatedClearinghouse) acknowledge(ic *x12.Interchange) x12.StatusInfo {
	info := x12.StatusInfo{}
	if clm := ic.First("CLM"); clm != nil {
		info.ClaimID = clm.Element(1)
		info.ChargeAmount = x12.ParseAmount(clm.Element(2))
	}
	info.TraceID = info.ClaimID
	if bucket(info.ClaimID, 10) == 0 {
		info.Category, info.Code, info.Message = "A3", "21", "Claim returned as unprocessable: invalid subscriber id"
		return info
	}
	info.Category, info.Code, info.Message = "A1", "20", "Claim received"
	return info
}

func bucket(ref string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ref))
	return int(h.Sum32() % uint32(n))
}
