package x12

import (
	"strconv"
	"time"
)

// Party is a named entity with an identifier (payer, provider, submitter).
type Party struct {
	Name string
	ID   string
}

// Person is a subscriber or patient.
type Person struct {
	FirstName string
	LastName  string
	MemberID  string
	BirthDate time.Time
}

// EligibilityInquiry is the content of a 270.
type EligibilityInquiry struct {
	TraceID          string
	Payer            Party
	Provider         Party
	Subscriber       Person
	ServiceDate      time.Time
	ServiceTypeCodes []string
	Created          time.Time
}

// Build270 renders the 270 body: information source (payer), receiver
// (provider), subscriber, then one EQ per requested service type.
func Build270(in EligibilityInquiry) []Segment {
	created := orNow(in.Created)
	segs := []Segment{
		Seg("BHT", "0022", "13", in.TraceID, Date(created), created.Format("150405")),
		Seg("HL", "1", "", "20", "1"),
		Seg("NM1", "PR", "2", in.Payer.Name, "", "", "", "", "PI", in.Payer.ID),
		Seg("HL", "2", "1", "21", "1"),
		Seg("NM1", "1P", "2", in.Provider.Name, "", "", "", "", "XX", in.Provider.ID),
		Seg("HL", "3", "2", "22", "0"),
		Seg("TRN", "1", in.TraceID, "9"+padLeft(in.Provider.ID, 9)),
		Seg("NM1", "IL", "1", in.Subscriber.LastName, in.Subscriber.FirstName, "", "", "", "MI", in.Subscriber.MemberID),
	}
	if !in.Subscriber.BirthDate.IsZero() {
		segs = append(segs, Seg("DMG", "D8", Date(in.Subscriber.BirthDate)))
	}
	if !in.ServiceDate.IsZero() {
		segs = append(segs, Seg("DTP", "291", "D8", Date(in.ServiceDate)))
	}
	codes := in.ServiceTypeCodes
	if len(codes) == 0 {
		codes = []string{"30"}
	}
	for _, code := range codes {
		segs = append(segs, Seg("EQ", code))
	}
	return segs
}

// ClaimStatusInquiry is the content of a 276.
type ClaimStatusInquiry struct {
	TraceID         string
	Payer           Party
	Provider        Party
	Subscriber      Person
	ClaimID         string
	PayerClaimID    string
	ChargeAmount    float64
	ServiceDate     time.Time
	ServiceDateThru time.Time
	Created         time.Time
}

func Build276(in ClaimStatusInquiry) []Segment {
	created := orNow(in.Created)
	segs := []Segment{
		Seg("BHT", "0010", "13", in.TraceID, Date(created), created.Format("150405")),
		Seg("HL", "1", "", "20", "1"),
		Seg("NM1", "PR", "2", in.Payer.Name, "", "", "", "", "PI", in.Payer.ID),
		Seg("HL", "2", "1", "21", "1"),
		Seg("NM1", "41", "2", in.Provider.Name, "", "", "", "", "46", in.Provider.ID),
		Seg("HL", "3", "2", "19", "1"),
		Seg("NM1", "1P", "2", in.Provider.Name, "", "", "", "", "XX", in.Provider.ID),
		Seg("HL", "4", "3", "22", "0"),
		Seg("NM1", "IL", "1", in.Subscriber.LastName, in.Subscriber.FirstName, "", "", "", "MI", in.Subscriber.MemberID),
		Seg("TRN", "1", in.TraceID),
		Seg("REF", "EJ", in.ClaimID),
	}
	if in.PayerClaimID != "" {
		segs = append(segs, Seg("REF", "1K", in.PayerClaimID))
	}
	if in.ChargeAmount > 0 {
		segs = append(segs, Seg("AMT", "T3", Amount(in.ChargeAmount)))
	}
	if !in.ServiceDate.IsZero() {
		thru := in.ServiceDateThru
		if thru.IsZero() {
			thru = in.ServiceDate
		}
		segs = append(segs, Seg("DTP", "472", "RD8", Date(in.ServiceDate)+"-"+Date(thru)))
	}
	return segs
}

// ServiceLine is one professional service on an 837P.
type ServiceLine struct {
	ProcedureCode string
	Modifiers     []string
	Charge        float64
	Units         float64
	ServiceDate   time.Time
}

// ProfessionalClaim is the content of an 837P.
type ProfessionalClaim struct {
	ClaimID         string
	Submitter       Party
	Receiver        Party
	BillingProvider Party
	Payer           Party
	Subscriber      Person
	PlaceOfService  string
	DiagnosisCodes  []string
	Lines           []ServiceLine
	Created         time.Time
}

// Total is the sum of line charges.
func (c ProfessionalClaim) Total() float64 {
	var total float64
	for _, l := range c.Lines {
		total += l.Charge
	}
	return total
}

func Build837P(in ProfessionalClaim) []Segment {
	created := orNow(in.Created)
	pos := in.PlaceOfService
	if pos == "" {
		pos = "11"
	}
	segs := []Segment{
		Seg("BHT", "0019", "00", in.ClaimID, Date(created), created.Format("150405"), "CH"),
		Seg("NM1", "41", "2", in.Submitter.Name, "", "", "", "", "46", in.Submitter.ID),
		Seg("NM1", "40", "2", in.Receiver.Name, "", "", "", "", "46", in.Receiver.ID),
		Seg("HL", "1", "", "20", "1"),
		Seg("NM1", "85", "2", in.BillingProvider.Name, "", "", "", "", "XX", in.BillingProvider.ID),
		Seg("HL", "2", "1", "22", "0"),
		Seg("SBR", "P", "18", "", "", "", "", "", "", "CI"),
		Seg("NM1", "IL", "1", in.Subscriber.LastName, in.Subscriber.FirstName, "", "", "", "MI", in.Subscriber.MemberID),
		Seg("NM1", "PR", "2", in.Payer.Name, "", "", "", "", "PI", in.Payer.ID),
		Seg("CLM", in.ClaimID, Amount(in.Total()), "", "", comp(pos, "B", "1"), "Y", "A", "Y", "Y"),
	}
	if len(in.DiagnosisCodes) > 0 {
		hi := make([]string, 0, len(in.DiagnosisCodes))
		for i, code := range in.DiagnosisCodes {
			qual := "ABF"
			if i == 0 {
				qual = "ABK"
			}
			hi = append(hi, comp(qual, code))
		}
		segs = append(segs, Seg("HI", hi...))
	}
	for i, line := range in.Lines {
		proc := append([]string{"HC", line.ProcedureCode}, line.Modifiers...)
		units := line.Units
		if units <= 0 {
			units = 1
		}
		segs = append(segs,
			Seg("LX", strconv.Itoa(i+1)),
			Seg("SV1", comp(proc...), Amount(line.Charge), "UN", Amount(units), "", "", "1"),
		)
		if !line.ServiceDate.IsZero() {
			segs = append(segs, Seg("DTP", "472", "D8", Date(line.ServiceDate)))
		}
	}
	return segs
}

// Adjustment is one CAS reason/amount pair.
type Adjustment struct {
	Group  string
	Reason string
	Amount float64
}

// ClaimPayment is one CLP loop of an 835.
type ClaimPayment struct {
	ClaimID               string
	StatusCode            string
	Charged               float64
	Paid                  float64
	PatientResponsibility float64
	PayerClaimNumber      string
	Adjustments           []Adjustment
}

// Remittance is the content of an 835.
type Remittance struct {
	TraceNumber string
	Payer       Party
	Payee       Party
	PaymentDate time.Time
	Claims      []ClaimPayment
}

// TotalPaid sums claim payments.
func (r Remittance) TotalPaid() float64 {
	var total float64
	for _, c := range r.Claims {
		total += c.Paid
	}
	return total
}

func Build835(in Remittance) []Segment {
	paid := orNow(in.PaymentDate)
	segs := []Segment{
		Seg("BPR", "I", Amount(in.TotalPaid()), "C", "ACH", "CCP", "", "", "", "", "", "", "", "", "", "", Date(paid)),
		Seg("TRN", "1", in.TraceNumber, "1"+padLeft(in.Payer.ID, 9)),
		Seg("N1", "PR", in.Payer.Name, "XV", in.Payer.ID),
		Seg("N1", "PE", in.Payee.Name, "XX", in.Payee.ID),
	}
	for _, c := range in.Claims {
		segs = append(segs, Seg("CLP", c.ClaimID, c.StatusCode, Amount(c.Charged), Amount(c.Paid),
			Amount(c.PatientResponsibility), "12", c.PayerClaimNumber))
		for _, a := range c.Adjustments {
			segs = append(segs, Seg("CAS", a.Group, a.Reason, Amount(a.Amount)))
		}
	}
	return segs
}

// StatusInfo is the STC content of a 277.
type StatusInfo struct {
	TraceID      string
	ClaimID      string
	Category     string
	Code         string
	EffectiveOn  time.Time
	ChargeAmount float64
	PaidAmount   float64
	Message      string
}

func Build277(in StatusInfo) []Segment {
	now := orNow(in.EffectiveOn)
	return []Segment{
		Seg("BHT", "0010", "08", in.TraceID, Date(now), now.Format("150405"), "DG"),
		Seg("HL", "1", "", "20", "1"),
		Seg("HL", "2", "1", "22", "0"),
		Seg("TRN", "2", in.TraceID),
		Seg("STC", comp(in.Category, in.Code), Date(now), "", Amount(in.ChargeAmount), Amount(in.PaidAmount),
			"", "", "", "", "", "", in.Message),
		Seg("REF", "EJ", in.ClaimID),
	}
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func padLeft(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	out := make([]byte, n-len(s))
	for i := range out {
		out[i] = '0'
	}
	return string(out) + s
}
