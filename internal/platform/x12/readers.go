package x12

import "fmt"

// ReadRemittance extracts payments and adjustments from a parsed 835.
// CAS segments attach to the CLP loop that precedes them; each CAS carries up
// to six reason/amount/quantity triples after its group code.
func ReadRemittance(ic *Interchange) (*Remittance, error) {
	if ic.TransactionType != "" && ic.TransactionType != Type835 {
		return nil, fmt.Errorf("x12: expected an 835, got %s", ic.TransactionType)
	}
	r := &Remittance{}
	var current *ClaimPayment
	flush := func() {
		if current != nil {
			r.Claims = append(r.Claims, *current)
			current = nil
		}
	}

	for _, s := range ic.Body() {
		switch s.ID {
		case "BPR":
			if d, ok := ParseDate(s.Element(16)); ok {
				r.PaymentDate = d
			}
		case "TRN":
			r.TraceNumber = s.Element(2)
		case "N1":
			switch s.Element(1) {
			case "PR":
				r.Payer = Party{Name: s.Element(2), ID: s.Element(4)}
			case "PE":
				r.Payee = Party{Name: s.Element(2), ID: s.Element(4)}
			}
		case "CLP":
			flush()
			current = &ClaimPayment{
				ClaimID:               s.Element(1),
				StatusCode:            s.Element(2),
				Charged:               ParseAmount(s.Element(3)),
				Paid:                  ParseAmount(s.Element(4)),
				PatientResponsibility: ParseAmount(s.Element(5)),
				PayerClaimNumber:      s.Element(7),
			}
		case "CAS":
			if current == nil {
				continue
			}
			group := s.Element(1)
			for i := 2; i+1 <= len(s.Elements); i += 3 {
				reason := s.Element(i)
				if reason == "" {
					continue
				}
				current.Adjustments = append(current.Adjustments, Adjustment{
					Group:  group,
					Reason: reason,
					Amount: ParseAmount(s.Element(i + 1)),
				})
			}
		}
	}
	flush()
	return r, nil
}

// ReadStatus extracts the first STC of a parsed 277 along with the trace and
// claim references around it.
func ReadStatus(ic *Interchange) (*StatusInfo, error) {
	if ic.TransactionType != "" && ic.TransactionType != Type277 {
		return nil, fmt.Errorf("x12: expected a 277, got %s", ic.TransactionType)
	}
	info := &StatusInfo{}
	found := false
	for _, s := range ic.Body() {
		switch s.ID {
		case "TRN":
			info.TraceID = s.Element(2)
		case "REF":
			if s.Element(1) == "EJ" || (s.Element(1) == "1K" && info.ClaimID == "") {
				info.ClaimID = s.Element(2)
			}
		case "STC":
			if found {
				continue
			}
			found = true
			info.Category = s.Component(1, 1)
			info.Code = s.Component(1, 2)
			if d, ok := ParseDate(s.Element(2)); ok {
				info.EffectiveOn = d
			}
			info.ChargeAmount = ParseAmount(s.Element(4))
			info.PaidAmount = ParseAmount(s.Element(5))
			info.Message = s.Element(12)
		}
	}
	if !found {
		return nil, fmt.Errorf("x12: 277 has no STC segment")
	}
	return info, nil
}
