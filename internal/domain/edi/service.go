package edi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/metrics"
	"github.com/rcm/rcm/internal/platform/validate"
	"github.com/rcm/rcm/internal/platform/x12"
	"github.com/rcm/rcm/pkg/coerce"
)

const (
	dayLayout       = "2006-01-02"
	patientCacheTTL = 10 * time.Minute
)

type Config struct {
	SenderID   string
	ReceiverID string
	// Usage is the ISA15 indicator, "P" or "T".
	Usage string
}

type Service struct {
	cfg           Config
	transactions  TransactionRepository
	eligibility   EligibilityRepository
	clearinghouse Clearinghouse
	patients      *gocache.Cache
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(cfg Config, tx TransactionRepository, el EligibilityRepository, ch Clearinghouse, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		cfg:           cfg,
		transactions:  tx,
		eligibility:   el,
		clearinghouse: ch,
		patients:      gocache.New(patientCacheTTL, 2*patientCacheTTL),
		metrics:       m,
		logger:        logger.With().Str("component", "edi").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) envelope(control string) x12.Envelope {
	return x12.Envelope{
		SenderID:           s.cfg.SenderID,
		ReceiverID:         s.cfg.ReceiverID,
		InterchangeControl: control,
		Usage:              s.cfg.Usage,
		Time:               s.now(),
	}
}

// -- Eligibility --

// CheckEligibility looks up the newest stored verification for the patient
// (or subscriber) on the service date. A missing record is not an error: the
// response has Status "unknown", no benefits, zero coverage and the service
// date as its effective date.
func (s *Service) CheckEligibility(ctx context.Context, req EligibilityRequest, companyID string) (*EligibilityResponse, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, invalid("%v", err)
	}
	serviceDate, err := time.Parse(dayLayout, req.ServiceDate)
	if err != nil {
		return nil, invalid("service_date must be YYYY-MM-DD")
	}
	if strings.TrimSpace(req.PatientID) == "" && strings.TrimSpace(req.SubscriberID) == "" {
		return nil, invalid("patient_id or subscriber_id is required")
	}

	patientID, err := s.resolvePatient(ctx, strings.TrimSpace(req.PatientID), companyID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	search := VerificationSearch{
		PatientID:   patientID,
		PayerID:     strings.TrimSpace(req.PayerID),
		ServiceDate: serviceDate,
		CompanyID:   companyID,
	}
	if patientID == "" {
		search.SubscriberID = strings.TrimSpace(req.SubscriberID)
	}
	search.PayerExact = isCanonical(search.PayerID)

	var v *Verification
	if search.PatientID != "" || search.SubscriberID != "" {
		v, err = s.eligibility.FindLatest(ctx, search)
		if err != nil {
			return nil, fmt.Errorf("search eligibility verifications: %w", err)
		}
	}

	var resp *EligibilityResponse
	if v == nil {
		resp = unknownEligibility(req.ServiceDate)
	} else {
		resp = s.mapVerification(v, req.ServiceDate)
	}
	resp.PatientID = patientID
	resp.PayerID = req.PayerID
	s.metrics.EDITransaction(string(x12.Type270), string(resp.Status))
	return resp, nil
}

func isCanonical(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// resolvePatient accepts a canonical id as-is and otherwise looks the value
// up as a patient code. Resolved codes are cached per company.
func (s *Service) resolvePatient(ctx context.Context, idOrCode, companyID string) (string, error) {
	if idOrCode == "" || isCanonical(idOrCode) {
		return idOrCode, nil
	}
	key := companyID + "|" + strings.ToUpper(idOrCode)
	if id, ok := s.patients.Get(key); ok {
		return id.(string), nil
	}
	id, err := s.eligibility.ResolvePatientCode(ctx, idOrCode, companyID)
	if err != nil {
		return "", err
	}
	if id != "" {
		s.patients.Set(key, id, gocache.DefaultExpiration)
	} else {
		s.logger.Debug().Str("patient_code", idOrCode).Msg("patient code did not resolve, falling back to subscriber id")
	}
	return id, nil
}

func unknownEligibility(serviceDate string) *EligibilityResponse {
	return &EligibilityResponse{
		Status:        Unknown,
		IsEligible:    false,
		Benefits:      []Benefit{},
		EffectiveDate: serviceDate,
	}
}

func (s *Service) mapVerification(v *Verification, serviceDate string) *EligibilityResponse {
	eligible := v.IsEligible != nil && *v.IsEligible
	resp := &EligibilityResponse{
		Status:     Ineligible,
		IsEligible: eligible,
		Coverage: Coverage{
			Copay:          coerce.Float(v.Copay),
			Deductible:     coerce.Float(v.Deductible),
			Coinsurance:    coerce.Float(v.Coinsurance),
			OutOfPocketMax: coerce.Float(v.OutOfPocketMax),
		},
		Benefits:       decodeBenefits(v.Benefits),
		EffectiveDate:  serviceDate,
		VerificationID: v.ID,
	}
	if eligible {
		resp.Status = Eligible
	}
	if v.EffectiveDate != nil {
		resp.EffectiveDate = v.EffectiveDate.Format(dayLayout)
	}
	if v.TerminationDate != nil {
		if v.EffectiveDate != nil && v.TerminationDate.Before(*v.EffectiveDate) {
			s.logger.Warn().
				Str("verification_id", v.ID).
				Time("effective_date", *v.EffectiveDate).
				Time("termination_date", *v.TerminationDate).
				Msg("termination date precedes effective date, dropping it")
		} else {
			t := v.TerminationDate.Format(dayLayout)
			resp.TerminationDate = &t
		}
	}
	return resp
}

func decodeBenefits(raw []map[string]interface{}) []Benefit {
	out := make([]Benefit, 0, len(raw))
	for _, b := range raw {
		covered, _ := b["covered"].(bool)
		serviceType := coerce.ToString(b["service_type"])
		if serviceType == "" {
			serviceType = coerce.ToString(b["serviceType"])
		}
		out = append(out, Benefit{
			ServiceType: serviceType,
			Description: coerce.ToString(b["description"]),
			Covered:     covered,
			Copay:       coerce.ToNumber(b["copay"]),
			Coinsurance: coerce.ToNumber(b["coinsurance"]),
		})
	}
	return out
}

// -- Claim status --

// CheckClaimStatus sends a 276 and interprets the first STC of the 277
// reply. Nothing is persisted.
func (s *Service) CheckClaimStatus(ctx context.Context, req ClaimStatusRequest) (*ClaimStatusResponse, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, invalid("%v", err)
	}
	serviceDate, err := optionalDay(req.ServiceDate)
	if err != nil {
		return nil, invalid("service_date must be YYYY-MM-DD")
	}

	trace := traceNumber()
	payload, err := x12.Generate(x12.Type276, s.envelope(""), x12.Build276(x12.ClaimStatusInquiry{
		TraceID:      trace,
		Payer:        x12.Party{Name: req.PayerName, ID: req.PayerID},
		Provider:     x12.Party{Name: req.ProviderName, ID: req.ProviderNPI},
		Subscriber:   x12.Person{FirstName: req.FirstName, LastName: req.LastName, MemberID: req.SubscriberID},
		ClaimID:      req.ClaimID,
		PayerClaimID: req.PayerClaimID,
		ChargeAmount: req.ChargeAmount,
		ServiceDate:  serviceDate,
		Created:      s.now(),
	}))
	if err != nil {
		return nil, fmt.Errorf("render 276: %w", err)
	}

	raw, err := s.clearinghouse.Send(ctx, payload)
	if err != nil {
		s.metrics.EDITransaction(string(x12.Type276), "error")
		return nil, fmt.Errorf("claim status %s: %w: %w", req.ClaimID, ErrClearinghouse, err)
	}
	info, err := readStatus(raw)
	if err != nil {
		return nil, fmt.Errorf("claim status %s: %w: %w", req.ClaimID, ErrClearinghouse, err)
	}

	resp := &ClaimStatusResponse{
		ClaimID:     req.ClaimID,
		Status:      ClaimStateFor(info.Category),
		StatusCode:  x12.Composite(info.Category, info.Code),
		TraceNumber: trace,
	}
	if !info.EffectiveOn.IsZero() {
		resp.EffectiveOn = info.EffectiveOn.Format(dayLayout)
	}
	switch resp.Status {
	case ClaimPaid:
		paid := info.PaidAmount
		resp.PaidAmount = &paid
	case ClaimDenied, ClaimRejected:
		reason := info.Message
		if reason == "" {
			reason = "Status " + resp.StatusCode
		}
		resp.DenialReason = &reason
	}
	s.metrics.EDITransaction(string(x12.Type276), string(resp.Status))
	return resp, nil
}

// ClaimStateFor maps a 277 claim status category code onto the five states
// shown to operators.
func ClaimStateFor(category string) ClaimState {
	switch {
	case category == "F1" || category == "F3":
		return ClaimPaid
	case category == "F2" || category == "F4":
		return ClaimDenied
	case category == "A3" || category == "A4" || category == "A6" || category == "A7" || category == "A8" || strings.HasPrefix(category, "E"):
		return ClaimRejected
	case strings.HasPrefix(category, "P"):
		return ClaimPending
	default:
		return ClaimProcessing
	}
}

func readStatus(raw string) (*x12.StatusInfo, error) {
	ic, err := x12.Parse(raw)
	if err != nil {
		return nil, err
	}
	return x12.ReadStatus(ic)
}

func traceNumber() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:15])
}

func optionalDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dayLayout, s)
}

// -- Claim submission --

// SubmitClaim renders an 837P, records it as pending and hands it to the
// clearinghouse. The acknowledgment moves the transaction to processed, or to
// rejected with the clearinghouse message. Transport errors leave the
// transaction rejected and are returned.
func (s *Service) SubmitClaim(ctx context.Context, sub ClaimSubmission, companyID string) (*Transaction, error) {
	if err := validate.Struct(&sub); err != nil {
		return nil, invalid("%v", err)
	}
	claim, err := s.professionalClaim(sub)
	if err != nil {
		return nil, err
	}

	payload, err := x12.Generate(x12.Type837, s.envelope(""), x12.Build837P(claim))
	if err != nil {
		return nil, fmt.Errorf("render 837: %w", err)
	}

	tx := &Transaction{
		ID:              uuid.New(),
		TransactionType: string(x12.Type837),
		Status:          StatusPending,
		ClaimID:         &claim.ClaimID,
		ControlNumber:   x12.DefaultInterchangeControl,
		Payload:         payload,
		CompanyID:       optional(companyID),
		CreatedBy:       optional(auth.UserIDFromContext(ctx)),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	log := s.logger.With().Str("transaction_id", tx.ID.String()).Str("claim_id", claim.ClaimID).Logger()

	raw, sendErr := s.clearinghouse.Send(ctx, payload)
	if sendErr != nil {
		s.fail(ctx, tx, sendErr.Error())
		log.Error().Err(sendErr).Msg("claim submission failed")
		return nil, fmt.Errorf("submit claim %s: %w: %w", claim.ClaimID, ErrClearinghouse, sendErr)
	}
	if err := s.advance(ctx, tx, StatusSent); err != nil {
		return nil, err
	}
	tx.Response = &raw

	info, err := readStatus(raw)
	if err != nil {
		s.fail(ctx, tx, "unreadable acknowledgment: "+err.Error())
		return nil, fmt.Errorf("submit claim %s: %w: %w", claim.ClaimID, ErrClearinghouse, err)
	}
	ack := x12.Composite(info.Category, info.Code)
	tx.AckCode = &ack

	if ClaimStateFor(info.Category) == ClaimRejected {
		msg := info.Message
		if msg == "" {
			msg = "rejected with status " + ack
		}
		s.fail(ctx, tx, msg)
		log.Warn().Str("ack_code", ack).Str("reason", msg).Msg("claim rejected by clearinghouse")
		return tx, nil
	}

	for _, next := range []Status{StatusAcknowledged, StatusProcessed} {
		if err := s.advance(ctx, tx, next); err != nil {
			return nil, err
		}
	}
	log.Info().Str("ack_code", ack).Msg("claim submitted")
	return tx, nil
}

func (s *Service) advance(ctx context.Context, tx *Transaction, to Status) error {
	if err := tx.Transition(to); err != nil {
		return err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return fmt.Errorf("update transaction %s to %s: %w", tx.ID, to, err)
	}
	s.metrics.EDITransaction(tx.TransactionType, string(to))
	return nil
}

// fail records a rejection. Persisting it is best effort since the caller
// already receives the underlying error.
func (s *Service) fail(ctx context.Context, tx *Transaction, reason string) {
	if err := tx.Reject(reason); err != nil {
		return
	}
	s.metrics.EDITransaction(tx.TransactionType, string(StatusRejected))
	if err := s.transactions.Update(ctx, tx); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("failed to record rejection")
	}
}

func (s *Service) professionalClaim(sub ClaimSubmission) (x12.ProfessionalClaim, error) {
	ref := strings.TrimSpace(sub.ClaimReference)
	if ref == "" {
		ref = "CLM" + traceNumber()[:12]
	}
	dob, err := optionalDay(sub.DateOfBirth)
	if err != nil {
		return x12.ProfessionalClaim{}, invalid("date_of_birth must be YYYY-MM-DD")
	}
	claim := x12.ProfessionalClaim{
		ClaimID:         ref,
		Submitter:       x12.Party{Name: sub.ProviderName, ID: s.cfg.SenderID},
		Receiver:        x12.Party{Name: sub.PayerName, ID: s.cfg.ReceiverID},
		BillingProvider: x12.Party{Name: sub.ProviderName, ID: sub.ProviderNPI},
		Payer:           x12.Party{Name: sub.PayerName, ID: sub.PayerID},
		Subscriber:      x12.Person{FirstName: sub.FirstName, LastName: sub.LastName, MemberID: sub.SubscriberID, BirthDate: dob},
		PlaceOfService:  sub.PlaceOfService,
		DiagnosisCodes:  sub.DiagnosisCodes,
		Created:         s.now(),
	}
	for i, l := range sub.Lines {
		d, err := optionalDay(l.ServiceDate)
		if err != nil {
			return x12.ProfessionalClaim{}, invalid("lines[%d].service_date must be YYYY-MM-DD", i)
		}
		claim.Lines = append(claim.Lines, x12.ServiceLine{
			ProcedureCode: l.ProcedureCode,
			Modifiers:     l.Modifiers,
			Charge:        l.Charge,
			Units:         l.Units,
			ServiceDate:   d,
		})
	}
	return claim, nil
}

// -- Remittance --

// ProcessRemittance reads an 835 into payments, adjustments and patient
// responsibility and records it as a processed transaction.
func (s *Service) ProcessRemittance(ctx context.Context, in RemittanceInput, companyID string) (*RemittanceAdvice, error) {
	raw := strings.TrimSpace(in.Raw)
	if raw == "" {
		if len(in.Claims) == 0 {
			return nil, invalid("raw 835 content or claims are required")
		}
		built, err := s.buildRemittance(in)
		if err != nil {
			return nil, err
		}
		raw = built
	}

	ic, err := x12.Parse(raw)
	if err != nil {
		return nil, invalid("%v", err)
	}
	r, err := x12.ReadRemittance(ic)
	if err != nil {
		return nil, invalid("%v", err)
	}

	advice := &RemittanceAdvice{
		TraceNumber: r.TraceNumber,
		PayerName:   r.Payer.Name,
		Claims:      make([]ClaimRemittance, 0, len(r.Claims)),
	}
	if !r.PaymentDate.IsZero() {
		advice.PaymentDate = r.PaymentDate.Format(dayLayout)
	}
	for _, c := range r.Claims {
		cr := ClaimRemittance{
			ClaimID:               c.ClaimID,
			StatusCode:            c.StatusCode,
			Charged:               c.Charged,
			Paid:                  c.Paid,
			PatientResponsibility: c.PatientResponsibility,
			PayerClaimNumber:      c.PayerClaimNumber,
			Adjustments:           make([]Adjustment, 0, len(c.Adjustments)),
		}
		var pr float64
		for _, a := range c.Adjustments {
			cr.Adjustments = append(cr.Adjustments, Adjustment{Group: a.Group, Reason: a.Reason, Amount: a.Amount})
			advice.TotalAdjusted += a.Amount
			if a.Group == "PR" {
				pr += a.Amount
			}
		}
		// CLP05 is authoritative; PR adjustments stand in when it is absent.
		if cr.PatientResponsibility == 0 {
			cr.PatientResponsibility = pr
		}
		advice.TotalPaid += cr.Paid
		advice.PatientResponsibility += cr.PatientResponsibility
		advice.Claims = append(advice.Claims, cr)
	}

	tx := &Transaction{
		ID:              uuid.New(),
		TransactionType: string(x12.Type835),
		Status:          StatusProcessed,
		ControlNumber:   ic.ControlNumber,
		Payload:         raw,
		CompanyID:       optional(companyID),
		CreatedBy:       optional(auth.UserIDFromContext(ctx)),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record remittance: %w", err)
	}
	advice.TransactionID = tx.ID
	s.metrics.EDITransaction(string(x12.Type835), string(StatusProcessed))
	return advice, nil
}

func (s *Service) remittance(in RemittanceInput) (x12.Remittance, error) {
	paid, err := optionalDay(in.PaymentDate)
	if err != nil {
		return x12.Remittance{}, invalid("payment_date must be YYYY-MM-DD")
	}
	r := x12.Remittance{
		TraceNumber: in.TraceNumber,
		Payer:       x12.Party{Name: in.PayerName, ID: in.PayerID},
		Payee:       x12.Party{Name: in.PayeeName, ID: in.PayeeID},
		PaymentDate: paid,
	}
	if r.TraceNumber == "" {
		r.TraceNumber = traceNumber()
	}
	if r.PaymentDate.IsZero() {
		r.PaymentDate = s.now()
	}
	for _, c := range in.Claims {
		cp := x12.ClaimPayment{
			ClaimID:               c.ClaimID,
			StatusCode:            c.StatusCode,
			Charged:               c.Charged,
			Paid:                  c.Paid,
			PatientResponsibility: c.PatientResponsibility,
			PayerClaimNumber:      c.PayerClaimNumber,
		}
		if cp.StatusCode == "" {
			cp.StatusCode = "1"
		}
		for _, a := range c.Adjustments {
			cp.Adjustments = append(cp.Adjustments, x12.Adjustment{Group: a.Group, Reason: a.Reason, Amount: a.Amount})
		}
		r.Claims = append(r.Claims, cp)
	}
	return r, nil
}

func (s *Service) buildRemittance(in RemittanceInput) (string, error) {
	r, err := s.remittance(in)
	if err != nil {
		return "", err
	}
	env := s.envelope("")
	env.SenderID, env.ReceiverID = s.cfg.ReceiverID, s.cfg.SenderID
	return x12.Generate(x12.Type835, env, x12.Build835(r))
}

// -- Formatting --

// GenerateX12Format renders a complete interchange for the given type from
// the matching section of data, using the configured sender and receiver.
func (s *Service) GenerateX12Format(txType string, data X12Request) (string, error) {
	if !x12.IsValidType(txType) {
		return "", invalid("unknown transaction type %q", txType)
	}
	env := s.envelope(data.InterchangeControl)
	env.GroupControl = data.GroupControl
	env.TransactionControl = data.TransactionControl

	var body []x12.Segment
	switch x12.TransactionType(txType) {
	case x12.Type270:
		if data.Eligibility == nil {
			return "", invalid("eligibility section is required for a 270")
		}
		in, err := s.eligibilityInquiry(*data.Eligibility)
		if err != nil {
			return "", err
		}
		body = x12.Build270(in)
	case x12.Type276:
		if data.ClaimStatus == nil {
			return "", invalid("claim_status section is required for a 276")
		}
		d, err := optionalDay(data.ClaimStatus.ServiceDate)
		if err != nil {
			return "", invalid("service_date must be YYYY-MM-DD")
		}
		cs := data.ClaimStatus
		body = x12.Build276(x12.ClaimStatusInquiry{
			TraceID:      traceNumber(),
			Payer:        x12.Party{Name: cs.PayerName, ID: cs.PayerID},
			Provider:     x12.Party{Name: cs.ProviderName, ID: cs.ProviderNPI},
			Subscriber:   x12.Person{FirstName: cs.FirstName, LastName: cs.LastName, MemberID: cs.SubscriberID},
			ClaimID:      cs.ClaimID,
			PayerClaimID: cs.PayerClaimID,
			ChargeAmount: cs.ChargeAmount,
			ServiceDate:  d,
			Created:      env.Time,
		})
	case x12.Type837:
		if data.Claim == nil {
			return "", invalid("claim section is required for an 837")
		}
		claim, err := s.professionalClaim(*data.Claim)
		if err != nil {
			return "", err
		}
		body = x12.Build837P(claim)
	case x12.Type835:
		if data.Remittance == nil {
			return "", invalid("remittance section is required for an 835")
		}
		r, err := s.remittance(*data.Remittance)
		if err != nil {
			return "", err
		}
		body = x12.Build835(r)
	case x12.Type277:
		if data.Status == nil {
			return "", invalid("status section is required for a 277")
		}
		st := data.Status
		category, code, _ := strings.Cut(st.StatusCode, x12.ComponentSep)
		info := x12.StatusInfo{TraceID: st.TraceNumber, ClaimID: st.ClaimID, Category: category, Code: code, EffectiveOn: env.Time}
		if st.PaidAmount != nil {
			info.PaidAmount = *st.PaidAmount
		}
		if st.DenialReason != nil {
			info.Message = *st.DenialReason
		}
		body = x12.Build277(info)
	default:
		return "", fmt.Errorf("%w: %s responses are received, not generated", ErrUnsupportedType, txType)
	}

	out, err := x12.Generate(x12.TransactionType(txType), env, body)
	if err != nil {
		return "", invalid("%v", err)
	}
	return out, nil
}

func (s *Service) eligibilityInquiry(req EligibilityRequest) (x12.EligibilityInquiry, error) {
	serviceDate, err := optionalDay(req.ServiceDate)
	if err != nil {
		return x12.EligibilityInquiry{}, invalid("service_date must be YYYY-MM-DD")
	}
	dob, err := optionalDay(req.DateOfBirth)
	if err != nil {
		return x12.EligibilityInquiry{}, invalid("date_of_birth must be YYYY-MM-DD")
	}
	member := req.SubscriberID
	if member == "" {
		member = req.PatientID
	}
	return x12.EligibilityInquiry{
		TraceID:          traceNumber(),
		Payer:            x12.Party{Name: req.PayerName, ID: req.PayerID},
		Provider:         x12.Party{Name: req.ProviderName, ID: req.ProviderNPI},
		Subscriber:       x12.Person{FirstName: req.FirstName, LastName: req.LastName, MemberID: member, BirthDate: dob},
		ServiceDate:      serviceDate,
		ServiceTypeCodes: req.ServiceTypeCodes,
		Created:          s.now(),
	}, nil
}

// -- Transactions --

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID, companyID string) (*Transaction, error) {
	return s.transactions.GetByID(ctx, id, companyID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
