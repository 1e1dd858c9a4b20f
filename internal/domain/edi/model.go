package edi

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNotFound             = errors.New("transaction not found")
	ErrImmutableTransaction = errors.New("transaction is in a terminal state")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrClearinghouse        = errors.New("clearinghouse error")
	ErrUnsupportedType      = errors.New("unsupported transaction type")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusProcessed    Status = "processed"
	StatusRejected     Status = "rejected"
)

var nextStatus = map[Status]Status{
	StatusPending:      StatusSent,
	StatusSent:         StatusAcknowledged,
	StatusAcknowledged: StatusProcessed,
}

func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusRejected
}

// Transaction maps to edi_transactions.
type Transaction struct {
	ID              uuid.UUID `db:"id" json:"id"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	Status          Status    `db:"status" json:"status"`
	ClaimID         *string   `db:"claim_id" json:"claim_id,omitempty"`
	ControlNumber   string    `db:"control_number" json:"control_number"`
	Payload         string    `db:"payload" json:"payload"`
	Response        *string   `db:"response" json:"response,omitempty"`
	AckCode         *string   `db:"ack_code" json:"acknowledgment_code,omitempty"`
	ErrorMessage    *string   `db:"error_message" json:"error_message,omitempty"`
	CompanyID       *string   `db:"company_id" json:"company_id,omitempty"`
	CreatedBy       *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Transition moves the transaction one step forward, or to rejected from
// any non-terminal state. Terminal transactions never change.
func (t *Transaction) Transition(to Status) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrImmutableTransaction, t.ID, t.Status)
	}
	if to != StatusRejected && nextStatus[t.Status] != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// Reject moves the transaction to rejected with a reason.
func (t *Transaction) Reject(reason string) error {
	if err := t.Transition(StatusRejected); err != nil {
		return err
	}
	t.ErrorMessage = &reason
	return nil
}

// EligibilityRequest asks whether a patient is covered on a service date.
// PatientID may be a canonical id or a human-entered patient code.
type EligibilityRequest struct {
	PatientID        string   `json:"patient_id"`
	SubscriberID     string   `json:"subscriber_id"`
	PayerID          string   `json:"payer_id"`
	PayerName        string   `json:"payer_name,omitempty"`
	ProviderNPI      string   `json:"provider_npi,omitempty"`
	ProviderName     string   `json:"provider_name,omitempty"`
	FirstName        string   `json:"first_name,omitempty"`
	LastName         string   `json:"last_name,omitempty"`
	DateOfBirth      string   `json:"date_of_birth,omitempty"`
	ServiceDate      string   `json:"service_date" validate:"required"`
	ServiceTypeCodes []string `json:"service_type_codes,omitempty"`
	ProcedureCodes   []string `json:"procedure_codes,omitempty"`
}

type EligibilityStatus string

const (
	Eligible   EligibilityStatus = "eligible"
	Ineligible EligibilityStatus = "ineligible"
	Unknown    EligibilityStatus = "unknown"
)

type Coverage struct {
	Copay          float64 `json:"copay"`
	Deductible     float64 `json:"deductible"`
	Coinsurance    float64 `json:"coinsurance"`
	OutOfPocketMax float64 `json:"out_of_pocket_max"`
}

type Benefit struct {
	ServiceType string  `json:"service_type"`
	Description string  `json:"description,omitempty"`
	Covered     bool    `json:"covered"`
	Copay       float64 `json:"copay"`
	Coinsurance float64 `json:"coinsurance"`
}

// EligibilityResponse carries the three-way Status next to the legacy
// IsEligible flag. Status "unknown" means no verification was on file.
type EligibilityResponse struct {
	Status          EligibilityStatus `json:"status"`
	IsEligible      bool              `json:"is_eligible"`
	Coverage        Coverage          `json:"coverage"`
	Benefits        []Benefit         `json:"benefits"`
	EffectiveDate   string            `json:"effective_date"`
	TerminationDate *string           `json:"termination_date,omitempty"`
	PatientID       string            `json:"patient_id,omitempty"`
	PayerID         string            `json:"payer_id,omitempty"`
	VerificationID  string            `json:"verification_id,omitempty"`
}

// Verification maps to eligibility_verifications. Numeric and benefit
// columns are decoded loosely and coerced when mapped to a response.
type Verification struct {
	ID               string                   `db:"id"`
	PatientID        *string                  `db:"patient_id"`
	SubscriberID     *string                  `db:"subscriber_id"`
	PayerID          *string                  `db:"payer_id"`
	IsEligible       *bool                    `db:"is_eligible"`
	Copay            *float64                 `db:"copay"`
	Deductible       *float64                 `db:"deductible"`
	Coinsurance      *float64                 `db:"coinsurance"`
	OutOfPocketMax   *float64                 `db:"out_of_pocket_max"`
	Benefits         []map[string]interface{} `db:"benefits"`
	EffectiveDate    *time.Time               `db:"effective_date"`
	TerminationDate  *time.Time               `db:"termination_date"`
	ServiceDate      *time.Time               `db:"service_date"`
	VerificationDate *time.Time               `db:"verification_date"`
	CreatedAt        time.Time                `db:"created_at"`
}

// VerificationSearch narrows the eligibility lookup. Exactly one of
// PatientID and SubscriberID is set.
type VerificationSearch struct {
	PatientID    string
	SubscriberID string
	PayerID      string
	PayerExact   bool
	ServiceDate  time.Time
	CompanyID    string
}

type ClaimStatusRequest struct {
	ClaimID      string  `json:"claim_id" validate:"required"`
	PayerClaimID string  `json:"payer_claim_id,omitempty"`
	PayerID      string  `json:"payer_id"`
	PayerName    string  `json:"payer_name,omitempty"`
	ProviderNPI  string  `json:"provider_npi,omitempty"`
	ProviderName string  `json:"provider_name,omitempty"`
	SubscriberID string  `json:"subscriber_id,omitempty"`
	FirstName    string  `json:"first_name,omitempty"`
	LastName     string  `json:"last_name,omitempty"`
	ServiceDate  string  `json:"service_date,omitempty"`
	ChargeAmount float64 `json:"charge_amount,omitempty"`
}

type ClaimState string

const (
	ClaimPending    ClaimState = "pending"
	ClaimProcessing ClaimState = "processing"
	ClaimPaid       ClaimState = "paid"
	ClaimDenied     ClaimState = "denied"
	ClaimRejected   ClaimState = "rejected"
)

type ClaimStatusResponse struct {
	ClaimID      string     `json:"claim_id"`
	Status       ClaimState `json:"status"`
	StatusCode   string     `json:"status_code"`
	DenialReason *string    `json:"denial_reason,omitempty"`
	PaidAmount   *float64   `json:"paid_amount,omitempty"`
	TraceNumber  string     `json:"trace_number"`
	EffectiveOn  string     `json:"effective_date,omitempty"`
}

type ServiceLine struct {
	ProcedureCode string   `json:"procedure_code" validate:"required"`
	Modifiers     []string `json:"modifiers,omitempty"`
	Charge        float64  `json:"charge" validate:"min=0"`
	Units         float64  `json:"units,omitempty"`
	ServiceDate   string   `json:"service_date,omitempty"`
}

// ClaimSubmission is a professional claim. ClaimReference is the caller's
// stable id; one is generated when empty. Submissions are not deduplicated.
type ClaimSubmission struct {
	ClaimReference string        `json:"claim_reference,omitempty"`
	PayerID        string        `json:"payer_id" validate:"required"`
	PayerName      string        `json:"payer_name,omitempty"`
	ProviderNPI    string        `json:"provider_npi" validate:"required"`
	ProviderName   string        `json:"provider_name,omitempty"`
	SubscriberID   string        `json:"subscriber_id" validate:"required"`
	FirstName      string        `json:"first_name,omitempty"`
	LastName       string        `json:"last_name,omitempty"`
	DateOfBirth    string        `json:"date_of_birth,omitempty"`
	PlaceOfService string        `json:"place_of_service,omitempty"`
	DiagnosisCodes []string      `json:"diagnosis_codes" validate:"required,min=1"`
	Lines          []ServiceLine `json:"lines" validate:"required,min=1,dive"`
}

type Adjustment struct {
	Group  string  `json:"group"`
	Reason string  `json:"reason"`
	Amount float64 `json:"amount"`
}

type ClaimRemittance struct {
	ClaimID               string       `json:"claim_id"`
	StatusCode            string       `json:"status_code"`
	Charged               float64      `json:"charged"`
	Paid                  float64      `json:"paid"`
	PatientResponsibility float64      `json:"patient_responsibility"`
	PayerClaimNumber      string       `json:"payer_claim_number,omitempty"`
	Adjustments           []Adjustment `json:"adjustments"`
}

// RemittanceInput carries either raw 835 text or structured content from
// which one is built.
type RemittanceInput struct {
	Raw         string            `json:"raw,omitempty"`
	TraceNumber string            `json:"trace_number,omitempty"`
	PayerID     string            `json:"payer_id,omitempty"`
	PayerName   string            `json:"payer_name,omitempty"`
	PayeeID     string            `json:"payee_id,omitempty"`
	PayeeName   string            `json:"payee_name,omitempty"`
	PaymentDate string            `json:"payment_date,omitempty"`
	Claims      []ClaimRemittance `json:"claims,omitempty"`
}

type RemittanceAdvice struct {
	TransactionID         uuid.UUID         `json:"transaction_id"`
	TraceNumber           string            `json:"trace_number"`
	PayerName             string            `json:"payer_name,omitempty"`
	PaymentDate           string            `json:"payment_date,omitempty"`
	TotalPaid             float64           `json:"total_paid"`
	TotalAdjusted         float64           `json:"total_adjusted"`
	PatientResponsibility float64           `json:"patient_responsibility"`
	Claims                []ClaimRemittance `json:"claims"`
}

// X12Request is the input to GenerateX12Format. Exactly the section that
// matches the transaction type is used.
type X12Request struct {
	InterchangeControl string               `json:"interchange_control,omitempty"`
	GroupControl       string               `json:"group_control,omitempty"`
	TransactionControl string               `json:"transaction_control,omitempty"`
	Eligibility        *EligibilityRequest  `json:"eligibility,omitempty"`
	ClaimStatus        *ClaimStatusRequest  `json:"claim_status,omitempty"`
	Claim              *ClaimSubmission     `json:"claim,omitempty"`
	Remittance         *RemittanceInput     `json:"remittance,omitempty"`
	Status             *ClaimStatusResponse `json:"status,omitempty"`
}
