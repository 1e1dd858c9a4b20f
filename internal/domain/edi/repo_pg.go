package edi

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/db"
)

// =========== Transaction Repository ===========

type transactionRepoPG struct{ pool *pgxpool.Pool }

func NewTransactionRepoPG(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepoPG{pool: pool}
}

const txCols = `id, transaction_type, status, claim_id, control_number, payload, response,
	ack_code, error_message, company_id, created_by, created_at, updated_at`

func (r *transactionRepoPG) Create(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO edi_transactions (id, transaction_type, status, claim_id, control_number,
			payload, response, ack_code, error_message, company_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		t.ID, t.TransactionType, t.Status, t.ClaimID, t.ControlNumber,
		t.Payload, t.Response, t.AckCode, t.ErrorMessage, t.CompanyID, t.CreatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *transactionRepoPG) GetByID(ctx context.Context, id uuid.UUID, companyID string) (*Transaction, error) {
	q := db.NewQuery("edi_transactions", txCols).Eq("id", id)
	if companyID != "" {
		q.CompanyScoped(companyID)
	}
	sql, args := q.SQL()
	var t Transaction
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...).
		Scan(&t.ID, &t.TransactionType, &t.Status, &t.ClaimID, &t.ControlNumber, &t.Payload, &t.Response,
			&t.AckCode, &t.ErrorMessage, &t.CompanyID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Update persists status and outcome fields. Rows already in a terminal
// state are left untouched.
func (r *transactionRepoPG) Update(ctx context.Context, t *Transaction) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE edi_transactions
		SET status = $2, response = $3, ack_code = $4, error_message = $5, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('processed', 'rejected')
		RETURNING updated_at`,
		t.ID, t.Status, t.Response, t.AckCode, t.ErrorMessage,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrImmutableTransaction
	}
	return err
}

// =========== Eligibility Repository ===========

type eligibilityRepoPG struct{ pool *pgxpool.Pool }

func NewEligibilityRepoPG(pool *pgxpool.Pool) EligibilityRepository {
	return &eligibilityRepoPG{pool: pool}
}

func (r *eligibilityRepoPG) ResolvePatientCode(ctx context.Context, code, companyID string) (string, error) {
	q := db.NewQuery("patients", "id::text").Eq("patient_code", code)
	if companyID != "" {
		q.CompanyScoped(companyID)
	}
	sql, args := q.OrderBy("created_at DESC").Limit(1).SQL()

	var id string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

const verificationCols = `id::text, patient_id::text, subscriber_id, payer_id, is_eligible,
	copay, deductible, coinsurance, out_of_pocket_max, benefits,
	effective_date, termination_date, service_date, verification_date, created_at`

func (r *eligibilityRepoPG) FindLatest(ctx context.Context, s VerificationSearch) (*Verification, error) {
	q := db.NewQuery("eligibility_verifications", verificationCols)
	switch {
	case s.PatientID != "":
		q.Eq("patient_id", s.PatientID)
	case s.SubscriberID != "":
		q.Eq("subscriber_id", s.SubscriberID)
	}
	if s.PayerID != "" {
		if s.PayerExact {
			q.Eq("payer_id", s.PayerID)
		} else {
			q.ILike("payer_id", s.PayerID)
		}
	}
	if !s.ServiceDate.IsZero() {
		q.EitherEq("service_date", "verification_date", s.ServiceDate.Format("2006-01-02"))
	}
	if s.CompanyID != "" {
		q.Eq("company_id", s.CompanyID)
	}
	sql, args := q.OrderBy("created_at DESC").Limit(1).SQL()

	var v Verification
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...).Scan(
		&v.ID, &v.PatientID, &v.SubscriberID, &v.PayerID, &v.IsEligible,
		&v.Copay, &v.Deductible, &v.Coinsurance, &v.OutOfPocketMax, &v.Benefits,
		&v.EffectiveDate, &v.TerminationDate, &v.ServiceDate, &v.VerificationDate, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
