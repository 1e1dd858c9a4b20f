package edi

import (
	"context"

	"github.com/google/uuid"
)

type TransactionRepository interface {
	Create(ctx context.Context, t *Transaction) error
	// GetByID reads a transaction visible to companyID; "" skips the company
	// filter.
	GetByID(ctx context.Context, id uuid.UUID, companyID string) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
}

type EligibilityRepository interface {
	// ResolvePatientCode returns the canonical patient id for a
	// human-entered code, or "" when none matches.
	ResolvePatientCode(ctx context.Context, code, companyID string) (string, error)
	// FindLatest returns the newest matching verification, or nil.
	FindLatest(ctx context.Context, s VerificationSearch) (*Verification, error)
}
