package edi

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type mockTransactionRepo struct {
	items   map[uuid.UUID]*Transaction
	history []Status
}

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{items: make(map[uuid.UUID]*Transaction)}
}

func (m *mockTransactionRepo) Create(_ context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.items[t.ID] = &cp
	m.history = append(m.history, t.Status)
	return nil
}

func (m *mockTransactionRepo) GetByID(_ context.Context, id uuid.UUID, companyID string) (*Transaction, error) {
	t, ok := m.items[id]
	if ok && companyID != "" && t.CompanyID != nil && *t.CompanyID != companyID {
		ok = false
	}
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *mockTransactionRepo) Update(_ context.Context, t *Transaction) error {
	stored, ok := m.items[t.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.Terminal() {
		return ErrImmutableTransaction
	}
	cp := *t
	m.items[t.ID] = &cp
	m.history = append(m.history, t.Status)
	return nil
}

type mockEligibilityRepo struct {
	patients     map[string]string
	verification *Verification
	err          error
	resolves     int
	searches     []VerificationSearch
}

func (m *mockEligibilityRepo) ResolvePatientCode(_ context.Context, code, _ string) (string, error) {
	m.resolves++
	return m.patients[code], nil
}

func (m *mockEligibilityRepo) FindLatest(_ context.Context, s VerificationSearch) (*Verification, error) {
	m.searches = append(m.searches, s)
	if m.err != nil {
		return nil, m.err
	}
	return m.verification, nil
}

type failingClearinghouse struct{}

func (failingClearinghouse) Send(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
