package report

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/export"
)

func TestService_Create_SetsOwnerAndCompany(t *testing.T) {
	svc := newTestService(newMockRepo(), 100)
	d, err := svc.Create(userCtx("u1"), denialsByCode())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, "u1", d.OwnerID)
	require.NotNil(t, d.CompanyID)
	assert.Equal(t, "acme", *d.CompanyID)
}

func TestService_Create_UnknownOwner(t *testing.T) {
	svc := newTestService(newMockRepo(), 100)
	d, err := svc.Create(context.Background(), denialsByCode())
	require.NoError(t, err)
	assert.Equal(t, auth.UnknownActor.ID, d.OwnerID)
	assert.Nil(t, d.CompanyID)
}

func TestService_Create_Invalid(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, 100)
	d := denialsByCode()
	d.DataSource = "pg_catalog"
	_, err := svc.Create(userCtx("u1"), d)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
	assert.Equal(t, 0, repo.created)
}

func TestService_UpdateDelete_OwnerOrAdmin(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, 100)
	d, err := svc.Create(userCtx("u1"), denialsByCode())
	require.NoError(t, err)

	change := denialsByCode()
	change.Name = "Renamed"
	_, err = svc.Update(userCtx("u2", "billing"), d.ID, change)
	assert.True(t, errors.Is(err, ErrForbidden))

	updated, err := svc.Update(userCtx("u1"), d.ID, change)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "u1", updated.OwnerID)

	assert.True(t, errors.Is(svc.Delete(userCtx("u2"), d.ID), ErrForbidden))
	require.NoError(t, svc.Delete(userCtx("u3", "admin"), d.ID))
	_, err = svc.Get(userCtx("u1"), d.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestService_List_OwnerScope(t *testing.T) {
	svc := newTestService(newMockRepo(), 100)
	_, err := svc.Create(userCtx("u1"), denialsByCode())
	require.NoError(t, err)
	_, err = svc.Create(userCtx("u2"), denialsByCode())
	require.NoError(t, err)

	mine, total, err := svc.List(userCtx("u1"), false, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, mine, 1)

	_, total, err = svc.List(userCtx("u1"), true, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestService_Run(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, 100)
	d, err := svc.Create(userCtx("u1"), denialsByCode())
	require.NoError(t, err)

	_, res, err := svc.Run(userCtx("u1"), d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metadata.RecordCount)
	assert.False(t, res.Metadata.Truncated)
	assert.Equal(t, []int{101}, repo.fetched)
}

func TestService_Run_Truncates(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, 2)
	res, err := svc.Preview(userCtx("u1"), denialsByCode())
	require.NoError(t, err)
	assert.True(t, res.Metadata.Truncated)
	assert.Equal(t, 2, res.Metadata.SourceRows)
	assert.Equal(t, 120.0, res.Aggregates["denied_amount"])
}

func TestService_Preview_Invalid(t *testing.T) {
	svc := newTestService(newMockRepo(), 100)
	d := denialsByCode()
	d.Filters = []Filter{{Field: "denied_amount", Operator: OpBetween, Value: 5}}
	_, err := svc.Preview(userCtx("u1"), d)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
}

func TestService_Export(t *testing.T) {
	svc := newTestService(newMockRepo(), 100)
	d, err := svc.Create(userCtx("u1"), denialsByCode())
	require.NoError(t, err)

	f, err := svc.Export(userCtx("u1"), d.ID, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "denials_by_code_export_2024-03-01.csv", f.Filename)
	assert.Equal(t, export.FormatCSV.ContentType(), f.ContentType)
	assert.Contains(t, string(f.Data), `"CO-50","150"`)

	_, err = svc.Export(userCtx("u1"), d.ID, export.FormatExcel)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestService_Import_AllOrNothing(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, 100)
	bad := denialsByCode()
	bad.Fields[1].Aggregate = "median"

	_, err := svc.Import(userCtx("u1"), []*Definition{denialsByCode(), bad})
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
	assert.Equal(t, 0, repo.created)

	created, err := svc.Import(userCtx("u1"), Predefined())
	require.NoError(t, err)
	assert.Len(t, created, len(Predefined()))
	assert.Equal(t, len(created), repo.created)
}

func TestService_Import_InOneTransaction(t *testing.T) {
	repo := newMockRepo()
	tx := &stubTx{}
	svc := newTestService(repo, 100).WithTransactions(&stubBeginner{tx: tx})

	created, err := svc.Import(userCtx("u1"), Predefined())
	require.NoError(t, err)
	assert.Len(t, created, len(Predefined()))
	assert.Equal(t, len(created), repo.createdInTx)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestService_Import_RollsBackOnCreateFailure(t *testing.T) {
	repo := newMockRepo()
	repo.failCreate = 2
	tx := &stubTx{}
	svc := newTestService(repo, 100).WithTransactions(&stubBeginner{tx: tx})

	created, err := svc.Import(userCtx("u1"), Predefined())
	require.Error(t, err)
	assert.Nil(t, created)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "denials_by_code", slug("Denials by code"))
	assert.Equal(t, "a_r_aging", slug("  A/R -- Aging! "))
	assert.Equal(t, "report", slug("***"))
}

func TestService_ScopesDefinitionsToCompany(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, 100)
	d, err := svc.Create(userCtx("u1"), denialsByCode())
	require.NoError(t, err)

	other := db.WithCompany(userCtx("u1", "admin"), "globex")
	_, err = svc.Get(other, d.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, _, err = svc.Run(other, d.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.Update(other, d.ID, denialsByCode())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(other, d.ID), ErrNotFound))

	items, total, err := svc.List(other, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)

	_, err = svc.Get(userCtx("u2"), d.ID)
	assert.NoError(t, err)
}
