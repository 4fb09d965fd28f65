package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewStorage(sqlx.NewDb(conn, "postgres")), mock
}

func TestSessionOpeningTime(t *testing.T) {
	store, mock := newMockStorage(t)
	ctx := context.Background()
	tenderID := uuid.New()
	opening := time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("SELECT session_opening_time FROM tender WHERE id = $1")

	mock.ExpectQuery(query).WithArgs(tenderID).
		WillReturnRows(sqlmock.NewRows([]string{"session_opening_time"}).AddRow(opening))
	got, err := store.SessionOpeningTime(ctx, tenderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(opening))

	mock.ExpectQuery(query).WithArgs(tenderID).
		WillReturnRows(sqlmock.NewRows([]string{"session_opening_time"}).AddRow(nil))
	got, err = store.SessionOpeningTime(ctx, tenderID)
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectQuery(query).WithArgs(tenderID).
		WillReturnRows(sqlmock.NewRows([]string{"session_opening_time"}))
	_, err = store.SessionOpeningTime(ctx, tenderID)
	assert.ErrorIs(t, err, proposal.ErrRecordNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenderLineItem(t *testing.T) {
	store, mock := newMockStorage(t)
	id, tenderID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tender_line_item WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tender_id", "quantity", "unit_of_measure"}).
			AddRow(id.String(), tenderID.String(), "12.500", "кг"))

	tli, err := store.TenderLineItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, tli.ID)
	assert.Equal(t, tenderID, tli.TenderID)
	assert.True(t, tli.Quantity.Equal(decimal.RequireFromString("12.5")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_UniqueViolationRollsBack(t *testing.T) {
	store, mock := newMockStorage(t)
	p := &models.Proposal{ID: uuid.New(), TenderID: uuid.New(), SupplierID: uuid.New(), Status: models.StatusDraft, Version: 1}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO proposal").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "proposal_tender_id_supplier_id_key"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx proposal.Tx) error {
		return tx.InsertProposal(ctx, p)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, proposal.ErrUniqueViolation))
	assert.Contains(t, err.Error(), "proposal_tender_id_supplier_id_key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	store, mock := newMockStorage(t)
	item := &models.ProposalLineItem{
		ID: uuid.New(), ProposalID: uuid.New(), TenderLineItemID: uuid.New(),
		UnitPrice: decimal.RequireFromString("10"), Quantity: decimal.RequireFromString("5"),
		LineTotal: decimal.RequireFromString("50"),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO proposal_item").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx proposal.Tx) error {
		return tx.InsertLineItem(ctx, item)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = store.InTx(context.Background(), func(context.Context, proposal.Tx) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProposal_StaleVersion(t *testing.T) {
	store, mock := newMockStorage(t)
	p := &models.Proposal{ID: uuid.New(), Status: models.StatusSubmitted, Version: 3}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE proposal SET .*version = version \+ 1.* WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx proposal.Tx) error {
		return tx.UpdateProposal(ctx, p)
	})

	assert.ErrorIs(t, err, proposal.ErrStaleVersion)
	assert.Equal(t, 3, p.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProposal_BumpsVersion(t *testing.T) {
	store, mock := newMockStorage(t)
	p := &models.Proposal{ID: uuid.New(), Status: models.StatusSubmitted, Version: 3}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE proposal SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx proposal.Tx) error {
		return tx.UpdateProposal(ctx, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, p.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockProposal_SelectsForUpdate(t *testing.T) {
	store, mock := newMockStorage(t)
	id, tenderID, supplierID := uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	row := sqlmock.NewRows(proposalColumns).AddRow(
		id.String(), tenderID.String(), supplierID.String(), "Draft",
		true, true, true, false, false,
		"ул. Мира, 5", "Самара", "", "443000",
		"48.5", true,
		60, nil, "",
		nil, nil, 2, now, now,
	)
	items := sqlmock.NewRows(lineItemColumns).AddRow(
		uuid.New().String(), id.String(), uuid.New().String(), "10", "5", "50",
		"Acme", "X1", "", "", 7, nil,
		now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM proposal WHERE id = \$1 FOR UPDATE`).WithArgs(id).WillReturnRows(row)
	mock.ExpectQuery(`FROM proposal_item WHERE proposal_id = \$1 ORDER BY created_at, id`).WithArgs(id).WillReturnRows(items)
	mock.ExpectCommit()

	var got *models.Proposal
	err := store.InTx(context.Background(), func(ctx context.Context, tx proposal.Tx) error {
		var err error
		got, err = tx.LockProposal(ctx, id)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusDraft, got.Status)
	assert.True(t, got.Declarations.AcceptsTerms)
	assert.Equal(t, "Самара", got.DeliveryAddress.City)
	assert.True(t, got.AggregateTotal.Overridden)
	assert.True(t, got.AggregateTotal.Value.Equal(decimal.RequireFromString("48.5")))
	assert.Equal(t, 2, got.Version)
	require.Len(t, got.Items, 1)
	require.NotNil(t, got.Items[0].DeliveryDays)
	assert.Equal(t, 7, *got.Items[0].DeliveryDays)
	assert.Nil(t, got.Items[0].WarrantyMonths)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProposal_NotFound(t *testing.T) {
	store, mock := newMockStorage(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM proposal WHERE id = \$1`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(proposalColumns))

	_, err := store.GetProposal(context.Background(), id)
	assert.ErrorIs(t, err, proposal.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRankingCandidates_FiltersRejectedStatuses(t *testing.T) {
	store, mock := newMockStorage(t)
	lineID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM proposal_item i JOIN proposal p ON p.id = i.proposal_id WHERE i.tender_line_item_id = $1 AND p.status NOT IN ($2,$3)")).
		WithArgs(lineID, "Disqualified", "Cancelled").
		WillReturnRows(sqlmock.NewRows([]string{
			"proposal_id", "supplier_id", "status", "line_item_id", "unit_price", "line_total", "brand", "model",
		}).AddRow(uuid.New().String(), uuid.New().String(), "Submitted", uuid.New().String(), "8", "40", "", ""))

	candidates, err := store.RankingCandidates(context.Background(), lineID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.StatusSubmitted, candidates[0].ProposalStatus)
	assert.True(t, candidates[0].UnitPrice.Equal(decimal.NewFromInt(8)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplierNames(t *testing.T) {
	store, mock := newMockStorage(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM supplier WHERE id IN ($1,$2)")).
		WithArgs(a, b).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(a.String(), "ООО Ромашка"))

	names, err := store.SupplierNames(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{a: "ООО Ромашка"}, names)

	empty, err := store.SupplierNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByTender_LoadsItemsInOneQuery(t *testing.T) {
	store, mock := newMockStorage(t)
	tenderID := uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	now := time.Now().UTC()

	row := func(id uuid.UUID) []driver.Value {
		return []driver.Value{
			id.String(), tenderID.String(), uuid.New().String(), "Submitted",
			true, true, true, false, false,
			"", "", "", "",
			"10", false,
			60, nil, "",
			now, nil, 2, now, now,
		}
	}
	proposals := sqlmock.NewRows(proposalColumns)
	proposals.AddRow(row(p1)...)
	proposals.AddRow(row(p2)...)

	mock.ExpectQuery(regexp.QuoteMeta("FROM proposal WHERE tender_id = $1 ORDER BY created_at DESC, id LIMIT 5 OFFSET 0")).
		WithArgs(tenderID).
		WillReturnRows(proposals)
	mock.ExpectQuery(regexp.QuoteMeta("FROM proposal_item WHERE proposal_id IN ($1,$2)")).
		WithArgs(p1, p2).
		WillReturnRows(sqlmock.NewRows(lineItemColumns).AddRow(
			uuid.New().String(), p2.String(), uuid.New().String(), "2", "5", "10",
			"", "", "", "", nil, nil, now, now,
		))

	list, err := store.ListByTender(context.Background(), tenderID, 5, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Empty(t, list[0].Items)
	assert.Len(t, list[1].Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
