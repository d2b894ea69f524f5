package ingestinquiryemail

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inquiry-workers/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwnerID = "owner-42"

func newTestStore(t *testing.T, compensate bool) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewTestLogger(t)
	brands := NewBrandResolver(db, nil, time.Hour, log)
	return NewStore(db, brands, compensate, log), dbMock
}

func testDraft(lines ...DraftLine) *Draft {
	return &Draft{
		CustomerName:    "Acme GmbH",
		CustomerCountry: "DE",
		Lines:           lines,
	}
}

func line(brand, catalog string, qty int) DraftLine {
	return DraftLine{
		BrandInput:        brand,
		CatalogUpper:      catalog,
		NormalizedCatalog: NormalizeCatalog(catalog),
		Quantity:          qty,
	}
}

// metadataArg matches the marshaled quotation metadata column against an
// exact key/value map.
type metadataArg struct {
	want map[string]string
}

func (m metadataArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		s, ok := v.(string)
		if !ok {
			return false
		}
		b = []byte(s)
	}

	var got map[string]string
	if err := json.Unmarshal(b, &got); err != nil {
		return false
	}
	if len(got) != len(m.want) {
		return false
	}
	for k, want := range m.want {
		if got[k] != want {
			return false
		}
	}
	return true
}

// expectAliasFallback arms the alias lookup for one brand with a no-row result.
func expectAliasFallback(dbMock sqlmock.Sqlmock, brand string) {
	dbMock.ExpectQuery("SELECT standard_brand FROM brand_alias").
		WithArgs(brand).
		WillReturnError(sql.ErrNoRows)
}

// ==========================
// Success Path Tests
// ==========================

func TestStore_PersistFullGraph(t *testing.T) {
	store, dbMock := newTestStore(t, false)
	draft := testDraft(line("ABC CO", "XY-100", 5), line("ZETA", "Z-9", 1))

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WithArgs(testOwnerID, "Acme GmbH", "DE", nil, nil, nil, nil, StatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	// line 1: alias resolves, item inserted
	dbMock.ExpectQuery("SELECT standard_brand FROM brand_alias").
		WithArgs("ABC CO").
		WillReturnRows(sqlmock.NewRows([]string{"standard_brand"}).AddRow("ABC CORP"))
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WithArgs(1, "ABC CORP", "XY-100", "XY100", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	// line 2: no alias, input brand kept
	expectAliasFallback(dbMock, "ZETA")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WithArgs(1, "ZETA", "Z-9", "Z9", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	dbMock.ExpectQuery("INSERT INTO quotations").
		WithArgs(1, StatusDraft, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	// line 1 matches the price list, line 2 does not
	dbMock.ExpectQuery("SELECT id FROM price_list").
		WithArgs("ABC CORP", "XY100").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(501))
	dbMock.ExpectQuery("INSERT INTO quotation_items").
		WithArgs(2, 11, "ABC CO", "ABC CORP", MatchStatusMatched, int64(501)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))

	dbMock.ExpectQuery("SELECT id FROM price_list").
		WithArgs("ZETA", "Z9").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO quotation_items").
		WithArgs(2, 12, "ZETA", "ZETA", MatchStatusNotFound, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(22))

	result, err := store.Persist(context.Background(), draft, testOwnerID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.InquiryID)
	assert.Equal(t, int64(2), result.QuotationID)
	assert.Equal(t, []int64{11, 12}, result.InquiryItemIDs)
	assert.Equal(t, []int64{21, 22}, result.QuotationItemIDs)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStore_PersistOptionalFieldsPassedThrough(t *testing.T) {
	store, dbMock := newTestStore(t, false)

	billing := "Hauptstr. 1"
	email := "buyer@acme.example"
	draft := testDraft(line("B", "C1", 1))
	draft.BillingAddress = &billing
	draft.ContactEmail = &email

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WithArgs(testOwnerID, "Acme GmbH", "DE", billing, nil, nil, email, StatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	expectAliasFallback(dbMock, "B")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WithArgs(7, "B", "C1", "C1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(71))
	dbMock.ExpectQuery("INSERT INTO quotations").
		WithArgs(7, StatusDraft, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	dbMock.ExpectQuery("SELECT id FROM price_list").
		WithArgs("B", "C1").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO quotation_items").
		WithArgs(8, 71, "B", "B", MatchStatusNotFound, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(81))

	_, err := store.Persist(context.Background(), draft, testOwnerID)
	require.NoError(t, err)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStore_QuotationMetadataUsesEmptyStringsForAbsentFields(t *testing.T) {
	store, dbMock := newTestStore(t, false)

	address := "Lagerstr. 5, Hamburg"
	phone := "+49 40 9876"
	draft := testDraft(line("B", "C1", 1))
	draft.DeliveryAddress = &address
	draft.DeliveryPhone = &phone

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	expectAliasFallback(dbMock, "B")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	dbMock.ExpectQuery("INSERT INTO quotations").
		WithArgs(1, StatusDraft, metadataArg{want: map[string]string{
			"delivery_company_name":   "",
			"delivery_address":        address,
			"delivery_contact_person": "",
			"delivery_phone":          phone,
			"delivery_email":          "",
		}}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	dbMock.ExpectQuery("SELECT id FROM price_list").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO quotation_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))

	_, err := store.Persist(context.Background(), draft, testOwnerID)
	require.NoError(t, err)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

// ==========================
// Validation Tests
// ==========================

func TestStore_EmptyDraftFailsBeforeAnyWrite(t *testing.T) {
	store, dbMock := newTestStore(t, false)

	_, err := store.Persist(context.Background(), testDraft(), testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidLines))

	_, err = store.Persist(context.Background(), nil, testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidLines))

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

// ==========================
// Failure Path Tests
// ==========================

func TestStore_InquiryInsertFailureLeavesNothingCommitted(t *testing.T) {
	store, dbMock := newTestStore(t, false)

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WillReturnError(errors.New("disk full"))

	_, err := store.Persist(context.Background(), testDraft(line("B", "C1", 1)), testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStore_ItemInsertFailureKeepsEarlierWrites(t *testing.T) {
	store, dbMock := newTestStore(t, false)
	draft := testDraft(line("A", "1", 1), line("B", "2", 2), line("C", "3", 3))

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	expectAliasFallback(dbMock, "A")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WithArgs(1, "A", "1", "1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	// second item insert fails; nothing after it may run and nothing is undone
	expectAliasFallback(dbMock, "B")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WithArgs(1, "B", "2", "2", 2).
		WillReturnError(errors.New("connection lost"))

	_, err := store.Persist(context.Background(), draft, testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStore_PriceLookupTransportErrorAborts(t *testing.T) {
	store, dbMock := newTestStore(t, false)
	draft := testDraft(line("B", "C1", 1))

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	expectAliasFallback(dbMock, "B")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	dbMock.ExpectQuery("INSERT INTO quotations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	dbMock.ExpectQuery("SELECT id FROM price_list").
		WithArgs("B", "C1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Persist(context.Background(), draft, testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreLookupFailed))

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

// ==========================
// Compensation Mode Tests
// ==========================

func TestStore_CompensationDeletesInReverseOrder(t *testing.T) {
	store, dbMock := newTestStore(t, true)
	draft := testDraft(line("B", "C1", 1))

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	expectAliasFallback(dbMock, "B")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	dbMock.ExpectQuery("INSERT INTO quotations").
		WillReturnError(errors.New("disk full"))

	dbMock.ExpectExec("DELETE FROM inquiry_items").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("DELETE FROM inquiries").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.Persist(context.Background(), draft, testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStore_CompensationErrorsDoNotMaskOriginalFailure(t *testing.T) {
	store, dbMock := newTestStore(t, true)
	draft := testDraft(line("B", "C1", 1))

	dbMock.ExpectQuery("INSERT INTO inquiries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	expectAliasFallback(dbMock, "B")
	dbMock.ExpectQuery("INSERT INTO inquiry_items").
		WillReturnError(errors.New("insert failed"))

	dbMock.ExpectExec("DELETE FROM inquiries").
		WithArgs(int64(1)).
		WillReturnError(errors.New("delete also failed"))

	_, err := store.Persist(context.Background(), draft, testOwnerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))
	assert.Contains(t, err.Error(), "insert failed")

	assert.NoError(t, dbMock.ExpectationsWereMet())
}
