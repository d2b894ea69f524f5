// internal/workers/inquiry/ingest-inquiry-email/store.go
package ingestinquiryemail

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"inquiry-workers/internal/common/logger"
	"inquiry-workers/internal/common/metrics"
)

const (
	StatusDraft = "draft"

	MatchStatusMatched  = "matched"
	MatchStatusNotFound = "not_found"
)

const (
	insertInquirySQL = `
		INSERT INTO inquiries (
			owner_id, customer_name, customer_country, billing_address,
			contact_person, contact_phone, contact_email, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`

	insertInquiryItemSQL = `
		INSERT INTO inquiry_items (
			inquiry_id, brand, catalog_number, normalized_catalog, quantity
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	insertQuotationSQL = `
		INSERT INTO quotations (inquiry_id, status, metadata, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id`

	insertQuotationItemSQL = `
		INSERT INTO quotation_items (
			quotation_id, inquiry_item_id, brand_input, brand_resolved,
			match_status, price_list_entry_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	priceLookupSQL = `
		SELECT id FROM price_list
		WHERE brand = $1 AND normalized_catalog = $2
		ORDER BY id ASC LIMIT 1`
)

// Store persists a Draft as the inquiry/quotation record graph. Every insert
// is a separate round trip in a fixed order: inquiry, inquiry items, quotation,
// quotation items. By default a failure mid-sequence leaves earlier writes
// committed; with compensate enabled, already-inserted rows are deleted in
// reverse order before the error is returned.
type Store struct {
	db         *sql.DB
	brands     *BrandResolver
	compensate bool
	logger     logger.Logger
}

func NewStore(db *sql.DB, brands *BrandResolver, compensate bool, log logger.Logger) *Store {
	return &Store{
		db:         db,
		brands:     brands,
		compensate: compensate,
		logger:     log.WithFields(map[string]interface{}{"component": "inquiry-store"}),
	}
}

// Persist writes the full record graph for draft under ownerID and returns the
// created identifiers. A draft with zero lines fails with NO_VALID_LINES before
// any write. On a later failure the error reports which writes remain committed.
func (s *Store) Persist(ctx context.Context, draft *Draft, ownerID string) (*PersistResult, error) {
	if draft == nil || len(draft.Lines) == 0 {
		return nil, ErrNoValidLines
	}

	var undo []undoStep
	fail := func(err error) (*PersistResult, error) {
		if s.compensate {
			s.runCompensation(ctx, undo)
			return nil, err
		}
		if len(undo) > 0 {
			s.logger.Error("persistence aborted with partial writes committed", map[string]interface{}{
				"committedRows": len(undo),
				"error":         err.Error(),
			})
		}
		return nil, err
	}

	// Step 1: inquiry row
	var inquiryID int64
	err := s.db.QueryRowContext(ctx, insertInquirySQL,
		ownerID,
		draft.CustomerName,
		draft.CustomerCountry,
		nullable(draft.BillingAddress),
		nullable(draft.ContactPerson),
		nullable(draft.ContactPhone),
		nullable(draft.ContactEmail),
		StatusDraft,
	).Scan(&inquiryID)
	if err != nil {
		return nil, fmt.Errorf("%w: inquiries insert: %v", ErrDatabaseInsertFailed, err)
	}
	undo = append(undo, undoStep{table: "inquiries", id: inquiryID})

	// Step 2: inquiry items, in draft order, resolving brands as we go
	resolvedBrands := make([]string, 0, len(draft.Lines))
	itemIDs := make([]int64, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		brand, err := s.brands.Resolve(ctx, line.BrandInput)
		if err != nil {
			return fail(err)
		}
		resolvedBrands = append(resolvedBrands, brand)

		var itemID int64
		err = s.db.QueryRowContext(ctx, insertInquiryItemSQL,
			inquiryID, brand, line.CatalogUpper, line.NormalizedCatalog, line.Quantity,
		).Scan(&itemID)
		if err != nil {
			return fail(fmt.Errorf("%w: inquiry_items insert: %v", ErrDatabaseInsertFailed, err))
		}
		itemIDs = append(itemIDs, itemID)
		undo = append(undo, undoStep{table: "inquiry_items", id: itemID})
	}

	// Step 3: quotation row with delivery metadata
	metadata, err := json.Marshal(deliveryMetadata(draft))
	if err != nil {
		return fail(fmt.Errorf("%w: marshal quotation metadata: %v", ErrDatabaseInsertFailed, err))
	}

	var quotationID int64
	err = s.db.QueryRowContext(ctx, insertQuotationSQL,
		inquiryID, StatusDraft, metadata,
	).Scan(&quotationID)
	if err != nil {
		return fail(fmt.Errorf("%w: quotations insert: %v", ErrDatabaseInsertFailed, err))
	}
	undo = append(undo, undoStep{table: "quotations", id: quotationID})

	// Step 4: quotation items, matching each against the price list
	quotationItemIDs := make([]int64, 0, len(draft.Lines))
	for i, line := range draft.Lines {
		var priceEntryID sql.NullInt64
		matchStatus := MatchStatusMatched

		err := s.db.QueryRowContext(ctx, priceLookupSQL,
			resolvedBrands[i], line.NormalizedCatalog,
		).Scan(&priceEntryID.Int64)
		switch {
		case err == sql.ErrNoRows:
			matchStatus = MatchStatusNotFound
		case err != nil:
			return fail(fmt.Errorf("%w: price_list lookup: %v", ErrStoreLookupFailed, err))
		default:
			priceEntryID.Valid = true
		}
		metrics.PriceMatches.WithLabelValues(matchStatus).Inc()

		var quotationItemID int64
		err = s.db.QueryRowContext(ctx, insertQuotationItemSQL,
			quotationID, itemIDs[i], line.BrandInput, resolvedBrands[i], matchStatus, priceEntryID,
		).Scan(&quotationItemID)
		if err != nil {
			return fail(fmt.Errorf("%w: quotation_items insert: %v", ErrDatabaseInsertFailed, err))
		}
		quotationItemIDs = append(quotationItemIDs, quotationItemID)
		undo = append(undo, undoStep{table: "quotation_items", id: quotationItemID})
	}

	s.logger.Info("inquiry graph persisted", map[string]interface{}{
		"inquiryId":   inquiryID,
		"quotationId": quotationID,
		"lines":       len(draft.Lines),
	})

	return &PersistResult{
		InquiryID:        inquiryID,
		QuotationID:      quotationID,
		InquiryItemIDs:   itemIDs,
		QuotationItemIDs: quotationItemIDs,
	}, nil
}

type undoStep struct {
	table string
	id    int64
}

// runCompensation deletes already-written rows in reverse insertion order.
// Compensation errors are logged and never mask the original failure.
func (s *Store) runCompensation(ctx context.Context, undo []undoStep) {
	for i := len(undo) - 1; i >= 0; i-- {
		step := undo[i]
		query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", step.table)
		if _, err := s.db.ExecContext(ctx, query, step.id); err != nil {
			s.logger.Warn("compensation delete failed", map[string]interface{}{
				"table": step.table,
				"id":    step.id,
				"error": err.Error(),
			})
		}
	}
}

// deliveryMetadata builds the quotation metadata block. Absent draft fields
// become empty strings here, not nulls.
func deliveryMetadata(draft *Draft) map[string]string {
	return map[string]string{
		"delivery_company_name":   emptyIfNil(draft.DeliveryCompanyName),
		"delivery_address":        emptyIfNil(draft.DeliveryAddress),
		"delivery_contact_person": emptyIfNil(draft.DeliveryContactPerson),
		"delivery_phone":          emptyIfNil(draft.DeliveryPhone),
		"delivery_email":          emptyIfNil(draft.DeliveryEmail),
	}
}

func nullable(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func emptyIfNil(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
