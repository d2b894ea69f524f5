// internal/workers/inquiry/ingest-inquiry-email/models.go
package ingestinquiryemail

import "encoding/json"

type Input struct {
	OwnerID string `json:"ownerId"`
	Mailbox string `json:"mailbox,omitempty"`
	Save    bool   `json:"save"`
}

type Output struct {
	Mail       MailSummary     `json:"mail"`
	Extraction json.RawMessage `json:"extraction"`
	Draft      *Draft          `json:"draft"`
	Saved      *SavedIDs       `json:"saved"` // null on dry runs
}

type MailSummary struct {
	Subject       string `json:"subject"`
	SenderAddress string `json:"senderAddress"`
	SentAt        string `json:"sentAt"` // ISO 8601
}

type SavedIDs struct {
	InquiryID   int64 `json:"inquiryId"`
	QuotationID int64 `json:"quotationId"`
}

// RawExtraction is the AI service's unvalidated output. The top-level shape
// is checked by the extraction client; every field value inside is still of
// unknown type until normalization coerces it.
type RawExtraction struct {
	Customer map[string]interface{} `json:"customer"`
	Delivery map[string]interface{} `json:"delivery"`
	Items    []interface{}          `json:"items"`
}

// Draft is the canonical, validated form of an extraction. CustomerName and
// CustomerCountry are always materialized, even when empty; the remaining
// text fields are nil when absent. Immutable once built.
type Draft struct {
	CustomerName    string  `json:"customerName"`
	CustomerCountry string  `json:"customerCountry"`
	BillingAddress  *string `json:"billingAddress"`
	ContactPerson   *string `json:"contactPerson"`
	ContactPhone    *string `json:"contactPhone"`
	ContactEmail    *string `json:"contactEmail"`

	DeliveryCompanyName   *string `json:"deliveryCompanyName"`
	DeliveryAddress       *string `json:"deliveryAddress"`
	DeliveryContactPerson *string `json:"deliveryContactPerson"`
	DeliveryPhone         *string `json:"deliveryPhone"`
	DeliveryEmail         *string `json:"deliveryEmail"`

	Lines []DraftLine `json:"lines"`
}

// DraftLine exists only when brand, catalog and a positive integer quantity
// were all present on the extracted item.
type DraftLine struct {
	BrandInput        string `json:"brandInput"`
	CatalogUpper      string `json:"catalogUpper"`
	NormalizedCatalog string `json:"normalizedCatalog"`
	Quantity          int    `json:"quantity"`
}

// RejectedLine records why an extracted item did not survive normalization.
type RejectedLine struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// PersistResult carries the identifiers of the record graph written by Persist.
type PersistResult struct {
	InquiryID        int64
	QuotationID      int64
	InquiryItemIDs   []int64
	QuotationItemIDs []int64
}
