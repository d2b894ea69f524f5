// internal/workers/inquiry/ingest-inquiry-email/normalizer.go
package ingestinquiryemail

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// NormalizeCatalog upper-cases a catalog string and removes all whitespace,
// underscore and hyphen characters. The result is the equality key for price
// matching; brand alias lookup does NOT use it.
func NormalizeCatalog(catalog string) string {
	var b strings.Builder
	b.Grow(len(catalog))
	for _, r := range strings.ToUpper(catalog) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeDraft converts a raw extraction into a canonical Draft. It never
// fails: absent or malformed fields become empty/absent values, and items
// missing brand, catalog or a positive integer quantity are dropped. Dropped
// items are reported back as RejectedLines for diagnostics only. Surviving
// lines keep the extraction's original order.
func NormalizeDraft(raw *RawExtraction) (*Draft, []RejectedLine) {
	draft := &Draft{}

	if raw == nil {
		return draft, nil
	}

	draft.CustomerName = coerceString(raw.Customer["name"])
	draft.CustomerCountry = coerceString(raw.Customer["country"])
	draft.BillingAddress = optionalString(raw.Customer["billing_address"])
	draft.ContactPerson = optionalString(raw.Customer["contact_person"])
	draft.ContactPhone = optionalString(raw.Customer["phone"])
	draft.ContactEmail = optionalString(raw.Customer["email"])

	draft.DeliveryCompanyName = optionalString(raw.Delivery["company_name"])
	draft.DeliveryAddress = optionalString(raw.Delivery["address"])
	draft.DeliveryContactPerson = optionalString(raw.Delivery["contact_person"])
	draft.DeliveryPhone = optionalString(raw.Delivery["phone"])
	draft.DeliveryEmail = optionalString(raw.Delivery["email"])

	var rejected []RejectedLine
	for i, item := range raw.Items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			rejected = append(rejected, RejectedLine{Index: i, Reason: "item is not an object"})
			continue
		}

		brand := coerceString(obj["brand"])
		catalog := coerceString(obj["catalog_number"])
		quantity, qtyOK := coerceQuantity(obj["quantity"])

		switch {
		case brand == "":
			rejected = append(rejected, RejectedLine{Index: i, Reason: "missing brand"})
		case catalog == "":
			rejected = append(rejected, RejectedLine{Index: i, Reason: "missing catalog number"})
		case !qtyOK || quantity <= 0:
			rejected = append(rejected, RejectedLine{Index: i, Reason: "quantity is not a positive integer"})
		default:
			draft.Lines = append(draft.Lines, DraftLine{
				BrandInput:        strings.ToUpper(brand),
				CatalogUpper:      strings.ToUpper(catalog),
				NormalizedCatalog: NormalizeCatalog(catalog),
				Quantity:          quantity,
			})
		}
	}

	return draft, rejected
}

// coerceString turns a loosely-typed JSON value into a trimmed string.
// Unsupported types collapse to "".
func coerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// optionalString is coerceString with empty mapped to absent.
func optionalString(v interface{}) *string {
	s := coerceString(v)
	if s == "" {
		return nil
	}
	return &s
}

// coerceQuantity accepts JSON numbers that are whole, and strings holding a
// base-10 integer. The caller still checks for > 0.
func coerceQuantity(v interface{}) (int, bool) {
	switch q := v.(type) {
	case float64:
		if q != math.Trunc(q) {
			return 0, false
		}
		return int(q), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(q))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
