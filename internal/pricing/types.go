package pricing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Monetary fields are serialised as plain JSON numbers, matching the
	// shape the admin frontend consumes.
	decimal.MarshalJSONWithoutQuotes = true
}

// DiscountType selects how a line item discount is interpreted.
type DiscountType int

const (
	// DiscountFixedAmount subtracts a flat amount from the line subtotal.
	DiscountFixedAmount DiscountType = 1
	// DiscountPercentage subtracts a percentage of the line subtotal.
	DiscountPercentage DiscountType = 2
)

// LineItem is one row submitted for calculation. Numeric fields are
// normalised during decoding: missing, malformed, or negative values become
// zero so a calculation always succeeds.
type LineItem struct {
	ItemID       int64           `json:"item_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	DiscountType DiscountType    `json:"discount_type"`
	DiscountVal  decimal.Decimal `json:"discount_val"`
}

// UnmarshalJSON decodes a line item accepting the legacy field synonyms the
// frontend still sends: unit_price for price_per_unit and discount for
// discount_val. A missing discount_type defaults to a fixed amount.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ItemID       int64           `json:"item_id"`
		Quantity     json.RawMessage `json:"quantity"`
		PricePerUnit json.RawMessage `json:"price_per_unit"`
		UnitPrice    json.RawMessage `json:"unit_price"`
		DiscountType *int            `json:"discount_type"`
		DiscountVal  json.RawMessage `json:"discount_val"`
		Discount     json.RawMessage `json:"discount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	li.ItemID = raw.ItemID
	li.Quantity = coerceDecimal(raw.Quantity)
	li.PricePerUnit = coerceDecimal(firstSet(raw.PricePerUnit, raw.UnitPrice))
	li.DiscountType = DiscountFixedAmount
	if raw.DiscountType != nil {
		li.DiscountType = DiscountType(*raw.DiscountType)
	}
	li.DiscountVal = coerceDecimal(firstSet(raw.DiscountVal, raw.Discount))
	return nil
}

// ItemResult carries every derived field for one calculated line item. The
// gross/discount/taxable/vat/final aliases duplicate the canonical fields and
// are retained because existing form components bind to them.
type ItemResult struct {
	ItemID       int64           `json:"item_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	DiscountType DiscountType    `json:"discount_type"`
	DiscountVal  decimal.Decimal `json:"discount_val"`

	SubtotalBeforeDiscount decimal.Decimal `json:"subtotal_before_discount"`
	DiscountAmount         decimal.Decimal `json:"discount_amount"`
	SubtotalAfterDiscount  decimal.Decimal `json:"subtotal_after_discount"`
	TotalTax               decimal.Decimal `json:"total_tax"`
	SubtotalAfterTax       decimal.Decimal `json:"subtotal_after_tax"`

	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount"`
	Taxable  decimal.Decimal `json:"taxable"`
	VAT      decimal.Decimal `json:"vat"`
	Final    decimal.Decimal `json:"final"`
}

// DocumentTotals aggregates calculated line items into document level sums.
type DocumentTotals struct {
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalGross    decimal.Decimal `json:"total_gross"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTaxable  decimal.Decimal `json:"total_taxable"`
	TotalVAT      decimal.Decimal `json:"total_vat"`
	FinalTotal    decimal.Decimal `json:"final_total"`
	TotalOutTaxes decimal.Decimal `json:"total_out_taxes"`
	TotalTaxes    decimal.Decimal `json:"total_taxes"`
}

func firstSet(primary, fallback json.RawMessage) json.RawMessage {
	if isSet(primary) {
		return primary
	}
	return fallback
}

func isSet(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// coerceDecimal converts a raw JSON value to a decimal, accepting numbers and
// numeric strings. Anything else degrades to zero rather than erroring.
func coerceDecimal(raw json.RawMessage) decimal.Decimal {
	if !isSet(raw) {
		return decimal.Zero
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
		return decimal.Zero
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	return decimal.Zero
}
