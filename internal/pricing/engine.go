package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// minorUnits is the currency precision items are rounded to. Rounding happens
// at the item level only; aggregation sums already-rounded values so totals
// never drift from the rows they are built from.
const minorUnits = 2

func roundMinor(d decimal.Decimal) decimal.Decimal {
	return d.Round(minorUnits)
}

// ResolveDiscount returns the discount amount for the given base. A
// percentage discount takes discountVal as percent of base; any other type,
// including unrecognised ones, is treated as a fixed amount. The result is
// clamped to [0, base] so a discount can zero a line but never flip its sign.
func ResolveDiscount(base decimal.Decimal, typ DiscountType, discountVal decimal.Decimal) decimal.Decimal {
	if discountVal.IsNegative() {
		discountVal = decimal.Zero
	}
	var amount decimal.Decimal
	switch typ {
	case DiscountPercentage:
		amount = roundMinor(base.Mul(discountVal).Div(hundred))
	default:
		amount = roundMinor(discountVal)
	}
	if amount.GreaterThan(base) {
		return base
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// ResolveTax applies a percentage rate to the taxable base, rounded half-up
// to the currency's minor unit.
func ResolveTax(base, ratePercent decimal.Decimal) decimal.Decimal {
	return roundMinor(base.Mul(ratePercent).Div(hundred))
}

// CalculateItem derives every pricing field for a single line item. Negative
// quantities and prices are normalised to zero before any arithmetic, so the
// function always returns a result and never reports an error.
func CalculateItem(item LineItem, vatRate decimal.Decimal) ItemResult {
	qty := item.Quantity
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	price := item.PricePerUnit
	if price.IsNegative() {
		price = decimal.Zero
	}

	gross := roundMinor(qty.Mul(price))
	discount := ResolveDiscount(gross, item.DiscountType, item.DiscountVal)
	taxable := gross.Sub(discount)
	tax := ResolveTax(taxable, vatRate)
	final := taxable.Add(tax)

	return ItemResult{
		ItemID:       item.ItemID,
		Quantity:     qty,
		PricePerUnit: price,
		DiscountType: item.DiscountType,
		DiscountVal:  item.DiscountVal,

		SubtotalBeforeDiscount: gross,
		DiscountAmount:         discount,
		SubtotalAfterDiscount:  taxable,
		TotalTax:               tax,
		SubtotalAfterTax:       final,

		Gross:    gross,
		Discount: discount,
		Taxable:  taxable,
		VAT:      tax,
		Final:    final,
	}
}

// CalculateItems prices each item in order with the same VAT rate.
func CalculateItems(items []LineItem, vatRate decimal.Decimal) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		results = append(results, CalculateItem(item, vatRate))
	}
	return results
}

// Aggregate folds item results into document totals. The fold is a plain sum
// per field, so the input order never changes the outcome. An empty input
// yields all-zero totals; callers that need to distinguish "no items" from
// "items summing to zero" should not call Aggregate for empty collections.
func Aggregate(results []ItemResult) DocumentTotals {
	var t DocumentTotals
	for _, r := range results {
		t.TotalQuantity = t.TotalQuantity.Add(r.Quantity)
		t.TotalGross = t.TotalGross.Add(r.SubtotalBeforeDiscount)
		t.TotalDiscount = t.TotalDiscount.Add(r.DiscountAmount)
		t.TotalTaxable = t.TotalTaxable.Add(r.SubtotalAfterDiscount)
		t.TotalVAT = t.TotalVAT.Add(r.TotalTax)
		t.FinalTotal = t.FinalTotal.Add(r.SubtotalAfterTax)
	}
	// Single tax category for now, so both breakdown fields mirror the VAT sum.
	t.TotalOutTaxes = t.TotalVAT
	t.TotalTaxes = t.TotalVAT
	return t
}
