package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const currentVATRateSQL = `
SELECT rate_percent::text
FROM tax_rules
WHERE tax_type = 'VAT'
  AND effective_from <= now()
  AND (effective_to IS NULL OR effective_to >= now())
ORDER BY effective_from DESC
LIMIT 1`

// Store reads the currently effective VAT rate from the tax_rules table.
// Rates are effective-dated so rate changes can be staged ahead of time from
// the settings screens.
type Store struct {
	Pool *pgxpool.Pool
}

// CurrentRate returns the effective VAT rate. No matching row resolves to
// ErrUnavailable rather than a hard failure.
func (s Store) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	if s.Pool == nil {
		return decimal.Decimal{}, ErrUnavailable
	}
	var raw string
	if err := s.Pool.QueryRow(ctx, currentVATRateSQL).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, ErrUnavailable
		}
		return decimal.Decimal{}, fmt.Errorf("rates: query vat rate: %w", err)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rates: parse vat rate %q: %w", raw, err)
	}
	if rate.IsNegative() {
		return decimal.Decimal{}, ErrUnavailable
	}
	return rate, nil
}
