package rates

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable indicates no VAT rate could be resolved. Callers treat this
// as a soft failure: tax degrades to zero and the last known totals survive.
var ErrUnavailable = errors.New("rates: vat rate unavailable")

// Provider resolves the VAT rate that applies right now. Implementations may
// hit Postgres, Redis, or static configuration; the calculation core only
// sees this interface.
type Provider interface {
	CurrentRate(ctx context.Context) (decimal.Decimal, error)
}

// Static always returns a fixed rate. Used as the configuration fallback and
// in tests.
type Static struct {
	Rate decimal.Decimal
}

// CurrentRate returns the configured rate. A negative rate means "not
// configured" and resolves to ErrUnavailable.
func (s Static) CurrentRate(context.Context) (decimal.Decimal, error) {
	if s.Rate.IsNegative() {
		return decimal.Decimal{}, ErrUnavailable
	}
	return s.Rate, nil
}

// Chain tries each provider in order and returns the first rate found.
type Chain []Provider

// CurrentRate walks the chain. Individual provider failures are collected
// and only surface when every provider fails.
func (c Chain) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	var joined error
	for _, p := range c {
		if p == nil {
			continue
		}
		rate, err := p.CurrentRate(ctx)
		if err == nil {
			return rate, nil
		}
		joined = errors.Join(joined, err)
	}
	if joined == nil {
		joined = ErrUnavailable
	}
	return decimal.Decimal{}, errors.Join(ErrUnavailable, joined)
}
