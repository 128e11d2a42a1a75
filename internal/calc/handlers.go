package calc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hisab-app/backend-hisab/internal/common"
	"github.com/hisab-app/backend-hisab/internal/obs"
	"github.com/hisab-app/backend-hisab/internal/pricing"
	"github.com/hisab-app/backend-hisab/internal/rates"
)

const warnRateUnavailable = "vat rate unavailable, tax computed as zero"

// Handler prices line item collections over HTTP.
type Handler struct {
	Rates       rates.Provider
	RateTimeout time.Duration
	Logger      zerolog.Logger
}

type calculateRequest struct {
	Items []pricing.LineItem `json:"items"`
}

type calculateResponse struct {
	Items    map[string]pricing.ItemResult `json:"items"`
	Totals   *pricing.DocumentTotals       `json:"totals"`
	VATRate  *decimal.Decimal              `json:"vat_rate"`
	Warnings []string                      `json:"warnings,omitempty"`
}

// Calculate prices a submitted item collection in one shot. The item results
// are keyed by item id so the frontend can merge them back into its rows.
// A missing VAT rate degrades to zero tax with a warning, never an error.
func (h Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var payload calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		obs.CalcRequestsTotal.WithLabelValues("invalid").Inc()
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if len(payload.Items) == 0 {
		obs.CalcRequestsTotal.WithLabelValues("empty").Inc()
		common.JSONData(w, http.StatusOK, calculateResponse{})
		return
	}

	rate, warnings := h.currentRate(r.Context())
	results := pricing.CalculateItems(payload.Items, rate)
	totals := pricing.Aggregate(results)

	resp := calculateResponse{
		Items:    make(map[string]pricing.ItemResult, len(results)),
		Totals:   &totals,
		Warnings: warnings,
	}
	for _, res := range results {
		resp.Items[strconv.FormatInt(res.ItemID, 10)] = res
	}
	if len(warnings) == 0 {
		resp.VATRate = &rate
		obs.CalcRequestsTotal.WithLabelValues("ok").Inc()
	} else {
		obs.CalcRequestsTotal.WithLabelValues("degraded").Inc()
	}
	obs.CalcDurationMs.Observe(obs.DurationMillis(time.Since(start)))
	common.JSONData(w, http.StatusOK, resp)
}

// TaxRate returns the VAT rate currently in effect.
func (h Handler) TaxRate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.rateTimeout())
	defer cancel()

	if h.Rates == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "RATE_UNAVAILABLE", "vat rate provider not configured", nil)
		return
	}
	rate, err := h.Rates.CurrentRate(ctx)
	if err != nil {
		obs.RateLookupTotal.WithLabelValues("error").Inc()
		h.Logger.Warn().Err(err).Msg("vat rate lookup failed")
		common.JSONError(w, http.StatusServiceUnavailable, "RATE_UNAVAILABLE", "vat rate unavailable", nil)
		return
	}
	obs.RateLookupTotal.WithLabelValues("ok").Inc()
	common.JSONData(w, http.StatusOK, map[string]any{"rate": rate})
}

// currentRate resolves the VAT rate with a bounded lookup. On failure the
// calculation proceeds with zero tax and the reason is reported as a warning.
func (h Handler) currentRate(ctx context.Context) (decimal.Decimal, []string) {
	if h.Rates == nil {
		obs.RateLookupTotal.WithLabelValues("error").Inc()
		return decimal.Zero, []string{warnRateUnavailable}
	}
	ctx, cancel := context.WithTimeout(ctx, h.rateTimeout())
	defer cancel()

	rate, err := h.Rates.CurrentRate(ctx)
	if err != nil {
		obs.RateLookupTotal.WithLabelValues("error").Inc()
		h.Logger.Warn().Err(err).Msg("vat rate lookup failed, pricing without tax")
		return decimal.Zero, []string{warnRateUnavailable}
	}
	obs.RateLookupTotal.WithLabelValues("ok").Inc()
	return rate, nil
}

func (h Handler) rateTimeout() time.Duration {
	if h.RateTimeout <= 0 {
		return 3 * time.Second
	}
	return h.RateTimeout
}
