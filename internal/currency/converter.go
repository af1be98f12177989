// Package currency obtains exchange rates, caches them for the life of
// a session and rescales currency-denominated quote fields in place.
package currency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"quotefetch/internal/normalize"
	"quotefetch/internal/quote"
)

// ErrNoRate means no usable exchange rate could be obtained: missing
// API credential, remote failure, or malformed payload.
var ErrNoRate = errors.New("no exchange rate available")

// conversionFailedMsg is recorded on symbols whose fields could not be
// rescaled into the target currency.
const conversionFailedMsg = "Currency conversion failed."

// RateSource yields the multiplier converting one unit of from into to.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Converter caches rates per (from,to) pair for its whole lifetime.
// Rates are never refreshed within a session; a slightly stale rate is
// an accepted trade against hammering the remote API. Lookups for the
// same pair are collapsed through singleflight so a pair is fetched at
// most once even under concurrent use.
type Converter struct {
	src RateSource

	mu    sync.Mutex
	rates map[string]float64
	group singleflight.Group
}

func NewConverter(src RateSource) *Converter {
	return &Converter{src: src, rates: map[string]float64{}}
}

// Rate returns the cached rate for from->to, fetching and caching it on
// first use. Identical currencies short-circuit to 1 without touching
// the cache or the remote source.
func (c *Converter) Rate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, fmt.Errorf("%w: empty currency code", ErrNoRate)
	}
	if from == to {
		return 1, nil
	}

	key := from + "/" + to
	c.mu.Lock()
	r, ok := c.rates[key]
	c.mu.Unlock()
	if ok {
		return r, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		r, ok := c.rates[key]
		c.mu.Unlock()
		if ok {
			return r, nil
		}
		fetched, err := c.src.Rate(ctx, from, to)
		if err != nil {
			return 0.0, err
		}
		if fetched <= 0 {
			return 0.0, fmt.Errorf("%w: got %v for %s", ErrNoRate, fetched, key)
		}
		c.mu.Lock()
		c.rates[key] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Convert rescales the designated fields of each listed symbol into the
// target currency. A symbol without a currency label, or already quoted
// in target, is left alone. When no rate can be obtained the symbol is
// marked failed but keeps the fields it already has.
func (c *Converter) Convert(ctx context.Context, res quote.Result, symbols, fields []string, target string) {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return
	}
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		rec, ok := res[sym]
		if !ok {
			continue
		}
		cur := strings.ToUpper(strings.TrimSpace(rec[quote.LabelCurrency]))
		if cur == "" || cur == target {
			continue
		}
		rate, err := c.Rate(ctx, cur, target)
		if err != nil {
			rec.Fail(conversionFailedMsg)
			continue
		}
		for _, f := range fields {
			if v, ok := rec[f]; ok && v != "" {
				rec[f] = normalize.ScaleNumericSubstrings(v, rate)
			}
		}
		rec[quote.LabelCurrency] = target
	}
}

// Amount converts a spec like "15.95 USD" (amount optional, default 1)
// into the target currency. The trivial same-currency case never calls
// the rate source.
func (c *Converter) Amount(ctx context.Context, fromSpec, to string) (float64, error) {
	amount, code, err := ParseAmount(fromSpec)
	if err != nil {
		return 0, err
	}
	to = strings.ToUpper(strings.TrimSpace(to))
	if code == to {
		return amount, nil
	}
	rate, err := c.Rate(ctx, code, to)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}

var amountRe = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)?\s*([A-Za-z]{3})\s*$`)

// ParseAmount splits "15.95 USD" into (15.95, "USD"). A bare currency
// code means one unit of it.
func ParseAmount(spec string) (float64, string, error) {
	m := amountRe.FindStringSubmatch(spec)
	if m == nil {
		return 0, "", fmt.Errorf("%w: cannot parse %q", ErrNoRate, spec)
	}
	amount := 1.0
	if m[1] != "" {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", fmt.Errorf("%w: bad amount in %q", ErrNoRate, spec)
		}
		amount = v
	}
	return amount, strings.ToUpper(m[2]), nil
}
