// Package fetcher runs one quote lookup across the bindings registered
// for a method, failing symbols over to later bindings until everything
// resolved or the bindings ran out.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"quotefetch/internal/currency"
	"quotefetch/internal/quote"
	"quotefetch/internal/registry"
)

// Dispatcher drives the failover loop for one session. All fields are
// set before first use and read-only afterwards.
type Dispatcher struct {
	Registry  *registry.Registry
	Converter *currency.Converter

	// Failover enables retrying unresolved symbols against later
	// bindings for the same method.
	Failover bool
	// RequiredLabels, when non-empty, restricts dispatch to bindings
	// declaring every listed label.
	RequiredLabels []string
	// Currency is the target currency for convertible fields; empty
	// disables conversion.
	Currency string
	// Timeout bounds each adapter invocation, not the whole fetch.
	Timeout time.Duration
	// Cache, when non-nil, serves repeat lookups from memory for its
	// TTL instead of re-dispatching.
	Cache  *Cache
	Logger *slog.Logger
}

// Fetch resolves method and walks its bindings in registration order.
// Adapter failures never escape: affected symbols come back with
// success=false and an errormsg. Symbols no binding could serve stay
// failed in the result; that is not an error of Fetch itself.
func (d *Dispatcher) Fetch(ctx context.Context, method string, symbols []string) (quote.Result, error) {
	bindings, err := d.Registry.Resolve(method)
	if err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	res := quote.Result{}
	for _, sym := range symbols {
		if _, ok := res[sym]; ok {
			continue
		}
		if rec, ok := d.Cache.get(method, sym, d.Currency, now); ok {
			res[sym] = rec
		}
	}

	pending := res.Pending(symbols)
	for _, b := range bindings {
		if len(pending) == 0 {
			break
		}
		if skip, missing := d.skipBinding(b); skip {
			logger.Debug("skipping binding without required label",
				"module", b.Module, "method", method, "label", missing)
			continue
		}

		out := d.invoke(ctx, b, pending)
		res.Merge(out)

		if d.Converter != nil && d.Currency != "" {
			d.Converter.Convert(ctx, res, touched(out), b.CurrencyFields, d.Currency)
		}

		// The failover set for the next binding: whatever part of the
		// original request still has no successful record.
		pending = res.Pending(symbols)
		if !d.Failover || len(pending) == 0 {
			break
		}
	}

	res.Ensure(symbols)
	d.Cache.put(method, d.Currency, res, now)
	return res, nil
}

// skipBinding reports whether b lacks one of the required labels, and
// which one.
func (d *Dispatcher) skipBinding(b registry.Binding) (bool, string) {
	for _, label := range d.RequiredLabels {
		if !b.HasLabel(label) {
			return true, label
		}
	}
	return false, ""
}

// invoke runs one adapter under the per-invocation timeout. Errors and
// panics are folded into per-symbol failure records.
func (d *Dispatcher) invoke(ctx context.Context, b registry.Binding, symbols []string) (out quote.Result) {
	cctx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out = failAll(symbols, fmt.Sprintf("adapter %s panicked: %v", b.Module, r))
		}
	}()

	res, err := b.Fn(cctx, symbols)
	if err != nil {
		return failAll(symbols, err.Error())
	}
	if res == nil {
		res = quote.Result{}
	}
	return res
}

func failAll(symbols []string, msg string) quote.Result {
	out := quote.Result{}
	for _, s := range symbols {
		out.Get(s).Fail(msg)
	}
	return out
}

// touched lists the symbols a binding actually returned data for, in
// stable order.
func touched(res quote.Result) []string {
	out := make([]string, 0, len(res))
	for sym := range res {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
