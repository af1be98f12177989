package fetcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"quotefetch/internal/currency"
	"quotefetch/internal/quote"
	"quotefetch/internal/registry"
)

// fixtureModule implements registry.Module around test closures.
type fixtureModule struct {
	methods map[string]registry.AdapterFunc
	labels  map[string][]string
	fields  []string
}

func (m *fixtureModule) Methods() map[string]registry.AdapterFunc { return m.methods }
func (m *fixtureModule) Labels() map[string][]string              { return m.labels }
func (m *fixtureModule) CurrencyFields() []string                 { return m.fields }

// loadModules registers one fixture per binding under unique names and
// loads them in order into a fresh registry.
func loadModules(t *testing.T, mods ...*fixtureModule) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for i, m := range mods {
		name := fmt.Sprintf("%s-mod%d", t.Name(), i)
		registry.Register(name, func(params map[string]string) (registry.Module, error) {
			return m, nil
		})
		if err := reg.Load(name, nil); err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
	}
	return reg
}

func succeedAll(label, value string, calls *[][]string) registry.AdapterFunc {
	return func(ctx context.Context, symbols []string) (quote.Result, error) {
		if calls != nil {
			cp := append([]string(nil), symbols...)
			*calls = append(*calls, cp)
		}
		res := quote.Result{}
		for _, s := range symbols {
			rec := res.Get(s)
			rec.SetSuccess(true)
			rec[label] = value
		}
		return res, nil
	}
}

func failSymbols(bad map[string]bool, label, value string, calls *[][]string) registry.AdapterFunc {
	return func(ctx context.Context, symbols []string) (quote.Result, error) {
		if calls != nil {
			cp := append([]string(nil), symbols...)
			*calls = append(*calls, cp)
		}
		res := quote.Result{}
		for _, s := range symbols {
			rec := res.Get(s)
			if bad[s] {
				rec.Fail("not found")
				continue
			}
			rec.SetSuccess(true)
			rec[label] = value
		}
		return res, nil
	}
}

func TestFetch_FailoverOrdering(t *testing.T) {
	var b1Calls, b2Calls [][]string
	reg := loadModules(t,
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": failSymbols(map[string]bool{"X": true}, "last", "from-b1", &b1Calls)},
			labels:  map[string][]string{"usa": {"last"}},
		},
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": succeedAll("last", "from-b2", &b2Calls)},
			labels:  map[string][]string{"usa": {"last"}},
		},
	)
	d := &Dispatcher{Registry: reg, Failover: true}
	res, err := d.Fetch(context.Background(), "usa", []string{"X", "Y"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if !reflect.DeepEqual(b1Calls, [][]string{{"X", "Y"}}) {
		t.Fatalf("b1 calls = %v", b1Calls)
	}
	// B2 must have been invoked with exactly the still-failing symbol.
	if !reflect.DeepEqual(b2Calls, [][]string{{"X"}}) {
		t.Fatalf("b2 calls = %v", b2Calls)
	}
	if res["X"]["last"] != "from-b2" || !res["X"].Success() {
		t.Fatalf("X must come from B2: %v", res["X"])
	}
	// Y succeeded on B1 and must not be overwritten.
	if res["Y"]["last"] != "from-b1" {
		t.Fatalf("Y was overwritten: %v", res["Y"])
	}
}

func TestFetch_RequiredLabelsGateBindings(t *testing.T) {
	var noEpsCalls, epsCalls [][]string
	reg := loadModules(t,
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": succeedAll("last", "no-eps", &noEpsCalls)},
			labels:  map[string][]string{"usa": {"last"}},
		},
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": succeedAll("eps", "1.23", &epsCalls)},
			labels:  map[string][]string{"usa": {"last", "eps"}},
		},
	)
	d := &Dispatcher{Registry: reg, Failover: true, RequiredLabels: []string{"eps"}}
	res, err := d.Fetch(context.Background(), "usa", []string{"IBM"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(noEpsCalls) != 0 {
		t.Fatalf("binding without eps must never be invoked, got %v", noEpsCalls)
	}
	if len(epsCalls) != 1 {
		t.Fatalf("eps-capable binding not invoked: %v", epsCalls)
	}
	if !res["IBM"].Success() {
		t.Fatalf("IBM: %v", res["IBM"])
	}
}

func TestFetch_FailoverDisabledStopsAfterFirstBinding(t *testing.T) {
	var b2Calls [][]string
	reg := loadModules(t,
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": failSymbols(map[string]bool{"X": true}, "last", "b1", nil)},
			labels:  map[string][]string{"usa": {"last"}},
		},
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": succeedAll("last", "b2", &b2Calls)},
			labels:  map[string][]string{"usa": {"last"}},
		},
	)
	d := &Dispatcher{Registry: reg, Failover: false}
	res, err := d.Fetch(context.Background(), "usa", []string{"X"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(b2Calls) != 0 {
		t.Fatalf("failover disabled but second binding invoked: %v", b2Calls)
	}
	if res["X"].Success() {
		t.Fatalf("X should remain failed: %v", res["X"])
	}
	if res["X"]["errormsg"] == "" {
		t.Fatal("failed symbol needs an errormsg")
	}
}

func TestFetch_UnknownMethod(t *testing.T) {
	reg := loadModules(t)
	d := &Dispatcher{Registry: reg}
	_, err := d.Fetch(context.Background(), "nowhere", []string{"X"})
	if !errors.Is(err, registry.ErrUnknownMethod) {
		t.Fatalf("want ErrUnknownMethod, got %v", err)
	}
}

func TestFetch_AdapterErrorStaysInBand(t *testing.T) {
	reg := loadModules(t,
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": func(ctx context.Context, symbols []string) (quote.Result, error) {
				return nil, errors.New("connection reset")
			}},
			labels: map[string][]string{"usa": {"last"}},
		},
	)
	d := &Dispatcher{Registry: reg}
	res, err := d.Fetch(context.Background(), "usa", []string{"A", "B"})
	if err != nil {
		t.Fatalf("adapter errors must not propagate, got %v", err)
	}
	for _, s := range []string{"A", "B"} {
		if res[s].Success() || res[s]["errormsg"] != "connection reset" {
			t.Fatalf("%s: %v", s, res[s])
		}
	}
}

func TestFetch_AdapterPanicStaysInBand(t *testing.T) {
	reg := loadModules(t,
		&fixtureModule{
			methods: map[string]registry.AdapterFunc{"usa": func(ctx context.Context, symbols []string) (quote.Result, error) {
				panic("index out of range")
			}},
			labels: map[string][]string{"usa": {"last"}},
		},
	)
	d := &Dispatcher{Registry: reg}
	res, err := d.Fetch(context.Background(), "usa", []string{"A"})
	if err != nil {
		t.Fatalf("panic must not propagate, got %v", err)
	}
	if res["A"].Success() {
		t.Fatalf("A: %v", res["A"])
	}
}

// stubRates serves fixed conversion rates without a network.
type stubRates map[string]float64

func (s stubRates) Rate(ctx context.Context, from, to string) (float64, error) {
	if r, ok := s[from+"/"+to]; ok {
		return r, nil
	}
	return 0, currency.ErrNoRate
}

func TestFetch_ConvertsIntoTargetCurrency(t *testing.T) {
	adapter := func(ctx context.Context, symbols []string) (quote.Result, error) {
		res := quote.Result{}
		for _, s := range symbols {
			rec := res.Get(s)
			rec.SetSuccess(true)
			rec["currency"] = "USD"
			rec["last"] = "10.00"
			rec["volume"] = "500"
		}
		return res, nil
	}
	reg := loadModules(t, &fixtureModule{
		methods: map[string]registry.AdapterFunc{"usa": adapter},
		labels:  map[string][]string{"usa": {"last", "currency"}},
		fields:  []string{"last"},
	})
	d := &Dispatcher{
		Registry:  reg,
		Converter: currency.NewConverter(stubRates{"USD/EUR": 2}),
		Currency:  "EUR",
	}
	res, err := d.Fetch(context.Background(), "usa", []string{"IBM"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	rec := res["IBM"]
	if rec["last"] != "20" {
		t.Errorf("last = %q, want 20", rec["last"])
	}
	if rec["volume"] != "500" {
		t.Errorf("volume must stay unscaled, got %q", rec["volume"])
	}
	if rec["currency"] != "EUR" {
		t.Errorf("currency = %q, want EUR", rec["currency"])
	}
	if !rec.Success() {
		t.Error("record must stay successful")
	}
}

func TestFetch_ConversionFailureMarksSymbol(t *testing.T) {
	adapter := func(ctx context.Context, symbols []string) (quote.Result, error) {
		res := quote.Result{}
		for _, s := range symbols {
			rec := res.Get(s)
			rec.SetSuccess(true)
			rec["currency"] = "GBP"
			rec["last"] = "7.50"
		}
		return res, nil
	}
	reg := loadModules(t, &fixtureModule{
		methods: map[string]registry.AdapterFunc{"usa": adapter},
		labels:  map[string][]string{"usa": {"last", "currency"}},
	})
	d := &Dispatcher{
		Registry:  reg,
		Converter: currency.NewConverter(stubRates{}),
		Currency:  "EUR",
	}
	res, err := d.Fetch(context.Background(), "usa", []string{"BP"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	rec := res["BP"]
	if rec.Success() {
		t.Fatalf("conversion failed, symbol must be failed: %v", rec)
	}
	if rec["errormsg"] != "Currency conversion failed." {
		t.Fatalf("errormsg = %q", rec["errormsg"])
	}
	if rec["last"] != "7.50" {
		t.Fatalf("fetched fields must be kept, got %q", rec["last"])
	}
}

func TestFetch_EnsuresLabelsForUntouchedSymbols(t *testing.T) {
	adapter := func(ctx context.Context, symbols []string) (quote.Result, error) {
		// Returns nothing at all.
		return quote.Result{}, nil
	}
	reg := loadModules(t, &fixtureModule{
		methods: map[string]registry.AdapterFunc{"usa": adapter},
		labels:  map[string][]string{"usa": {"last"}},
	})
	d := &Dispatcher{Registry: reg, Failover: true}
	res, err := d.Fetch(context.Background(), "usa", []string{"GHOST"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	rec := res["GHOST"]
	if rec.Success() {
		t.Fatalf("GHOST: %v", rec)
	}
	if !rec.Has("errormsg") {
		t.Fatal("failed symbol needs an errormsg")
	}
}

func TestFetch_TimeoutBoundsSingleInvocation(t *testing.T) {
	adapter := func(ctx context.Context, symbols []string) (quote.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return quote.Result{}, nil
		}
	}
	reg := loadModules(t, &fixtureModule{
		methods: map[string]registry.AdapterFunc{"usa": adapter},
		labels:  map[string][]string{"usa": {"last"}},
	})
	d := &Dispatcher{Registry: reg, Timeout: 20 * time.Millisecond}

	start := time.Now()
	res, err := d.Fetch(context.Background(), "usa", []string{"SLOW"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout did not bound the invocation")
	}
	if res["SLOW"].Success() {
		t.Fatalf("SLOW: %v", res["SLOW"])
	}
}

func TestFetch_DuplicateSymbolsHandledIndependently(t *testing.T) {
	var calls [][]string
	reg := loadModules(t, &fixtureModule{
		methods: map[string]registry.AdapterFunc{"usa": succeedAll("last", "1", &calls)},
		labels:  map[string][]string{"usa": {"last"}},
	})
	d := &Dispatcher{Registry: reg}
	res, err := d.Fetch(context.Background(), "usa", []string{"A", "A"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !reflect.DeepEqual(calls, [][]string{{"A", "A"}}) {
		t.Fatalf("duplicates must be passed through: %v", calls)
	}
	if !res["A"].Success() {
		t.Fatalf("A: %v", res["A"])
	}
}
