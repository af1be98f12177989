package currency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quotefetch/internal/quote"
)

// stubSource counts fetches and serves rates from a fixed table.
type stubSource struct {
	rates map[string]float64
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (s *stubSource) Rate(ctx context.Context, from, to string) (float64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return 0, s.err
	}
	r, ok := s.rates[from+"/"+to]
	if !ok {
		return 0, ErrNoRate
	}
	return r, nil
}

func TestConverterRate_SameCurrencyNoFetch(t *testing.T) {
	src := &stubSource{}
	c := NewConverter(src)
	r, err := c.Rate(context.Background(), "USD", "usd")
	if err != nil || r != 1 {
		t.Fatalf("got (%v, %v), want (1, nil)", r, err)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("same-currency lookup must not hit the source, got %d calls", src.calls.Load())
	}
}

func TestConverterRate_CachesPerPair(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"USD/EUR": 0.9}}
	c := NewConverter(src)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		r, err := c.Rate(ctx, "USD", "EUR")
		if err != nil || r != 0.9 {
			t.Fatalf("call %d: got (%v, %v)", i, r, err)
		}
	}
	if src.calls.Load() != 1 {
		t.Fatalf("want exactly one remote fetch, got %d", src.calls.Load())
	}
}

func TestConverterRate_SingleflightCollapsesConcurrentFetches(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"USD/EUR": 0.9}, delay: 20 * time.Millisecond}
	c := NewConverter(src)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Rate(context.Background(), "USD", "EUR"); err != nil {
				t.Errorf("rate: %v", err)
			}
		}()
	}
	wg.Wait()
	if src.calls.Load() != 1 {
		t.Fatalf("concurrent lookups must share one fetch, got %d", src.calls.Load())
	}
}

func TestConverterRate_ErrorNotCached(t *testing.T) {
	src := &stubSource{err: errors.New("boom")}
	c := NewConverter(src)
	if _, err := c.Rate(context.Background(), "USD", "EUR"); err == nil {
		t.Fatal("want error")
	}
	src.err = nil
	src.rates = map[string]float64{"USD/EUR": 0.9}
	r, err := c.Rate(context.Background(), "USD", "EUR")
	if err != nil || r != 0.9 {
		t.Fatalf("retry after failure: got (%v, %v)", r, err)
	}
}

func TestConvert_RescalesFieldsAndRetags(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"USD/EUR": 2}}
	c := NewConverter(src)
	res := quote.Result{
		"IBM": quote.Record{
			"success":   "1",
			"currency":  "USD",
			"last":      "10.00",
			"day_range": "105.4 - 108.3",
			"volume":    "123456",
		},
	}
	c.Convert(context.Background(), res, []string{"IBM"}, []string{"last", "day_range"}, "EUR")

	rec := res["IBM"]
	if rec["last"] != "20" {
		t.Errorf("last = %q, want %q", rec["last"], "20")
	}
	if rec["day_range"] != "210.8 - 216.6" {
		t.Errorf("day_range = %q, want %q", rec["day_range"], "210.8 - 216.6")
	}
	if rec["volume"] != "123456" {
		t.Errorf("volume must not be rescaled, got %q", rec["volume"])
	}
	if rec["currency"] != "EUR" {
		t.Errorf("currency = %q, want EUR", rec["currency"])
	}
	if !rec.Success() {
		t.Error("record must stay successful")
	}
}

func TestConvert_NoRateMarksSymbolFailed(t *testing.T) {
	src := &stubSource{err: ErrNoRate}
	c := NewConverter(src)
	res := quote.Result{
		"IBM": quote.Record{"success": "1", "currency": "USD", "last": "10.00"},
	}
	c.Convert(context.Background(), res, []string{"IBM"}, []string{"last"}, "EUR")

	rec := res["IBM"]
	if rec.Success() {
		t.Fatal("symbol must be marked failed")
	}
	if rec["errormsg"] != "Currency conversion failed." {
		t.Fatalf("errormsg = %q", rec["errormsg"])
	}
	if rec["last"] != "10.00" {
		t.Fatalf("previously fetched fields must be kept, got %q", rec["last"])
	}
}

func TestConvert_SkipsSameOrMissingCurrency(t *testing.T) {
	src := &stubSource{}
	c := NewConverter(src)
	res := quote.Result{
		"A": quote.Record{"success": "1", "currency": "EUR", "last": "10"},
		"B": quote.Record{"success": "1", "last": "11"},
	}
	c.Convert(context.Background(), res, []string{"A", "B"}, []string{"last"}, "EUR")
	if src.calls.Load() != 0 {
		t.Fatalf("nothing to convert, but source was called %d times", src.calls.Load())
	}
	if res["A"]["last"] != "10" || res["B"]["last"] != "11" {
		t.Fatalf("fields changed: %v", res)
	}
}

func TestConvert_DuplicateSymbolsScaledOnce(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"USD/EUR": 2}}
	c := NewConverter(src)
	res := quote.Result{
		"IBM": quote.Record{"success": "1", "currency": "USD", "last": "10"},
	}
	c.Convert(context.Background(), res, []string{"IBM", "IBM"}, []string{"last"}, "EUR")
	if res["IBM"]["last"] != "20" {
		t.Fatalf("duplicate symbol double-scaled: last = %q", res["IBM"]["last"])
	}
}

func TestAmount(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"USD/EUR": 0.5}}
	c := NewConverter(src)
	ctx := context.Background()

	// Trivial case: no network, amount unchanged.
	v, err := c.Amount(ctx, "USD", "USD")
	if err != nil || v != 1 {
		t.Fatalf("USD->USD: got (%v, %v)", v, err)
	}
	if src.calls.Load() != 0 {
		t.Fatal("trivial conversion must not hit the source")
	}

	v, err = c.Amount(ctx, "15.95 USD", "EUR")
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	if v != 15.95*0.5 {
		t.Fatalf("got %v", v)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in     string
		amount float64
		code   string
		ok     bool
	}{
		{"15.95 USD", 15.95, "USD", true},
		{"USD", 1, "USD", true},
		{"usd", 1, "USD", true},
		{"  2 gbp ", 2, "GBP", true},
		{"1.5", 0, "", false},
		{"", 0, "", false},
		{"12 DOLLARS", 0, "", false},
	}
	for _, c := range cases {
		amount, code, err := ParseAmount(c.in)
		if c.ok && (err != nil || amount != c.amount || code != c.code) {
			t.Errorf("ParseAmount(%q) = (%v, %q, %v), want (%v, %q)", c.in, amount, code, err, c.amount, c.code)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseAmount(%q): want error", c.in)
		}
	}
}
