// Package stooq is the built-in data-source module for stooq.com, a
// free end-of-day quote service covering US, European and Polish
// exchanges. It answers the "stooq", "usa", "europe" and "poland"
// methods from the service's delimited-text endpoint.
//
// Blank-import it to make the module available:
//
//	import _ "quotefetch/modules/stooq"
package stooq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotefetch/internal/httpx"
	"quotefetch/internal/normalize"
	"quotefetch/internal/quote"
	"quotefetch/internal/registry"
)

const (
	defaultURL     = "https://stooq.com/q/l/"
	defaultTimeout = 10 * time.Second

	// f=sd2t2ohlcvn: symbol, date, time, open, high, low, close, volume, name.
	fieldSpec = "sd2t2ohlcvn"
)

func init() {
	registry.Register("stooq", New)
}

// Module fetches delimited quote rows from stooq. Params: "url"
// (endpoint override), "currency" (force one currency for every
// symbol instead of deriving it from the exchange suffix).
type Module struct {
	url      string
	currency string
	client   *httpx.Client
}

// New builds the module from per-session params.
func New(params map[string]string) (registry.Module, error) {
	m := &Module{
		url:      defaultURL,
		currency: params["currency"],
		client:   httpx.New(defaultTimeout),
	}
	if v := params["url"]; v != "" {
		if _, err := url.Parse(v); err != nil {
			return nil, fmt.Errorf("stooq: bad url param: %w", err)
		}
		m.url = v
	}
	return m, nil
}

func (m *Module) Methods() map[string]registry.AdapterFunc {
	return map[string]registry.AdapterFunc{
		"stooq":  m.fetch,
		"usa":    m.fetch,
		"europe": m.fetch,
		"poland": m.fetch,
	}
}

func (m *Module) Labels() map[string][]string {
	labels := []string{
		"symbol", "name", "date", "isodate", "time",
		"open", "high", "low", "last", "close", "volume",
		"currency", "method", "source",
	}
	return map[string][]string{
		"stooq":  labels,
		"usa":    labels,
		"europe": labels,
		"poland": labels,
	}
}

// CurrencyFields returns nil: the default convertible set covers the
// price fields this module emits.
func (m *Module) CurrencyFields() []string { return nil }

func (m *Module) fetch(ctx context.Context, symbols []string) (quote.Result, error) {
	// stooq keys rows by lowercase symbol; remember the requested
	// spelling so records come back under it.
	bySent := make(map[string]string, len(symbols))
	uniq := make([]string, 0, len(symbols))
	for _, s := range symbols {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := bySent[key]; !ok {
			bySent[key] = s
			uniq = append(uniq, key)
		}
	}
	if len(uniq) == 0 {
		return nil, nil
	}

	u, err := url.Parse(m.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("s", strings.Join(uniq, "+"))
	q.Set("f", fieldSpec)
	q.Set("h", "")
	q.Set("e", "csv")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s -> %d", u.Host, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	res := quote.Result{}
	now := time.Now()
	for i, line := range strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header
		}
		fields := normalize.ParseDelimited(line, ',')
		if len(fields) < 8 {
			continue
		}
		sym, ok := bySent[strings.ToLower(fields[0])]
		if !ok {
			continue
		}
		rec := res.Get(sym)
		rec[quote.LabelSymbol] = fields[0]
		rec[quote.LabelMethod] = "stooq"
		rec[quote.LabelSource] = u.Host
		if len(fields) > 8 && fields[8] != "" {
			rec["name"] = fields[8]
		}

		// stooq reports "N/D" for symbols it knows but has no data
		// for.
		if fields[6] == "" || fields[6] == "N/D" {
			rec.Fail("no data returned for symbol")
			continue
		}
		rec["last"] = fields[6]
		rec["close"] = fields[6]
		setIfPresent(rec, "open", fields[3])
		setIfPresent(rec, "high", fields[4])
		setIfPresent(rec, "low", fields[5])
		setIfPresent(rec, "volume", fields[7])
		if fields[2] != "" && fields[2] != "N/D" {
			rec["time"] = fields[2]
		}
		if usDate, isoDate, err := normalize.UnifyDate(normalize.DateParts{ISODate: fields[1]}, now); err == nil {
			rec["date"] = usDate
			rec["isodate"] = isoDate
		}
		rec[quote.LabelCurrency] = m.currencyFor(fields[0])
		rec.SetSuccess(true)
	}
	return res, nil
}

func setIfPresent(rec quote.Record, label, val string) {
	if val != "" && val != "N/D" {
		rec[label] = val
	}
}

// suffix -> trading currency of the exchange. Unsuffixed symbols are
// Warsaw listings.
var suffixCurrency = map[string]string{
	"us": "USD",
	"uk": "GBP",
	"de": "EUR",
	"fr": "EUR",
	"nl": "EUR",
	"it": "EUR",
	"es": "EUR",
	"jp": "JPY",
	"hu": "HUF",
	"hk": "HKD",
}

func (m *Module) currencyFor(symbol string) string {
	if m.currency != "" {
		return m.currency
	}
	if i := strings.LastIndexByte(symbol, '.'); i >= 0 {
		if cur, ok := suffixCurrency[strings.ToLower(symbol[i+1:])]; ok {
			return cur
		}
	}
	return "PLN"
}
