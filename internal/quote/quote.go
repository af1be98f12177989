package quote

// Well-known labels shared by all data sources.
const (
	LabelSuccess  = "success"
	LabelErrorMsg = "errormsg"
	LabelCurrency = "currency"
	LabelSymbol   = "symbol"
	LabelMethod   = "method"
	LabelSource   = "source"
)

// DefaultCurrencyFields is the standard set of labels whose values are
// denominated in the quote's currency. Modules that do not declare their
// own convertible fields get this list.
var DefaultCurrencyFields = []string{
	"last", "high", "low", "net", "bid", "ask", "close", "open",
	"day_range", "year_range", "eps", "div", "cap", "nav", "price",
}

// Record holds one symbol's labels. Values stay strings to avoid float
// rounding in display fields; conversion rescales them in place.
type Record map[string]string

// Success reports whether the record is marked successful.
func (r Record) Success() bool { return r[LabelSuccess] == "1" }

// SetSuccess sets the success flag.
func (r Record) SetSuccess(ok bool) {
	if ok {
		r[LabelSuccess] = "1"
	} else {
		r[LabelSuccess] = "0"
	}
}

// Fail marks the record failed with the given message.
func (r Record) Fail(msg string) {
	r[LabelSuccess] = "0"
	r[LabelErrorMsg] = msg
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for label, v := range r {
		out[label] = v
	}
	return out
}

// Has reports whether the label is present, even if empty.
func (r Record) Has(label string) bool {
	_, ok := r[label]
	return ok
}

// Result maps symbol -> Record for one fetch call.
type Result map[string]Record

// Get returns the record for sym, allocating it on first use.
func (res Result) Get(sym string) Record {
	r, ok := res[sym]
	if !ok {
		r = Record{}
		res[sym] = r
	}
	return r
}

// Merge folds src into res. A symbol that already succeeded in res is
// left untouched: later failover passes must not downgrade or overwrite
// data from an earlier, successful source.
func (res Result) Merge(src Result) {
	for sym, in := range src {
		cur, ok := res[sym]
		if ok && cur.Success() {
			continue
		}
		if !ok {
			cur = Record{}
			res[sym] = cur
		}
		for label, v := range in {
			cur[label] = v
		}
	}
}

// Pending returns the subset of symbols whose success flag is still
// false in res. Order and duplicates of the input are preserved so that
// failover passes see exactly what the caller asked for.
func (res Result) Pending(symbols []string) []string {
	var out []string
	for _, s := range symbols {
		if r, ok := res[s]; ok && r.Success() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Ensure guarantees that every requested symbol carries a success flag,
// and an errormsg when it failed.
func (res Result) Ensure(symbols []string) {
	for _, s := range symbols {
		r := res.Get(s)
		if !r.Has(LabelSuccess) {
			r.SetSuccess(false)
		}
		if !r.Success() && !r.Has(LabelErrorMsg) {
			r[LabelErrorMsg] = "no data returned for symbol"
		}
	}
}
