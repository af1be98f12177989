// Package quotefetch aggregates financial quote data (stocks, funds,
// currencies) from independently-maintained data-source adapter modules
// behind one uniform lookup interface. A Session dispatches a fetch to
// the registered adapters for a named method, fails unresolved symbols
// over to alternate sources, and optionally rewrites currency-
// denominated fields into a configured target currency using cached
// exchange rates.
package quotefetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"quotefetch/internal/config"
	"quotefetch/internal/currency"
	"quotefetch/internal/fetcher"
	"quotefetch/internal/httpx"
	"quotefetch/internal/quote"
	"quotefetch/internal/ratelimit"
	"quotefetch/internal/registry"
)

// Aliases exported for callers and adapter authors; the implementations
// live in internal packages.
type (
	// Record maps labels to values for one symbol.
	Record = quote.Record
	// Result maps symbols to their records.
	Result = quote.Result
	// Module is one loadable data-source adapter.
	Module = registry.Module
	// AdapterFunc fetches quotes for symbols from one data source.
	AdapterFunc = registry.AdapterFunc
	// ModuleConstructor builds a Module from per-session parameters.
	ModuleConstructor = registry.Constructor
	// RateSource yields currency exchange rates.
	RateSource = currency.RateSource
	// CurrencyInfo is the ISO 4217 metadata of one currency.
	CurrencyInfo = currency.Info
	// Config is the on-disk configuration shape.
	Config = config.Config
)

// Sentinel errors callers are expected to test with errors.Is.
var (
	ErrUnknownMethod    = registry.ErrUnknownMethod
	ErrNoRate           = currency.ErrNoRate
	ErrInvalidParameter = currency.ErrInvalidParameter
)

// RegisterModule makes an adapter module constructor available under
// name, in the manner of database/sql drivers. Adapter packages call it
// from init.
func RegisterModule(name string, ctor ModuleConstructor) {
	registry.Register(name, ctor)
}

// RegisteredModules lists every module name known to the process.
func RegisteredModules() []string {
	return registry.Modules()
}

// LoadConfig reads the JSON config file at path (environment overrides
// applied); an empty path tries ./config.json and falls back to
// defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Session is the external-facing quoter. It owns one module registry
// and one exchange-rate cache; both live exactly as long as the
// session. Construct with New, then query with Fetch, Currency and
// CurrencyLookup.
type Session struct {
	modules        []string
	moduleParams   map[string]map[string]string
	timeout        time.Duration
	failover       bool
	requiredLabels []string
	currency       string
	cacheTTL       time.Duration

	client     *httpx.Client
	logger     *slog.Logger
	rateSource currency.RateSource

	reg        *registry.Registry
	conv       *currency.Converter
	dispatcher *fetcher.Dispatcher

	buildErr error
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithModules names the adapter modules to load, in order. Without this
// option the QUOTEFETCH_MODULES environment variable is used, and
// failing that every registered module.
func WithModules(names ...string) Option {
	return func(s *Session) { s.modules = append([]string(nil), names...) }
}

// WithModuleParams supplies a credential/config block to one module's
// constructor.
func WithModuleParams(module string, params map[string]string) Option {
	return func(s *Session) {
		if s.moduleParams == nil {
			s.moduleParams = map[string]map[string]string{}
		}
		s.moduleParams[module] = params
	}
}

// WithTimeout bounds each adapter or rate-source invocation (not a
// whole fetch). Zero means unbounded.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d < 0 {
			s.fail(fmt.Errorf("negative timeout %v", d))
			return
		}
		s.timeout = d
	}
}

// WithFailover toggles retrying unresolved symbols against later
// sources.
func WithFailover(on bool) Option {
	return func(s *Session) { s.failover = on }
}

// WithRequiredLabels restricts dispatch to sources declaring every
// listed label.
func WithRequiredLabels(labels ...string) Option {
	return func(s *Session) { s.requiredLabels = append([]string(nil), labels...) }
}

// WithCurrency sets the target currency convertible fields are rescaled
// into. Empty disables conversion.
func WithCurrency(code string) Option {
	return func(s *Session) { s.currency = code }
}

// WithQuoteCache keeps successful records in memory for ttl, serving
// repeat lookups without touching any source. Zero disables caching.
func WithQuoteCache(ttl time.Duration) Option {
	return func(s *Session) {
		if ttl < 0 {
			s.fail(fmt.Errorf("negative cache TTL %v", ttl))
			return
		}
		s.cacheTTL = ttl
	}
}

// WithRateSource replaces the default Alpha Vantage rate source.
func WithRateSource(src RateSource) Option {
	return func(s *Session) { s.rateSource = src }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// FromConfig applies a loaded config file to the session.
func FromConfig(cfg Config) Option {
	return func(s *Session) {
		if len(cfg.Fetch.Modules) > 0 {
			s.modules = cfg.Fetch.Modules
		}
		s.currency = cfg.Fetch.Currency
		s.failover = cfg.Fetch.Failover
		s.requiredLabels = cfg.Fetch.RequiredLabels
		if cfg.Fetch.TimeoutSec > 0 {
			s.timeout = time.Duration(cfg.Fetch.TimeoutSec) * time.Second
		}
		if cfg.Fetch.CacheTTLSec > 0 {
			s.cacheTTL = time.Duration(cfg.Fetch.CacheTTLSec) * time.Second
		}
		if len(cfg.Fetch.ModuleParams) > 0 {
			s.moduleParams = cfg.Fetch.ModuleParams
		}
		// An explicitly supplied rate source wins over the config
		// block. Zero-valued fields keep the client's own defaults: a
		// zero MaxRPM would otherwise build a bucket that never admits
		// a request.
		if s.rateSource == nil {
			var avOpts []currency.AlphaVantageOption
			if cfg.AlphaVantage.Endpoint != "" {
				avOpts = append(avOpts, currency.WithBaseURL(cfg.AlphaVantage.Endpoint))
			}
			if cfg.AlphaVantage.RetryDelaySec > 0 {
				avOpts = append(avOpts, currency.WithRetryDelay(time.Duration(cfg.AlphaVantage.RetryDelaySec)*time.Second))
			}
			if cfg.AlphaVantage.MaxRPM > 0 {
				avOpts = append(avOpts, currency.WithLimiter(ratelimit.PerMinute(cfg.AlphaVantage.MaxRPM)))
			}
			s.rateSource = currency.NewAlphaVantage(cfg.AlphaVantage.APIKey, avOpts...)
		}
	}
}

func (s *Session) fail(err error) {
	if s.buildErr == nil {
		s.buildErr = err
	}
}

// New constructs a Session and loads its adapter modules. Module names
// with no registered constructor are logged and skipped; a constructor
// that fails aborts construction.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		failover: true,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.client == nil {
		s.client = httpx.New(s.timeout)
	}
	if s.rateSource == nil {
		s.rateSource = currency.NewAlphaVantage("",
			currency.WithHTTPClient(s.client.HTTP),
			currency.WithLogger(s.logger),
		)
	}

	names := s.modules
	if len(names) == 0 {
		if v := os.Getenv("QUOTEFETCH_MODULES"); v != "" {
			names = splitList(v)
		} else {
			names = registry.Modules()
		}
	}

	s.reg = registry.New()
	for _, name := range names {
		if !registered(name) {
			s.logger.Warn("skipping unknown quote module", "module", name)
			continue
		}
		if err := s.reg.Load(name, s.moduleParams[name]); err != nil {
			return nil, err
		}
	}

	s.conv = currency.NewConverter(s.rateSource)
	s.dispatcher = &fetcher.Dispatcher{
		Registry:       s.reg,
		Converter:      s.conv,
		Failover:       s.failover,
		RequiredLabels: s.requiredLabels,
		Currency:       s.currency,
		Timeout:        s.timeout,
		Logger:         s.logger,
	}
	if s.cacheTTL > 0 {
		s.dispatcher.Cache = fetcher.NewCache(s.cacheTTL)
	}
	return s, nil
}

func registered(name string) bool {
	for _, n := range registry.Modules() {
		if n == name {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// Fetch looks up quotes for symbols via the named method. Per-symbol
// failures are reported in-band via the success and errormsg labels;
// the only error returned is an unknown method.
func (s *Session) Fetch(ctx context.Context, method string, symbols ...string) (Result, error) {
	return s.dispatcher.Fetch(ctx, method, symbols)
}

// Currency converts an amount spec like "15.95 USD" (amount optional,
// default 1) into the target currency, using the session rate cache.
// ErrNoRate is reported when no usable rate could be obtained.
func (s *Session) Currency(ctx context.Context, fromSpec, to string) (float64, error) {
	return s.conv.Amount(ctx, fromSpec, to)
}

// CurrencyLookup filters the built-in ISO 4217 table by attribute
// constraints ("code", "name", "country", "number"; values are plain
// substrings or *regexp.Regexp). Unknown attributes report
// ErrInvalidParameter.
func (s *Session) CurrencyLookup(constraints map[string]any) (map[string]CurrencyInfo, error) {
	return currency.Lookup(constraints)
}

// KnownCurrencies returns the built-in ISO 4217 table.
func (s *Session) KnownCurrencies() map[string]CurrencyInfo {
	return currency.Known()
}

// Methods lists every method the loaded modules implement.
func (s *Session) Methods() []string {
	return s.reg.MethodNames()
}

// SetCurrency changes the target currency for subsequent fetches.
func (s *Session) SetCurrency(code string) {
	s.currency = code
	s.dispatcher.Currency = code
}

// SetFailover toggles failover for subsequent fetches.
func (s *Session) SetFailover(on bool) {
	s.failover = on
	s.dispatcher.Failover = on
}

// SetRequiredLabels replaces the required-label filter.
func (s *Session) SetRequiredLabels(labels ...string) {
	s.requiredLabels = append([]string(nil), labels...)
	s.dispatcher.RequiredLabels = s.requiredLabels
}

// SetTimeout changes the per-invocation timeout.
func (s *Session) SetTimeout(d time.Duration) {
	s.timeout = d
	s.dispatcher.Timeout = d
}
