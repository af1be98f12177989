package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"quotefetch"

	_ "quotefetch/modules/stooq"
)

type quotesResponse struct {
	Method string            `json:"method"`
	Quotes quotefetch.Result `json:"quotes"`
}

type currencyResponse struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := quotefetch.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}
	if cfg.AlphaVantage.APIKey == "" {
		logger.Warn("ALPHAVANTAGE_API_KEY not set; currency conversion disabled")
	}

	session, err := quotefetch.New(
		quotefetch.FromConfig(cfg),
		quotefetch.WithLogger(logger),
	)
	if err != nil {
		logger.Error("session", "err", err)
		os.Exit(1)
	}
	logger.Info("loaded quote methods", "methods", session.Methods())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/methods", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string][]string{"methods": session.Methods()})
	})
	mux.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleGetQuotes(w, r, session)
		case http.MethodPost:
			handlePostQuotes(w, r, session)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/currency", func(w http.ResponseWriter, r *http.Request) {
		handleCurrency(w, r, session)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func handleGetQuotes(w http.ResponseWriter, r *http.Request, session *quotefetch.Session) {
	method := strings.TrimSpace(r.URL.Query().Get("method"))
	if method == "" {
		http.Error(w, "missing method query param", http.StatusBadRequest)
		return
	}
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		http.Error(w, "missing symbols query param", http.StatusBadRequest)
		return
	}
	if len(symbols) > 1000 {
		http.Error(w, "too many symbols (max 1000)", http.StatusBadRequest)
		return
	}
	writeQuotes(w, r.Context(), session, method, symbols)
}

type postBody struct {
	Method  string   `json:"method"`
	Symbols []string `json:"symbols"`
}

func handlePostQuotes(w http.ResponseWriter, r *http.Request, session *quotefetch.Session) {
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if b.Method == "" {
		http.Error(w, "method cannot be empty", http.StatusBadRequest)
		return
	}
	if len(b.Symbols) == 0 || len(b.Symbols) > 1000 {
		http.Error(w, "symbols must contain between 1 and 1000 entries", http.StatusBadRequest)
		return
	}
	writeQuotes(w, r.Context(), session, b.Method, b.Symbols)
}

func writeQuotes(w http.ResponseWriter, ctx context.Context, session *quotefetch.Session, method string, symbols []string) {
	res, err := session.Fetch(ctx, method, symbols...)
	if err != nil {
		if errors.Is(err, quotefetch.ErrUnknownMethod) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, quotesResponse{Method: method, Quotes: res})
}

func handleCurrency(w http.ResponseWriter, r *http.Request, session *quotefetch.Session) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		http.Error(w, "missing from/to query params", http.StatusBadRequest)
		return
	}
	amount, err := session.Currency(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, quotefetch.ErrNoRate) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, currencyResponse{From: from, To: to, Amount: amount})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// Prefer best speed to reduce CPU usage since payloads are JSON
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
