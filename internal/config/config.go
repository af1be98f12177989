package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Fetch struct {
	// Modules lists the adapter modules to load; empty means every
	// registered module.
	Modules []string `json:"modules"`
	// Currency is the target currency for convertible fields; empty
	// disables conversion.
	Currency string `json:"currency"`
	// Failover retries unresolved symbols against later sources.
	Failover bool `json:"failover"`
	// RequiredLabels restricts dispatch to sources that can produce
	// every listed label.
	RequiredLabels []string `json:"required_labels"`
	// TimeoutSec bounds each adapter or rate-source call.
	TimeoutSec int `json:"timeout_sec"`
	// CacheTTLSec keeps successful records in memory this long; zero
	// disables the quote cache.
	CacheTTLSec int `json:"cache_ttl_sec"`
	// ModuleParams carries per-module credential/config blocks.
	ModuleParams map[string]map[string]string `json:"module_params"`
}

type AlphaVantage struct {
	APIKey        string `json:"api_key"`
	Endpoint      string `json:"endpoint"`
	RetryDelaySec int    `json:"retry_delay_sec"`
	MaxRPM        int    `json:"max_rpm"`
}

type Config struct {
	Server       Server       `json:"server"`
	Fetch        Fetch        `json:"fetch"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 30},
		Fetch: Fetch{
			Failover:   true,
			TimeoutSec: 30,
		},
		AlphaVantage: AlphaVantage{
			Endpoint:      "https://www.alphavantage.co/query",
			RetryDelaySec: 20,
			MaxRPM:        5,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does
// not exist, it returns defaults. Environment variables override select
// fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("QUOTEFETCH_MODULES"); v != "" {
		cfg.Fetch.Modules = splitCSV(v)
	}
	if v := os.Getenv("QUOTEFETCH_CURRENCY"); v != "" {
		cfg.Fetch.Currency = v
	}
	if v := os.Getenv("QUOTEFETCH_FAILOVER"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			cfg.Fetch.Failover = true
		case "0", "false", "no", "n":
			cfg.Fetch.Failover = false
		}
	}
	if v := os.Getenv("QUOTEFETCH_REQUIRED_LABELS"); v != "" {
		cfg.Fetch.RequiredLabels = splitCSV(v)
	}
	if v := os.Getenv("QUOTEFETCH_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Fetch.TimeoutSec = x
		}
	}
	if v := os.Getenv("QUOTEFETCH_CACHE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Fetch.CacheTTLSec = x
		}
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_ENDPOINT"); v != "" {
		cfg.AlphaVantage.Endpoint = v
	}
	if v := os.Getenv("ALPHAVANTAGE_RETRY_DELAY_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.AlphaVantage.RetryDelaySec = x
		}
	}
	if v := os.Getenv("ALPHAVANTAGE_MAX_RPM"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.AlphaVantage.MaxRPM = x
		}
	}
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
