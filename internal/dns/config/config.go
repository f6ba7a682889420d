package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/miekg/dns"
)

// AppConfig holds the relay configuration. There is no config file; defaults
// come from DEFAULT_APP_CONFIG and are overridden by DNS_* environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log       LogConfig       `koanf:"log"`
	Relay     RelayConfig     `koanf:"relay"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Cache     CacheConfig     `koanf:"cache"`
	Blocklist BlocklistConfig `koanf:"blocklist"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type RelayConfig struct {
	Port int `koanf:"port" validate:"gte=1,lte=65535"`
	// Carriers are the domains whose queries carry tunnel requests.
	Carriers     []string `koanf:"carriers" validate:"required,min=1,dive,carrier"`
	MaxInFlight  int      `koanf:"max_inflight" validate:"gte=1"`
	PayloadLimit int      `koanf:"payload_limit" validate:"gte=1,lte=65000"`
}

type UpstreamConfig struct {
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	Insecure bool          `koanf:"insecure"`
	MaxBody  int64         `koanf:"max_body" validate:"gte=1"`
	// QPS of zero disables rate limiting.
	QPS   float64 `koanf:"qps" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=1"`
}

// CacheConfig controls the replay cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `koanf:"size" validate:"gte=0"`
	TTL  time.Duration `koanf:"ttl" validate:"gt=0"`
}

// BlocklistConfig controls egress filtering. An empty Directory disables it.
type BlocklistConfig struct {
	Directory string `koanf:"directory"`
	DB        string `koanf:"db" validate:"required_with=Directory"`
	CacheSize int    `koanf:"cache_size" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG defines the default relay configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Relay: RelayConfig{
		Port:         5353,
		Carriers:     []string{"amnupower.com", "amnupower.net"},
		MaxInFlight:  512,
		PayloadLimit: 400,
	},
	Upstream: UpstreamConfig{
		Timeout:  30 * time.Second,
		Insecure: true,
		MaxBody:  64 << 10,
		QPS:      0,
		Burst:    1,
	},
	Cache: CacheConfig{
		Size: 0,
		TTL:  30 * time.Second,
	},
	Blocklist: BlocklistConfig{
		DB:        "/var/lib/rr-dnstun/blocklist.db",
		CacheSize: 1000,
	},
}

// envKeys maps each supported environment variable to its config key.
// Variables not listed here are ignored.
var envKeys = map[string]string{
	"DNS_ENV":                  "env",
	"DNS_LOG_LEVEL":            "log.level",
	"DNS_RELAY_PORT":           "relay.port",
	"DNS_RELAY_CARRIERS":       "relay.carriers",
	"DNS_RELAY_MAX_INFLIGHT":   "relay.max_inflight",
	"DNS_RELAY_PAYLOAD_LIMIT":  "relay.payload_limit",
	"DNS_UPSTREAM_TIMEOUT":     "upstream.timeout",
	"DNS_UPSTREAM_INSECURE":    "upstream.insecure",
	"DNS_UPSTREAM_MAX_BODY":    "upstream.max_body",
	"DNS_UPSTREAM_QPS":         "upstream.qps",
	"DNS_UPSTREAM_BURST":       "upstream.burst",
	"DNS_CACHE_SIZE":           "cache.size",
	"DNS_CACHE_TTL":            "cache.ttl",
	"DNS_BLOCKLIST_DIR":        "blocklist.directory",
	"DNS_BLOCKLIST_DB":         "blocklist.db",
	"DNS_BLOCKLIST_CACHE_SIZE": "blocklist.cache_size",
	"DNS_METRICS_ADDR":         "metrics.addr",
}

// listKeys are split on commas and spaces.
var listKeys = map[string]bool{
	"relay.carriers": true,
}

// transformEnv maps an environment variable to its config key and value.
// An empty key tells the provider to skip the variable.
func transformEnv(key, value string) (string, any) {
	k, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	value = strings.TrimSpace(value)
	if listKeys[k] {
		return k, strings.FieldsFunc(value, func(r rune) bool {
			return r == ' ' || r == ','
		})
	}
	return k, value
}

// validCarrier accepts lower case domain names of at least two labels with
// no leading or trailing dot.
func validCarrier(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || name != strings.ToLower(name) {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return false
	}
	return dns.CountLabel(name) >= 2
}

// envLoader loads DNS_* environment variables through the key table.
// It can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        "DNS_",
		TransformFunc: transformEnv,
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the "carrier" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("carrier", validCarrier)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// ListenAddr returns the UDP listen address for the relay port.
func (c *AppConfig) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Relay.Port)
}
