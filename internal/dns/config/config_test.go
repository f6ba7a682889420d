package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	// No env overrides
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected Log.Level=info, got %q", cfg.Log.Level)
	}

	// Relay defaults
	if cfg.Relay.Port != 5353 {
		t.Errorf("expected Relay.Port=5353, got %d", cfg.Relay.Port)
	}
	wantCarriers := []string{"amnupower.com", "amnupower.net"}
	if len(cfg.Relay.Carriers) != len(wantCarriers) {
		t.Errorf("expected Relay.Carriers length %d, got %d", len(wantCarriers), len(cfg.Relay.Carriers))
	} else {
		for i, v := range wantCarriers {
			if cfg.Relay.Carriers[i] != v {
				t.Errorf("expected Relay.Carriers[%d]=%q, got %q", i, v, cfg.Relay.Carriers[i])
			}
		}
	}
	if cfg.Relay.MaxInFlight != 512 {
		t.Errorf("expected Relay.MaxInFlight=512, got %d", cfg.Relay.MaxInFlight)
	}
	if cfg.Relay.PayloadLimit != 400 {
		t.Errorf("expected Relay.PayloadLimit=400, got %d", cfg.Relay.PayloadLimit)
	}

	// Upstream defaults
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("expected Upstream.Timeout=30s, got %v", cfg.Upstream.Timeout)
	}
	if !cfg.Upstream.Insecure {
		t.Error("expected Upstream.Insecure=true")
	}
	if cfg.Upstream.MaxBody != 65536 {
		t.Errorf("expected Upstream.MaxBody=65536, got %d", cfg.Upstream.MaxBody)
	}
	if cfg.Upstream.QPS != 0 {
		t.Errorf("expected Upstream.QPS=0, got %v", cfg.Upstream.QPS)
	}
	if cfg.Upstream.Burst != 1 {
		t.Errorf("expected Upstream.Burst=1, got %d", cfg.Upstream.Burst)
	}

	// Replay cache is off by default
	if cfg.Cache.Size != 0 {
		t.Errorf("expected Cache.Size=0, got %d", cfg.Cache.Size)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("expected Cache.TTL=30s, got %v", cfg.Cache.TTL)
	}

	// Blocklist defaults
	if cfg.Blocklist.Directory != "" {
		t.Errorf("expected Blocklist.Directory to be empty, got %q", cfg.Blocklist.Directory)
	}
	if cfg.Blocklist.DB != "/var/lib/rr-dnstun/blocklist.db" {
		t.Errorf("expected Blocklist.DB=/var/lib/rr-dnstun/blocklist.db, got %q", cfg.Blocklist.DB)
	}
	if cfg.Blocklist.CacheSize != 1000 {
		t.Errorf("expected Blocklist.CacheSize=1000, got %d", cfg.Blocklist.CacheSize)
	}

	if cfg.Metrics.Addr != "" {
		t.Errorf("expected Metrics.Addr to be empty, got %q", cfg.Metrics.Addr)
	}
	if cfg.ListenAddr() != "0.0.0.0:5353" {
		t.Errorf("expected ListenAddr=0.0.0.0:5353, got %q", cfg.ListenAddr())
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("DNS_ENV", "dev")
	t.Setenv("DNS_LOG_LEVEL", "debug")
	t.Setenv("DNS_RELAY_PORT", "9953")
	t.Setenv("DNS_RELAY_CARRIERS", "tunnel.example, relay.example.org")
	t.Setenv("DNS_RELAY_MAX_INFLIGHT", "64")
	t.Setenv("DNS_RELAY_PAYLOAD_LIMIT", "200")

	t.Setenv("DNS_UPSTREAM_TIMEOUT", "5s")
	t.Setenv("DNS_UPSTREAM_INSECURE", "false")
	t.Setenv("DNS_UPSTREAM_MAX_BODY", "1024")
	t.Setenv("DNS_UPSTREAM_QPS", "2.5")
	t.Setenv("DNS_UPSTREAM_BURST", "4")

	t.Setenv("DNS_CACHE_SIZE", "128")
	t.Setenv("DNS_CACHE_TTL", "1m")

	t.Setenv("DNS_BLOCKLIST_DIR", "/tmp/blocklist.d/")
	t.Setenv("DNS_BLOCKLIST_DB", "/tmp/blk.db")
	t.Setenv("DNS_BLOCKLIST_CACHE_SIZE", "5000")

	t.Setenv("DNS_METRICS_ADDR", ":9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected Log.Level=debug, got %q", cfg.Log.Level)
	}
	if cfg.Relay.Port != 9953 {
		t.Errorf("expected Relay.Port=9953, got %d", cfg.Relay.Port)
	}
	wantCarriers := []string{"tunnel.example", "relay.example.org"}
	if len(cfg.Relay.Carriers) != len(wantCarriers) {
		t.Errorf("expected Relay.Carriers length %d, got %d", len(wantCarriers), len(cfg.Relay.Carriers))
	} else {
		for i, v := range wantCarriers {
			if cfg.Relay.Carriers[i] != v {
				t.Errorf("expected Relay.Carriers[%d]=%q, got %q", i, v, cfg.Relay.Carriers[i])
			}
		}
	}
	if cfg.Relay.MaxInFlight != 64 {
		t.Errorf("expected Relay.MaxInFlight=64, got %d", cfg.Relay.MaxInFlight)
	}
	if cfg.Relay.PayloadLimit != 200 {
		t.Errorf("expected Relay.PayloadLimit=200, got %d", cfg.Relay.PayloadLimit)
	}

	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("expected Upstream.Timeout=5s, got %v", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.Insecure {
		t.Error("expected Upstream.Insecure=false")
	}
	if cfg.Upstream.MaxBody != 1024 {
		t.Errorf("expected Upstream.MaxBody=1024, got %d", cfg.Upstream.MaxBody)
	}
	if cfg.Upstream.QPS != 2.5 {
		t.Errorf("expected Upstream.QPS=2.5, got %v", cfg.Upstream.QPS)
	}
	if cfg.Upstream.Burst != 4 {
		t.Errorf("expected Upstream.Burst=4, got %d", cfg.Upstream.Burst)
	}

	if cfg.Cache.Size != 128 {
		t.Errorf("expected Cache.Size=128, got %d", cfg.Cache.Size)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("expected Cache.TTL=1m, got %v", cfg.Cache.TTL)
	}

	if cfg.Blocklist.Directory != "/tmp/blocklist.d/" {
		t.Errorf("expected Blocklist.Directory=/tmp/blocklist.d/, got %q", cfg.Blocklist.Directory)
	}
	if cfg.Blocklist.DB != "/tmp/blk.db" {
		t.Errorf("expected Blocklist.DB=/tmp/blk.db, got %q", cfg.Blocklist.DB)
	}
	if cfg.Blocklist.CacheSize != 5000 {
		t.Errorf("expected Blocklist.CacheSize=5000, got %d", cfg.Blocklist.CacheSize)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("expected Metrics.Addr=:9100, got %q", cfg.Metrics.Addr)
	}
}

func TestLoad_IgnoresUnknownVariables(t *testing.T) {
	t.Setenv("DNS_NOT_A_SETTING", "whatever")
	t.Setenv("DNS_RESOLVER_PORT", "53")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Relay.Port != 5353 {
		t.Errorf("expected Relay.Port=5353, got %d", cfg.Relay.Port)
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading defaults, got nil")
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading env, got nil")
	}
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("mocked validation error") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked validation error") {
		t.Fatal("expected error when registering validation, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"env", "DNS_ENV", "staging"},
		{"log level", "DNS_LOG_LEVEL", "trace"},
		{"port out of range", "DNS_RELAY_PORT", "99999"},
		{"port zero", "DNS_RELAY_PORT", "0"},
		{"port not a number", "DNS_RELAY_PORT", "not_a_number"},
		{"empty carriers", "DNS_RELAY_CARRIERS", " , "},
		{"upper case carrier", "DNS_RELAY_CARRIERS", "Tunnel.Example"},
		{"single label carrier", "DNS_RELAY_CARRIERS", "localhost"},
		{"max inflight zero", "DNS_RELAY_MAX_INFLIGHT", "0"},
		{"payload limit zero", "DNS_RELAY_PAYLOAD_LIMIT", "0"},
		{"timeout zero", "DNS_UPSTREAM_TIMEOUT", "0s"},
		{"timeout garbage", "DNS_UPSTREAM_TIMEOUT", "soon"},
		{"max body zero", "DNS_UPSTREAM_MAX_BODY", "0"},
		{"negative qps", "DNS_UPSTREAM_QPS", "-1"},
		{"burst zero", "DNS_UPSTREAM_BURST", "0"},
		{"negative cache size", "DNS_CACHE_SIZE", "-1"},
		{"cache ttl zero", "DNS_CACHE_TTL", "0s"},
		{"negative blocklist cache", "DNS_BLOCKLIST_CACHE_SIZE", "-5"},
		{"metrics addr", "DNS_METRICS_ADDR", "not an address"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_BlocklistDirRequiresDB(t *testing.T) {
	t.Setenv("DNS_BLOCKLIST_DIR", "/tmp/blocklist.d/")
	t.Setenv("DNS_BLOCKLIST_DB", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when blocklist dir is set without a database path")
	}
}

func TestValidCarrier(t *testing.T) {
	type testCase struct {
		input    string
		expected bool
	}

	cases := []testCase{
		{"amnupower.com", true},
		{"a.b.example.net", true},
		{"tunnel-1.example", true},
		{"Amnupower.com", false},
		{".amnupower.com", false},
		{"amnupower.com.", false},
		{"localhost", false},
		{"", false},
		{"bad..name", false},
	}

	validate := validator.New()
	_ = validate.RegisterValidation("carrier", validCarrier)

	for _, tc := range cases {
		type S struct {
			Name string `validate:"carrier"`
		}
		err := validate.Struct(S{Name: tc.input})
		if tc.expected && err != nil {
			t.Errorf("validCarrier(%q) = false, want true", tc.input)
		}
		if !tc.expected && err == nil {
			t.Errorf("validCarrier(%q) = true, want false", tc.input)
		}
	}
}

func TestTransformEnv(t *testing.T) {
	k, v := transformEnv("DNS_RELAY_CARRIERS", "a.example,b.example c.example")
	if k != "relay.carriers" {
		t.Fatalf("expected key relay.carriers, got %q", k)
	}
	list, ok := v.([]string)
	if !ok || len(list) != 3 {
		t.Fatalf("expected three carriers, got %#v", v)
	}

	k, v = transformEnv("DNS_UPSTREAM_TIMEOUT", " 10s ")
	if k != "upstream.timeout" || v != "10s" {
		t.Errorf("unexpected transform result %q=%v", k, v)
	}

	if k, _ := transformEnv("DNS_UNKNOWN", "x"); k != "" {
		t.Errorf("expected unknown variable to be skipped, got key %q", k)
	}
}

func TestDefaultLoader_LoadsDefaults(t *testing.T) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		t.Fatalf("defaultLoader returned error: %v", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.Env != DEFAULT_APP_CONFIG.Env {
		t.Errorf("expected Env=%q, got %q", DEFAULT_APP_CONFIG.Env, cfg.Env)
	}
	if cfg.Relay.Port != DEFAULT_APP_CONFIG.Relay.Port {
		t.Errorf("expected Relay.Port=%d, got %d", DEFAULT_APP_CONFIG.Relay.Port, cfg.Relay.Port)
	}
	if cfg.Upstream.Timeout != DEFAULT_APP_CONFIG.Upstream.Timeout {
		t.Errorf("expected Upstream.Timeout=%v, got %v", DEFAULT_APP_CONFIG.Upstream.Timeout, cfg.Upstream.Timeout)
	}
	if len(cfg.Relay.Carriers) != len(DEFAULT_APP_CONFIG.Relay.Carriers) {
		t.Fatalf("expected Relay.Carriers length %d, got %d", len(DEFAULT_APP_CONFIG.Relay.Carriers), len(cfg.Relay.Carriers))
	}
}

func TestDefaultLoader_InvalidDefault_ValidationFails(t *testing.T) {
	orig := DEFAULT_APP_CONFIG
	defer func() { DEFAULT_APP_CONFIG = orig }()

	broken := orig
	broken.Relay.Carriers = []string{"NOT_A_DOMAIN"}
	DEFAULT_APP_CONFIG = broken

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error for invalid default carrier")
	}
}
