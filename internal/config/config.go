package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	LogID  string
	LogKID string

	LogPrivateKeyBase64      string
	LogPrivateKeySeedHex     string
	ReceiptPrivateKeyBase64  string
	ReceiptPrivateKeySeedHex string
	LogPublicKeyBase64       string

	AnchorWitnessURL     string
	AnchorEnabled        bool
	AnchorTimeoutSeconds int
	SubmitTimeoutSeconds int
	PolicyBundlePath     string
	JurisdictionMap      string
	AuditIntervalSeconds int
	AuditSampleSize      int
	AuditLogBaseURL      string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		LogLevel:                 envDefault("LOG_LEVEL", "info"),
		LogID:                    envDefault("LOG_ID", "trustpack-consent-log-v1"),
		LogKID:                   envDefault("LOG_KID", "log-1"),
		LogPrivateKeyBase64:      os.Getenv("LOG_PRIVATE_KEY_BASE64"),
		LogPrivateKeySeedHex:     os.Getenv("LOG_PRIVATE_KEY_SEED_HEX"),
		ReceiptPrivateKeyBase64:  os.Getenv("RECEIPT_PRIVATE_KEY_BASE64"),
		ReceiptPrivateKeySeedHex: os.Getenv("RECEIPT_PRIVATE_KEY_SEED_HEX"),
		LogPublicKeyBase64:       os.Getenv("LOG_PUBLIC_KEY_BASE64"),
		AnchorWitnessURL:         os.Getenv("ANCHOR_WITNESS_URL"),
		AnchorEnabled:            envBoolDefault("ANCHOR_ENABLED", false),
		AnchorTimeoutSeconds:     envIntDefault("ANCHOR_TIMEOUT_SECONDS", 2),
		SubmitTimeoutSeconds:     envIntDefault("SUBMIT_TIMEOUT_SECONDS", 5),
		PolicyBundlePath:         os.Getenv("POLICY_BUNDLE_PATH"),
		JurisdictionMap:          os.Getenv("JURISDICTION_MAP"),
		AuditIntervalSeconds:     envIntDefault("AUDIT_INTERVAL_SECONDS", 300),
		AuditSampleSize:          envIntDefault("AUDIT_SAMPLE_SIZE", 5),
		AuditLogBaseURL:          os.Getenv("AUDIT_LOG_BASE_URL"),
		RateLimitRequests:        envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:   envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:      envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:         envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) AnchorTimeout() time.Duration {
	if c.AnchorTimeoutSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.AnchorTimeoutSeconds) * time.Second
}

func (c Config) SubmitTimeout() time.Duration {
	if c.SubmitTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.SubmitTimeoutSeconds) * time.Second
}

func (c Config) AuditInterval() time.Duration {
	if c.AuditIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.AuditIntervalSeconds) * time.Second
}

// Jurisdictions parses JURISDICTION_MAP, a comma-separated list of
// "suffix=code" pairs, e.g. "madrid.es=ES,gov.uk=UK".
func (c Config) Jurisdictions() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.JurisdictionMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		suffix, code, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		suffix = strings.TrimSpace(suffix)
		code = strings.TrimSpace(code)
		if suffix == "" || code == "" {
			continue
		}
		out[suffix] = code
	}
	return out
}
