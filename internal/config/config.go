// Package config loads runtime configuration from environment variables,
// following spec.md §6. The required variables all come from the original
// service's config.rs; everything else is a tunable constant with a
// production-sane default that tests may override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// NotifierUsername is the fixed AUTH PLAIN / HTTP Basic username used by
// the mail client and the account cleaner. Only the secret is configurable
// (via NOTIFIER_SECRET_PATH); the original service hard-codes the same
// convention (a single "notifier" service account).
const NotifierUsername = "notifier"

// Config holds all runtime configuration.
type Config struct {
	// Server
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBConnTimeout  time.Duration
	DBRequestTimeout time.Duration

	// Session cookie signing key file.
	CookieKeyPath string

	// Notifier (mail relay + admin API) credentials and endpoints.
	NotifierSecretPath string
	NotifierSecret     string // loaded from NotifierSecretPath at startup
	MailServerAddr     string
	MailServerName     string
	MailOpTimeout      time.Duration

	AdminAddr       string
	AdminTimeout    time.Duration
	AdminRateLimit  int // requests/sec to the admin delete endpoint

	// Dispatcher
	DispatchTickInterval time.Duration
	DispatchBatchSize    int

	// Account cleaner
	CleanerInterval time.Duration
	MaxAccountAge   time.Duration
}

// Load reads Config from the environment. The six variables spec.md §6
// marks required (LISTEN_ADDR, DATABASE_URL, COOKIE_KEY_PATH,
// NOTIFIER_SECRET_PATH, NOTIFIER_SERVER_ADDR, NOTIFIER_ADMIN_ADDR) fail
// loudly if absent; everything else has a default.
func Load() (*Config, error) {
	listenAddr, err := requireEnv("LISTEN_ADDR")
	if err != nil {
		return nil, err
	}
	dbURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	cookieKeyPath, err := requireEnv("COOKIE_KEY_PATH")
	if err != nil {
		return nil, err
	}
	notifierSecretPath, err := requireEnv("NOTIFIER_SECRET_PATH")
	if err != nil {
		return nil, err
	}
	mailServerAddr, err := requireEnv("NOTIFIER_SERVER_ADDR")
	if err != nil {
		return nil, err
	}
	adminAddr, err := requireEnv("NOTIFIER_ADMIN_ADDR")
	if err != nil {
		return nil, err
	}

	secret, err := os.ReadFile(notifierSecretPath)
	if err != nil {
		return nil, fmt.Errorf("reading NOTIFIER_SECRET_PATH %q: %w", notifierSecretPath, err)
	}

	return &Config{
		ListenAddr:      listenAddr,
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL:      dbURL,
		DBMaxConns:       int32(getInt("DB_MAX_CONNS", 64)),
		DBConnTimeout:    getDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		DBRequestTimeout: getDuration("DB_REQUEST_TIMEOUT", 10*time.Second),

		CookieKeyPath: cookieKeyPath,

		NotifierSecretPath: notifierSecretPath,
		NotifierSecret:     trimTrailingNewline(string(secret)),
		MailServerAddr:     mailServerAddr,
		MailServerName:     getEnv("NOTIFIER_SERVER_NAME", "notify-scheduler"),
		MailOpTimeout:      getDuration("MAIL_OP_TIMEOUT", 300*time.Millisecond),

		AdminAddr:      adminAddr,
		AdminTimeout:   getDuration("ADMIN_TIMEOUT", 2*time.Second),
		AdminRateLimit: getInt("ADMIN_RATE_LIMIT", 10),

		DispatchTickInterval: getDuration("DISPATCH_TICK_INTERVAL", time.Second),
		DispatchBatchSize:    getInt("DISPATCH_BATCH_SIZE", 100),

		CleanerInterval: getDuration("CLEANER_INTERVAL", 60*time.Second),
		MaxAccountAge:   getDuration("NOTIFIER_MAX_ACCOUNT_AGE", 10*time.Minute),
	}, nil
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
