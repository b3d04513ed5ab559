// Package authapi exposes the session lifecycle over HTTP.
package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RefreshCookiePath scopes the refresh cookie to the one endpoint that
// consumes it, so the browser never attaches it anywhere else.
const RefreshCookiePath = "/api/auth/refresh-token"

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	CookieSecure      bool

	LoginIPMax    int
	LoginIPWindow time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:        envBool("PARLEY_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("PARLEY_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		AccessCookieName:  envString("PARLEY_AUTH_ACCESS_COOKIE", "parley_access"),
		RefreshCookieName: envString("PARLEY_AUTH_REFRESH_COOKIE", "parley_refresh"),
		CookieDomain:      envString("PARLEY_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("PARLEY_AUTH_COOKIE_SECURE", true),
		LoginIPMax:        envInt("PARLEY_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:     envDuration("PARLEY_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.AccessCookieName == "" {
		cfg.AccessCookieName = "parley_access"
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "parley_refresh"
	}
	if cfg.LoginIPMax <= 0 {
		cfg.LoginIPMax = 20
	}

	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
