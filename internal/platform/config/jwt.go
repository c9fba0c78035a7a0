package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// JWTConfig configures JWT verification against a JWKS endpoint.
type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string

	ClockSkew              time.Duration
	JWKSRefreshInterval    time.Duration
	JWKSMinRefreshInterval time.Duration

	HTTPTimeout time.Duration
}

func LoadJWTConfigFromEnv() (JWTConfig, error) {
	issuer := strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	audience := strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	jwksURL := strings.TrimSpace(os.Getenv("JWT_JWKS_URL"))
	if issuer == "" || audience == "" || jwksURL == "" {
		return JWTConfig{}, fmt.Errorf("missing required env vars: JWT_ISSUER, JWT_AUDIENCE, JWT_JWKS_URL")
	}
	if u, err := url.Parse(jwksURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return JWTConfig{}, fmt.Errorf("JWT_JWKS_URL must be an absolute http(s) URL, got %q", jwksURL)
	}

	cfg := JWTConfig{
		Issuer:    issuer,
		Audience:  audience,
		JWKSURL:   jwksURL,
		ClockSkew: 30 * time.Second,
		// Refresh periodically to pick up key rotation even if an old key is still cached.
		JWKSRefreshInterval: 5 * time.Minute,
		// Bound refresh frequency when a token presents an unknown kid (avoid thundering herd).
		JWKSMinRefreshInterval: 10 * time.Second,
		HTTPTimeout:            5 * time.Second,
	}

	var err error
	if cfg.ClockSkew, err = envDuration("JWT_CLOCK_SKEW", cfg.ClockSkew); err != nil {
		return JWTConfig{}, err
	}
	if cfg.JWKSRefreshInterval, err = envDuration("JWT_JWKS_REFRESH_INTERVAL", cfg.JWKSRefreshInterval); err != nil {
		return JWTConfig{}, err
	}
	if cfg.JWKSMinRefreshInterval, err = envDuration("JWT_JWKS_MIN_REFRESH_INTERVAL", cfg.JWKSMinRefreshInterval); err != nil {
		return JWTConfig{}, err
	}
	if cfg.HTTPTimeout, err = envDuration("JWT_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return JWTConfig{}, err
	}

	if cfg.ClockSkew < 0 {
		return JWTConfig{}, fmt.Errorf("JWT_CLOCK_SKEW must not be negative")
	}
	if cfg.JWKSMinRefreshInterval > cfg.JWKSRefreshInterval {
		return JWTConfig{}, fmt.Errorf("JWT_JWKS_MIN_REFRESH_INTERVAL (%s) exceeds JWT_JWKS_REFRESH_INTERVAL (%s)",
			cfg.JWKSMinRefreshInterval, cfg.JWKSRefreshInterval)
	}
	return cfg, nil
}
