// Package hardening gates production startups on a safe configuration:
// TLS to the backing stores, an explicit HTTPS CORS allowlist, and a real
// portal signing secret. Development and test environments skip all of it.
package hardening

import (
	"fmt"
	"strings"
)

// portalSecretMinLen rejects secrets short enough to brute-force offline.
const portalSecretMinLen = 32

type Options struct {
	Service               string
	Environment           string
	StrictProdSecurity    string
	DatabaseRequireTLS    string
	RedisAddr             string
	RedisRequireTLS       string
	RedisTLSInsecure      string
	RedisAllowInsecureTLS string
	CORSAllowedOrigins    string
	PortalJWTSecret       string
}

// ValidateProduction returns an error describing the first unsafe setting in
// a production-like environment. Set STRICT_PROD_SECURITY=false to opt out.
func ValidateProduction(o Options) error {
	if !isProductionLikeEnv(o.Environment) {
		return nil
	}
	if !isTrue(o.StrictProdSecurity, true) {
		return nil
	}
	service := strings.TrimSpace(o.Service)
	if service == "" {
		service = "service"
	}
	if !isTrue(o.DatabaseRequireTLS, false) {
		return fmt.Errorf("%s: production requires DATABASE_REQUIRE_TLS=true", service)
	}
	if strings.TrimSpace(o.RedisAddr) != "" {
		if !isTrue(o.RedisRequireTLS, false) {
			return fmt.Errorf("%s: production requires REDIS_REQUIRE_TLS=true", service)
		}
		if isTrue(o.RedisTLSInsecure, false) || isTrue(o.RedisAllowInsecureTLS, false) {
			return fmt.Errorf("%s: production forbids REDIS_TLS_INSECURE/REDIS_ALLOW_INSECURE_TLS", service)
		}
	}
	if err := validateCORSOrigins(o.CORSAllowedOrigins, service); err != nil {
		return err
	}
	if len(strings.TrimSpace(o.PortalJWTSecret)) < portalSecretMinLen {
		return fmt.Errorf("%s: production requires a PORTAL_JWT_SECRET of at least %d characters", service, portalSecretMinLen)
	}
	return nil
}

func validateCORSOrigins(raw, service string) error {
	validCount := 0
	for _, origin := range strings.Split(raw, ",") {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		validCount++
		lower := strings.ToLower(o)
		if lower == "*" {
			return fmt.Errorf("%s: production forbids the CORS wildcard origin", service)
		}
		if strings.HasPrefix(lower, "http://localhost") || strings.HasPrefix(lower, "https://localhost") || strings.HasPrefix(lower, "http://127.0.0.1") || strings.HasPrefix(lower, "https://127.0.0.1") {
			return fmt.Errorf("%s: production forbids localhost CORS origin %q", service, o)
		}
		if !strings.HasPrefix(lower, "https://") {
			return fmt.Errorf("%s: production requires HTTPS CORS origins, got %q", service, o)
		}
	}
	if validCount == 0 {
		return fmt.Errorf("%s: production requires an explicit CORS_ALLOWED_ORIGINS", service)
	}
	return nil
}

func isTrue(raw string, def bool) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def
	}
	return strings.EqualFold(trimmed, "true")
}

func isProductionLikeEnv(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production", "staging", "stage":
		return true
	default:
		return false
	}
}
