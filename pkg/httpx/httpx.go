package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// exposedHeaders are the quota/rate headers browser clients are allowed to
// read from cross-origin responses.
var exposedHeaders = strings.Join([]string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
	"X-Lumen-Usage-Limit",
	"X-Lumen-Usage-Used",
	"X-Lumen-Usage-Remaining",
	"X-Lumen-Usage-Percent",
	"X-Lumen-Usage-Warning",
}, ",")

// SecurityHeadersMiddleware applies baseline hardening headers to API responses.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware enforces an explicit origin allowlist from comma-separated
// origins and exposes the rate/usage headers to allowed origins.
func CORSMiddleware(allowedOrigins string) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{}
	allowAll := false
	for _, part := range strings.Split(allowedOrigins, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !allowAll {
				if _, ok := allowed[origin]; !ok {
					if r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != "" {
						http.Error(w, "origin not allowed", http.StatusForbidden)
						return
					}
					next.ServeHTTP(w, r)
					return
				}
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
			h.Set("Access-Control-Expose-Headers", exposedHeaders)
			h.Set("Access-Control-Max-Age", "600")
			if r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]interface{}{"error": msg})
}
