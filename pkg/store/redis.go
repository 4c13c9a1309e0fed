package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis opens the shared redis used for rate-limit windows and cache
// entries. A nil client with an error means the caller should fall back to
// process-local state.
func NewRedis(ctx context.Context) (*redis.Client, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	tlsConfig, err := redisTLSConfig()
	if err != nil {
		return nil, err
	}
	if requiresSecureTransport("REDIS_REQUIRE_TLS") && tlsConfig == nil {
		return nil, fmt.Errorf("REDIS_REQUIRE_TLS=true but REDIS_TLS is not enabled")
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		TLSConfig: tlsConfig,
	})
	ctxPing, cancel := context.WithTimeout(ctx, time.Second*2)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func redisTLSConfig() (*tls.Config, error) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("REDIS_TLS")), "true") {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE")), "true") {
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("REDIS_ALLOW_INSECURE_TLS")), "true") {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE=true requires REDIS_ALLOW_INSECURE_TLS=true")
		}
		cfg.InsecureSkipVerify = true
	}
	if serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME")); serverName != "" {
		cfg.ServerName = serverName
	}
	if caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_CERT_FILE")); caFile != "" {
		caBytes, err := os.ReadFile(filepath.Clean(caFile))
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_CERT_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("parse REDIS_TLS_CA_CERT_FILE: no valid certificates")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
