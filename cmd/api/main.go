// Command api is the LUMEN compliance gateway: API-key admission in front of
// the evaluation endpoint, the portal surface for key and pack management,
// and the defensible record reads.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"lumen/pkg/admission"
	"lumen/pkg/apikey"
	"lumen/pkg/evaluate"
	"lumen/pkg/hardening"
	"lumen/pkg/httpx"
	"lumen/pkg/metrics"
	"lumen/pkg/models"
	"lumen/pkg/packs"
	"lumen/pkg/portal"
	"lumen/pkg/ratelimit"
	"lumen/pkg/records"
	"lumen/pkg/store"
	"lumen/pkg/stream"
	"lumen/pkg/telemetry"
	"lumen/pkg/usage"
)

type apiDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type apiDBCloser interface {
	apiDB
	Close()
}

type apiInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type apiOpenDBFunc func(ctx context.Context) (apiDBCloser, error)
type apiOpenRedisFunc func(ctx context.Context) (*redis.Client, error)
type apiListenFunc func(server *http.Server) error

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	openDBFn        = func(ctx context.Context) (apiDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFn     = store.NewRedis
	listenFn        = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	_ = godotenv.Load()
	if err := runAPI(initTelemetryFn, openDBFn, openRedisFn, listenFn); err != nil {
		logFatalf("api: %v", err)
	}
}

// Server holds the wired dependencies of the gateway process.
type Server struct {
	DB      apiDB
	Metrics *metrics.Registry
	Hub     *stream.Hub
	Started time.Time
	Version string
}

func runAPI(
	initTelemetry apiInitTelemetryFunc,
	openDB apiOpenDBFunc,
	openRedis apiOpenRedisFunc,
	listen apiListenFunc,
) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := initTelemetry(ctx, "lumen-api")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, rate limits fall back to process memory: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	rateLimitWindow := time.Second * time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60))
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisSlidingWindow(redisClient, rateLimitWindow)
	} else {
		memLimiter := ratelimit.NewSlidingWindow(rateLimitWindow)
		go memLimiter.Run(ctx)
		limiter = memLimiter
	}

	s := &Server{
		DB:      pool,
		Metrics: metrics.NewRegistry(),
		Hub:     stream.NewHub(),
		Started: time.Now().UTC(),
		Version: env("SERVICE_VERSION", "1.0.0"),
	}

	meter := &usage.Meter{Store: &usage.PGStore{DB: pool}}
	pipeline := &admission.Pipeline{
		Verifier: &apikey.Verifier{Store: &apikey.PGStore{DB: pool}, Cache: cache},
		Limiter:  limiter,
		Meter:    meter,
		Metrics:  s.Metrics,
		Hub:      s.Hub,
	}
	keyService := &apikey.Service{Store: &apikey.PGStore{DB: pool}}
	packService := &packs.Service{Store: &packs.OrgStore{DB: pool}}
	recordStore := &records.Store{DB: pool}

	var engine evaluate.Engine
	if scoringURL := strings.TrimSpace(env("SCORING_ENGINE_URL", "")); scoringURL != "" {
		engine = &evaluate.HTTPEngine{
			Client:  telemetry.InstrumentClient(&http.Client{Timeout: time.Millisecond * time.Duration(envInt("SCORING_TIMEOUT_MS", 10000))}),
			BaseURL: scoringURL,
		}
	} else {
		log.Printf("SCORING_ENGINE_URL unset, using the interim local scorer")
		engine = evaluate.NewStubEngine(time.Now().UnixNano())
	}
	evalHandler := &evaluate.Handler{
		Engine:         timedEngine{inner: engine, metrics: s.Metrics},
		Records:        recordStore,
		Hub:            s.Hub,
		RecordsBaseURL: env("RECORDS_BASE_URL", "http://localhost:8080/v1/records"),
	}
	recordsHandler := &records.Handler{Store: recordStore}

	portalSecret := env("PORTAL_JWT_SECRET", "")
	if portalSecret == "" {
		return errors.New("PORTAL_JWT_SECRET is required")
	}
	if err := hardening.ValidateProduction(hardening.Options{
		Service:               "lumen-api",
		Environment:           env("ENVIRONMENT", env("APP_ENV", "")),
		StrictProdSecurity:    env("STRICT_PROD_SECURITY", "true"),
		DatabaseRequireTLS:    env("DATABASE_REQUIRE_TLS", ""),
		RedisAddr:             env("REDIS_ADDR", ""),
		RedisRequireTLS:       env("REDIS_REQUIRE_TLS", ""),
		RedisTLSInsecure:      env("REDIS_TLS_INSECURE", ""),
		RedisAllowInsecureTLS: env("REDIS_ALLOW_INSECURE_TLS", ""),
		CORSAllowedOrigins:    env("CORS_ALLOWED_ORIGINS", ""),
		PortalJWTSecret:       portalSecret,
	}); err != nil {
		return err
	}
	authn := &portal.Authenticator{
		Secret: []byte(portalSecret),
		Orgs:   &portal.PGOrgResolver{DB: pool},
	}
	portalHandlers := &portal.Handlers{
		Keys:  keyService,
		Meter: meter,
		Packs: packService,
		Hub:   s.Hub,
	}

	go s.verdictLoop(ctx)
	go s.gaugeLoop(ctx)
	if brokers := strings.TrimSpace(env("KAFKA_BROKERS", "")); brokers != "" {
		sink, err := stream.NewKafkaSink(stream.KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   env("KAFKA_TOPIC", "lumen.events"),
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer sink.Close()
		events, cancelSub := s.Hub.Subscribe(stream.FirehoseOrg, 256)
		defer cancelSub()
		go sink.Run(ctx, events)
	}

	maxRequestBodyBytes := int64(envInt("MAX_REQUEST_BODY_BYTES", 2<<20))
	corsOrigins := env("CORS_ALLOWED_ORIGINS", "")

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(corsOrigins))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("lumen-api"))
	r.Use(limitRequestBody(maxRequestBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "lumen-api"})
	})
	r.Get("/health", s.health)
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	r.Get("/health/ready", s.ready)
	r.Get("/v1/packs", listPacks)

	// API-key surface: the admission pipeline in its required order.
	r.Group(func(keyed chi.Router) {
		keyed.Use(pipeline.RequireKey)
		keyed.Use(pipeline.RateLimit)
		keyed.Get("/v1/packs/{packID}", getPack)
		keyed.Get("/v1/records", recordsHandler.List)
		keyed.Get("/v1/records/{recordID}", recordsHandler.Get)
		keyed.With(pipeline.MeterUsage).Post("/v1/evaluate", evalHandler.ServeHTTP)
	})

	// Portal surface: JWT-authenticated key and pack management.
	r.Group(func(pr chi.Router) {
		pr.Use(authn.Middleware)
		pr.Post("/v1/keys/generate", portalHandlers.GenerateKey)
		pr.Get("/v1/keys", portalHandlers.ListKeys)
		pr.Get("/v1/keys/usage", portalHandlers.Usage)
		pr.Delete("/v1/keys/{keyID}", portalHandlers.RevokeKey)
		pr.Post("/v1/packs/enable", portalHandlers.EnablePack)
		pr.Post("/v1/packs/disable", portalHandlers.DisablePack)
		pr.Get("/v1/stream", portalHandlers.StreamEvents(corsOrigins))
		pr.Get("/metrics", s.Metrics.Handler())
		pr.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())
	})

	addr := env("ADDR", ":8080")
	log.Printf("lumen api listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

// timedEngine feeds scoring round-trip latency into the registry.
type timedEngine struct {
	inner   evaluate.Engine
	metrics *metrics.Registry
}

func (e timedEngine) Score(ctx context.Context, req models.EvaluateRequest) (models.Score, error) {
	start := time.Now()
	score, err := e.inner.Score(ctx, req)
	if err == nil {
		e.metrics.ObserveScoreLatency(time.Since(start))
	}
	return score, err
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbHealthy := s.DB.Ping(ctx) == nil
	status := "healthy"
	if !dbHealthy {
		status = "degraded"
	}
	httpx.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:          status,
		Version:         s.Version,
		Service:         "lumen-api",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds:   time.Since(s.Started).Seconds(),
		DatabaseHealthy: dbHealthy,
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.DB.Ping(ctx); err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func listPacks(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"packs":   packs.Summaries(),
		"version": packs.CatalogVersion(),
	})
}

func getPack(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	pack, ok := packs.ByID(packID)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "policy pack not found: "+packID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pack)
}

// verdictLoop tallies verdicts from completed evaluations on the firehose.
func (s *Server) verdictLoop(ctx context.Context) {
	events, cancel := s.Hub.Subscribe(stream.FirehoseOrg, 256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != stream.TypeEvaluation {
				continue
			}
			var data struct {
				Verdict string `json:"verdict"`
			}
			if err := json.Unmarshal(evt.Data, &data); err == nil && data.Verdict != "" {
				s.Metrics.IncVerdict(data.Verdict)
			}
		}
	}
}

func (s *Server) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(envDurationSec("METRICS_GAUGE_INTERVAL_SEC", 30))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Metrics.SetGauge("uptime_seconds", time.Since(s.Started).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func (srv *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		path := r.Method + " " + r.URL.Path
		srv.Metrics.Observe(path, rec.code, elapsed)
		srv.Metrics.ObserveLatency(path, elapsed)
	})
}

func limitRequestBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}
