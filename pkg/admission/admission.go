// Package admission composes the ordered gate in front of every protected
// endpoint: key verification, then rate limiting, then quota metering. A
// request touches a stage only after passing every stage before it, so a
// rate-limited request never consumes quota and an unauthenticated one
// never counts against any limit.
package admission

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"lumen/pkg/apikey"
	"lumen/pkg/httpx"
	"lumen/pkg/metrics"
	"lumen/pkg/models"
	"lumen/pkg/ratelimit"
	"lumen/pkg/stream"
	"lumen/pkg/usage"
)

type contextKey int

const identityKey contextKey = 0

// HeaderAPIKey carries the presented secret.
const HeaderAPIKey = "X-API-Key"

// Pipeline bundles the three admission stages so route wiring stays flat.
type Pipeline struct {
	Verifier *apikey.Verifier
	Limiter  ratelimit.Limiter
	Meter    *usage.Meter
	// Metrics counts rejections per cause when set.
	Metrics *metrics.Registry
	// Hub, when set, receives a usage event after each billed evaluation.
	Hub *stream.Hub
}

func (p *Pipeline) reject(cause string) {
	if p.Metrics != nil {
		p.Metrics.IncRejection(cause)
	}
}

// IdentityFromContext returns the verified identity placed by RequireKey.
func IdentityFromContext(ctx context.Context) (apikey.Identity, bool) {
	id, ok := ctx.Value(identityKey).(apikey.Identity)
	return id, ok
}

// ContextWithIdentity attaches an already-verified identity. Handlers under
// the pipeline never call this; it exists for wiring pre-verified requests
// and handler tests.
func ContextWithIdentity(ctx context.Context, id apikey.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// RequireKey verifies the X-API-Key header and stores the resulting identity
// in the request context. 401 is reserved for a missing credential; a key
// that was presented but is unknown, malformed, or expired is 403. A
// credential store outage is a 500, never a silent denial.
func (p *Pipeline) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := p.Verifier.Verify(r.Context(), r.Header.Get(HeaderAPIKey))
		switch {
		case err == nil:
		case errors.Is(err, apikey.ErrMissingKey):
			p.reject(metrics.RejectAuthFailed)
			httpx.Error(w, http.StatusUnauthorized, "missing API key: set the X-API-Key header")
			return
		case errors.Is(err, apikey.ErrExpiredKey):
			p.reject(metrics.RejectAuthFailed)
			httpx.Error(w, http.StatusForbidden, "API key expired")
			return
		case errors.Is(err, apikey.ErrInvalidKey):
			p.reject(metrics.RejectAuthFailed)
			httpx.Error(w, http.StatusForbidden, "invalid API key")
			return
		default:
			log.Printf("admission: key verification unavailable: %v", err)
			httpx.Error(w, http.StatusInternalServerError, "authentication temporarily unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

// RateLimit applies the per-key sliding window using the plan resolved during
// verification. Every response, allowed or not, carries the X-RateLimit-*
// headers; rejections add Retry-After and a structured body.
func (p *Pipeline) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusInternalServerError, "rate limit stage reached without identity")
			return
		}
		decision := p.Limiter.Allow(identity.RateKey(), apikey.RateLimit(identity.Plan))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset, 10))

		if !decision.Allowed {
			p.reject(metrics.RejectRateLimited)
			h.Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			httpx.WriteJSON(w, http.StatusTooManyRequests, models.RateLimitBody{
				Message:    "rate limit exceeded",
				Limit:      decision.Limit,
				Remaining:  decision.Remaining,
				Reset:      decision.Reset,
				RetryAfter: decision.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MeterUsage enforces the monthly quota around the wrapped handler. The
// pre-check rejects exhausted organizations before any downstream work; the
// commit runs only when the handler reported 2xx, so failed evaluations are
// never billed. The response is buffered so the headers can state the exact
// post-commit count.
func (p *Pipeline) MeterUsage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusInternalServerError, "usage stage reached without identity")
			return
		}

		quota, err := p.Meter.Check(r.Context(), identity.OrgID, identity.Plan)
		if err != nil {
			var quotaErr *usage.QuotaExceededError
			if errors.As(err, &quotaErr) {
				p.reject(metrics.RejectQuotaExceeded)
				usage.WriteHeaders(w.Header(), identity.Plan, quotaErr.Used, quotaErr.ResetAt)
				httpx.WriteJSON(w, http.StatusTooManyRequests, models.QuotaBody{
					Message:   "monthly evaluation limit exceeded",
					Plan:      quotaErr.Plan,
					Limit:     quotaErr.Limit,
					Used:      quotaErr.Used,
					ResetDate: quotaErr.ResetAt.Format("2006-01-02"),
				})
				return
			}
			// Quota integrity over availability: an unreadable counter
			// rejects the request rather than risking unmetered work.
			log.Printf("admission: quota check unavailable for org %s: %v", identity.OrgID, err)
			httpx.Error(w, http.StatusServiceUnavailable, "usage accounting temporarily unavailable")
			return
		}

		rec := newResponseRecorder()
		next.ServeHTTP(rec, r)

		used := quota.Used
		if rec.status >= 200 && rec.status < 300 {
			// The commit must survive a client disconnect: the evaluation
			// already happened and has to be billed.
			count, err := p.Meter.Commit(context.WithoutCancel(r.Context()), identity.OrgID)
			if err != nil {
				log.Printf("admission: usage commit failed for org %s: %v", identity.OrgID, err)
				used = quota.Used + 1
			} else {
				used = count
			}
			if p.Hub != nil {
				p.Hub.Publish(stream.NewUsageEvent(identity.OrgID, used, quota.Limit))
			}
		}
		usage.WriteHeaders(rec.Header(), identity.Plan, used, quota.ResetAt)
		rec.flush(w)
	})
}

// responseRecorder buffers the downstream response so usage headers can be
// added after the handler has run but before anything reaches the wire.
type responseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: http.Header{}, status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(b []byte) (int, error) { return r.body.Write(b) }

func (r *responseRecorder) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, vals := range r.header {
		dst[k] = vals
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}
