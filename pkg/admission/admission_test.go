package admission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"lumen/pkg/apikey"
	"lumen/pkg/ratelimit"
	"lumen/pkg/stream"
	"lumen/pkg/usage"
)

type fakeKeyStore struct {
	byPrefix map[string][]apikey.Credential
	err      error
}

func (f *fakeKeyStore) ActiveByPrefix(_ context.Context, prefix string) ([]apikey.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byPrefix[prefix], nil
}

func (f *fakeKeyStore) TouchLastUsed(context.Context, string, time.Time) error { return nil }
func (f *fakeKeyStore) CountActive(context.Context, string) (int, error)       { return 0, nil }
func (f *fakeKeyStore) Insert(context.Context, apikey.Credential) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeKeyStore) ListByOrg(context.Context, string) ([]apikey.Credential, error) {
	return nil, nil
}
func (f *fakeKeyStore) Revoke(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
func (f *fakeKeyStore) AcknowledgeLegal(context.Context, string, time.Time) error { return nil }

type fakeUsageStore struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (f *fakeUsageStore) key(orgID string, start time.Time) string {
	return orgID + "|" + start.Format("2006-01")
}

func (f *fakeUsageStore) Count(_ context.Context, orgID string, periodStart time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[f.key(orgID, periodStart)], nil
}

func (f *fakeUsageStore) Increment(_ context.Context, orgID string, periodStart, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	k := f.key(orgID, periodStart)
	f.counts[k]++
	return f.counts[k], nil
}

const testOrg = "org-test"

func newTestPipeline(t *testing.T, plan string) (*Pipeline, string, *fakeUsageStore) {
	t.Helper()
	secret, prefix, err := apikey.NewSecret("test")
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	hash, err := apikey.HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	keys := &fakeKeyStore{byPrefix: map[string][]apikey.Credential{
		prefix: {{
			ID:         "key-1",
			OrgID:      testOrg,
			Prefix:     prefix,
			SecretHash: hash,
			Status:     apikey.StatusActive,
			Plan:       plan,
		}},
	}}
	counts := &fakeUsageStore{counts: map[string]int{}}
	p := &Pipeline{
		Verifier: &apikey.Verifier{Store: keys},
		Limiter:  ratelimit.NewSlidingWindow(time.Minute),
		Meter:    &usage.Meter{Store: counts},
	}
	return p, secret, counts
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func doRequest(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireKey(t *testing.T) {
	p, secret, _ := newTestPipeline(t, apikey.PlanFree)
	h := p.RequireKey(okHandler())

	t.Run("missing key is 401", func(t *testing.T) {
		rr := doRequest(h, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("unknown key is 403", func(t *testing.T) {
		rr := doRequest(h, "lumen_pk_test_definitely-not-a-real-key")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rr.Code)
		}
	})

	t.Run("malformed key is 403", func(t *testing.T) {
		rr := doRequest(h, "not-even-a-lumen-key")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rr.Code)
		}
	})

	t.Run("valid key passes with identity", func(t *testing.T) {
		var got apikey.Identity
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		rr := doRequest(p.RequireKey(inner), secret)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		if got.OrgID != testOrg || got.Plan != apikey.PlanFree {
			t.Fatalf("identity = %+v", got)
		}
	})
}

func TestRequireKeyExpiredIsForbidden(t *testing.T) {
	secret, prefix, err := apikey.NewSecret("test")
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	hash, err := apikey.HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	expired := time.Now().UTC().Add(-time.Hour)
	keys := &fakeKeyStore{byPrefix: map[string][]apikey.Credential{
		prefix: {{ID: "key-1", OrgID: testOrg, Prefix: prefix, SecretHash: hash, Status: apikey.StatusActive, Plan: apikey.PlanFree, ExpiresAt: &expired}},
	}}
	p := &Pipeline{Verifier: &apikey.Verifier{Store: keys}}

	rr := doRequest(p.RequireKey(okHandler()), secret)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for expired key", rr.Code)
	}
}

func TestRequireKeyStoreOutageIs500(t *testing.T) {
	p := &Pipeline{Verifier: &apikey.Verifier{Store: &fakeKeyStore{err: errors.New("connection refused")}}}
	rr := doRequest(p.RequireKey(okHandler()), "lumen_pk_test_something-long-enough")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 on store outage", rr.Code)
	}
}

// withIdentity skips verification so limiter tests don't pay the bcrypt
// cost on every request.
func withIdentity(id apikey.Identity, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	p, _, _ := newTestPipeline(t, apikey.PlanFree)
	id := apikey.Identity{KeyID: "key-1", OrgID: testOrg, Plan: apikey.PlanFree, Prefix: "lumen_pk_test_abcde"}
	h := withIdentity(id, p.RateLimit(okHandler()))

	for i := 0; i < 100; i++ {
		rr := doRequest(h, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rr.Code)
		}
		wantRemaining := strconv.Itoa(100 - i - 1)
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Fatalf("request %d: remaining = %s, want %s", i+1, got, wantRemaining)
		}
	}

	rr := doRequest(h, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("101st request: status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("429 missing Retry-After header")
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("429 remaining = %s, want 0", got)
	}
}

func TestMeterUsageCommitsOnSuccess(t *testing.T) {
	p, secret, counts := newTestPipeline(t, apikey.PlanFree)
	h := p.RequireKey(p.MeterUsage(okHandler()))

	rr := doRequest(h, secret)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("X-Lumen-Usage-Used"); got != "1" {
		t.Fatalf("used header = %s, want 1", got)
	}
	start := usage.PeriodStart(time.Now().UTC())
	if n := counts.counts[counts.key(testOrg, start)]; n != 1 {
		t.Fatalf("stored count = %d, want 1", n)
	}
}

func TestMeterUsagePublishesUsageEvent(t *testing.T) {
	p, secret, _ := newTestPipeline(t, apikey.PlanFree)
	p.Hub = stream.NewHub()
	events, cancel := p.Hub.Subscribe(testOrg, 4)
	defer cancel()
	h := p.RequireKey(p.MeterUsage(okHandler()))

	if rr := doRequest(h, secret); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	select {
	case evt := <-events:
		if evt.Type != stream.TypeUsage {
			t.Fatalf("event type = %s", evt.Type)
		}
		var data struct {
			Used  int `json:"evaluations_this_month"`
			Limit int `json:"evaluations_limit"`
		}
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if data.Used != 1 || data.Limit != 1000 {
			t.Fatalf("usage event = %+v", data)
		}
	default:
		t.Fatal("no usage event published")
	}
}

func TestMeterUsageSkipsCommitOnFailure(t *testing.T) {
	p, secret, counts := newTestPipeline(t, apikey.PlanFree)
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine down", http.StatusBadGateway)
	})
	h := p.RequireKey(p.MeterUsage(failing))

	rr := doRequest(h, secret)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	start := usage.PeriodStart(time.Now().UTC())
	if n := counts.counts[counts.key(testOrg, start)]; n != 0 {
		t.Fatalf("stored count = %d, want 0 after failed downstream", n)
	}
}

func TestMeterUsageQuotaBoundary(t *testing.T) {
	p, secret, counts := newTestPipeline(t, apikey.PlanFree)
	start := usage.PeriodStart(time.Now().UTC())
	counts.counts[counts.key(testOrg, start)] = 999
	h := p.RequireKey(p.MeterUsage(okHandler()))

	rr := doRequest(h, secret)
	if rr.Code != http.StatusOK {
		t.Fatalf("1000th evaluation: status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("X-Lumen-Usage-Used"); got != "1000" {
		t.Fatalf("used header = %s, want 1000", got)
	}
	if rr.Header().Get("X-Lumen-Usage-Warning") == "" {
		t.Fatal("expected warning header at 100% usage")
	}

	rr = doRequest(h, secret)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("1001st evaluation: status = %d, want 429", rr.Code)
	}
	if n := counts.counts[counts.key(testOrg, start)]; n != 1000 {
		t.Fatalf("stored count = %d, want 1000 after rejection", n)
	}
}

func TestMeterUsageFailsClosed(t *testing.T) {
	p, secret, counts := newTestPipeline(t, apikey.PlanFree)
	counts.err = errors.New("connection refused")
	h := p.RequireKey(p.MeterUsage(okHandler()))

	rr := doRequest(h, secret)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when quota store is down", rr.Code)
	}
}
