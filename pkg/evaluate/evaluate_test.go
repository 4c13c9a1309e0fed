package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lumen/pkg/admission"
	"lumen/pkg/apikey"
	"lumen/pkg/models"
	"lumen/pkg/records"
	"lumen/pkg/stream"
)

type fakeRecords struct {
	inserted []records.Record
	err      error
}

func (f *fakeRecords) Insert(_ context.Context, rec records.Record) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

type fixedEngine struct {
	score models.Score
	err   error
}

func (f *fixedEngine) Score(context.Context, models.EvaluateRequest) (models.Score, error) {
	return f.score, f.err
}

func serve(h *Handler, plan, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(body))
	id := apikey.Identity{KeyID: "key-1", OrgID: "org-1", Plan: plan}
	req = req.WithContext(admission.ContextWithIdentity(req.Context(), id))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestEvaluateSuccess(t *testing.T) {
	store := &fakeRecords{}
	hub := stream.NewHub()
	events, cancel := hub.Subscribe("org-1", 4)
	defer cancel()

	h := &Handler{
		Engine:         &fixedEngine{score: models.Score{LumenScore: 85, Tier: 1, Verdict: models.VerdictAllow, CitationIntegrity: 0.92}},
		Records:        store,
		Hub:            hub,
		RecordsBaseURL: "https://lumen.forge.health/records",
	}
	rr := serve(h, "free", `{"ai_output":"Patient presents with...","human_action":"accepted","compliance_packs":["ca-on-phipa"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp models.EvaluateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Verdict != models.VerdictAllow || resp.LumenScore != 85 {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.HasPrefix(resp.DefensibleRecordURL, "https://lumen.forge.health/records/") {
		t.Fatalf("record url = %q", resp.DefensibleRecordURL)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d records, want 1", len(store.inserted))
	}
	rec := store.inserted[0]
	if rec.ID != resp.RecordID || rec.OrgID != "org-1" || rec.KeyID != "key-1" {
		t.Fatalf("record = %+v", rec)
	}

	select {
	case evt := <-events:
		if evt.Type != stream.TypeEvaluation || evt.OrgID != "org-1" {
			t.Fatalf("event = %+v", evt)
		}
	default:
		t.Fatal("no evaluation event published")
	}
}

func TestEvaluateValidation(t *testing.T) {
	h := &Handler{Engine: &fixedEngine{}, Records: &fakeRecords{}}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"missing ai_output", `{"human_action":"accepted"}`, http.StatusUnprocessableEntity},
		{"bad human_action", `{"ai_output":"x","human_action":"ignored"}`, http.StatusUnprocessableEntity},
		{"unknown pack", `{"ai_output":"x","human_action":"accepted","compliance_packs":["nope"]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(h, "free", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestEvaluateProPackNeedsProPlan(t *testing.T) {
	h := &Handler{Engine: &fixedEngine{}, Records: &fakeRecords{}}
	body := `{"ai_output":"x","human_action":"accepted","compliance_packs":["eu-ai-act"]}`

	if rr := serve(h, "free", body); rr.Code != http.StatusForbidden {
		t.Fatalf("free plan: status = %d, want 403", rr.Code)
	}
	if rr := serve(h, "pro", body); rr.Code != http.StatusOK {
		t.Fatalf("pro plan: status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
}

func TestEvaluateEngineFailure(t *testing.T) {
	store := &fakeRecords{}
	h := &Handler{Engine: &fixedEngine{err: errors.New("timeout")}, Records: store}
	rr := serve(h, "free", `{"ai_output":"x","human_action":"accepted"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	if len(store.inserted) != 0 {
		t.Fatal("record persisted despite engine failure")
	}
}

func TestEvaluateInsertFailure(t *testing.T) {
	h := &Handler{
		Engine:  &fixedEngine{score: models.Score{LumenScore: 90, Tier: 1, Verdict: models.VerdictAllow}},
		Records: &fakeRecords{err: errors.New("connection refused")},
	}
	rr := serve(h, "free", `{"ai_output":"x","human_action":"accepted"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestStubEngineBands(t *testing.T) {
	e := NewStubEngine(1)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		score, err := e.Score(ctx, models.EvaluateRequest{AIOutput: "x", HumanAction: models.ActionAccepted})
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if score.LumenScore < 70 || score.LumenScore > 100 {
			t.Fatalf("accepted score %d out of band", score.LumenScore)
		}
		switch {
		case score.LumenScore >= 80:
			if score.Verdict != models.VerdictAllow || score.Tier != 1 {
				t.Fatalf("score %d: verdict %s tier %d", score.LumenScore, score.Verdict, score.Tier)
			}
		case score.LumenScore >= 50:
			if score.Verdict != models.VerdictWarn || score.Tier != 2 {
				t.Fatalf("score %d: verdict %s tier %d", score.LumenScore, score.Verdict, score.Tier)
			}
		}
		if score.CitationIntegrity < 0.7 || score.CitationIntegrity > 1.0 {
			t.Fatalf("citation integrity %v out of band", score.CitationIntegrity)
		}
	}

	score, err := e.Score(ctx, models.EvaluateRequest{
		AIOutput:        "x",
		HumanAction:     models.ActionRejected,
		CompliancePacks: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score.LumenScore > 54 {
		t.Fatalf("rejected score %d above band after pack penalty", score.LumenScore)
	}
}
