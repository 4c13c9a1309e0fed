// Package evaluate implements the compliance evaluation endpoint: it scores
// AI output, persists a defensible record, and reports the verdict.
package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"lumen/pkg/admission"
	"lumen/pkg/httpx"
	"lumen/pkg/models"
	"lumen/pkg/packs"
	"lumen/pkg/records"
	"lumen/pkg/stream"
)

// maxOutputBytes bounds ai_output so a single record stays storable.
const maxOutputBytes = 1 << 20

// RecordSink is the slice of the record store the handler writes through.
type RecordSink interface {
	Insert(ctx context.Context, rec records.Record) error
}

// Handler serves POST /v1/evaluate.
type Handler struct {
	Engine  Engine
	Records RecordSink
	Hub     *stream.Hub
	// RecordsBaseURL prefixes defensible_record_url, e.g.
	// https://lumen.forge.health/records.
	RecordsBaseURL string
	Now            func() time.Time
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := admission.IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "evaluation reached without identity")
		return
	}

	var req models.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(req.AIOutput) > maxOutputBytes {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "ai_output exceeds 1MB")
		return
	}
	if err := validatePacks(req.CompliancePacks, identity.Plan); err != nil {
		if errors.Is(err, packs.ErrProPackOnly) {
			httpx.Error(w, http.StatusForbidden, err.Error())
			return
		}
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	score, err := h.Engine.Score(r.Context(), req)
	if err != nil {
		log.Printf("evaluate: scoring failed for org %s: %v", identity.OrgID, err)
		httpx.Error(w, http.StatusBadGateway, "scoring engine unavailable")
		return
	}

	recordID := uuid.NewString()
	now := h.now()
	rec := records.Record{
		ID:                recordID,
		OrgID:             identity.OrgID,
		KeyID:             identity.KeyID,
		AIOutput:          req.AIOutput,
		HumanAction:       req.HumanAction,
		CompliancePacks:   req.CompliancePacks,
		LumenScore:        score.LumenScore,
		Tier:              score.Tier,
		Verdict:           score.Verdict,
		CitationIntegrity: score.CitationIntegrity,
		Context:           req.Context,
		CreatedAt:         now,
	}
	if err := h.Records.Insert(r.Context(), rec); err != nil {
		// No record, no verdict: an evaluation that cannot be defended
		// later must not appear to have succeeded.
		log.Printf("evaluate: record insert failed for org %s: %v", identity.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to persist evaluation record")
		return
	}

	if h.Hub != nil {
		h.Hub.Publish(stream.NewEvaluationEvent(identity.OrgID, recordID, score.LumenScore, score.Tier, score.Verdict))
	}

	httpx.WriteJSON(w, http.StatusOK, models.EvaluateResponse{
		RecordID:            recordID,
		LumenScore:          score.LumenScore,
		Tier:                score.Tier,
		Verdict:             score.Verdict,
		CitationIntegrity:   score.CitationIntegrity,
		DefensibleRecordURL: fmt.Sprintf("%s/%s", strings.TrimRight(h.RecordsBaseURL, "/"), recordID),
	})
}

// validatePacks rejects unknown pack ids and pro packs on a free plan.
func validatePacks(ids []string, plan string) error {
	for _, id := range ids {
		pack, ok := packs.ByID(id)
		if !ok {
			return fmt.Errorf("unknown compliance pack: %s", id)
		}
		if pack.Tier == "pro" && plan != "pro" {
			return fmt.Errorf("%w: %s", packs.ErrProPackOnly, id)
		}
	}
	return nil
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
