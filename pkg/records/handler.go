package records

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lumen/pkg/admission"
	"lumen/pkg/httpx"
	"lumen/pkg/models"
)

// Reader is the slice of the store the handlers read through.
type Reader interface {
	Get(ctx context.Context, orgID, recordID string) (Record, error)
	List(ctx context.Context, orgID string, limit, offset int) ([]Record, error)
}

// Handler serves the record retrieval endpoints.
type Handler struct {
	Store Reader
}

// Get serves GET /v1/records/{recordID}. Records belonging to another
// organization answer 404, same as records that never existed.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := admission.IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "record access without identity")
		return
	}
	recordID := chi.URLParam(r, "recordID")
	rec, err := h.Store.Get(r.Context(), identity.OrgID, recordID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("records: get %s failed: %v", recordID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(rec))
}

// List serves GET /v1/records with limit/offset paging.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := admission.IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "record access without identity")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	recs, err := h.Store.List(r.Context(), identity.OrgID, limit, offset)
	if err != nil {
		log.Printf("records: list for org %s failed: %v", identity.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	out := make([]models.RecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": out,
		"count":   len(out),
	})
}

func toResponse(rec Record) models.RecordResponse {
	packs := rec.CompliancePacks
	if packs == nil {
		packs = []string{}
	}
	return models.RecordResponse{
		RecordID:          rec.ID,
		AIOutput:          rec.AIOutput,
		HumanAction:       rec.HumanAction,
		CompliancePacks:   packs,
		LumenScore:        rec.LumenScore,
		Tier:              rec.Tier,
		Verdict:           rec.Verdict,
		CitationIntegrity: rec.CitationIntegrity,
		CreatedAt:         rec.CreatedAt.UTC().Format(time.RFC3339),
		Context:           rec.Context,
	}
}
