package portal

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lumen/pkg/apikey"
	"lumen/pkg/httpx"
	"lumen/pkg/packs"
	"lumen/pkg/stream"
	"lumen/pkg/usage"
)

// Handlers bundles the portal endpoints behind the JWT middleware.
type Handlers struct {
	Keys  *apikey.Service
	Meter *usage.Meter
	Packs *packs.Service
	Hub   *stream.Hub
}

type generateKeyRequest struct {
	Name        string  `json:"name"`
	Environment string  `json:"environment"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

type generateKeyResponse struct {
	KeyID       string  `json:"key_id"`
	APIKey      string  `json:"api_key"`
	Name        string  `json:"name"`
	Environment string  `json:"environment"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

type keyInfo struct {
	KeyID       string  `json:"key_id"`
	Name        string  `json:"name"`
	Environment string  `json:"environment"`
	KeyPrefix   string  `json:"key_prefix"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	LastUsedAt  *string `json:"last_used_at,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

// GenerateKey serves POST /v1/keys/generate. The plaintext secret appears in
// this response and nowhere else, ever.
func (h *Handlers) GenerateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
		return
	}
	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		httpx.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "expires_at must be RFC 3339")
			return
		}
		expiresAt = &t
	}

	key, err := h.Keys.Generate(r.Context(), principal.OrgID, principal.Plan, req.Name, req.Environment, expiresAt)
	switch {
	case err == nil:
	case errors.Is(err, apikey.ErrBadEnvironment):
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, apikey.ErrKeyLimitReached):
		httpx.Error(w, http.StatusForbidden, err.Error())
		return
	default:
		log.Printf("portal: key generation failed for org %s: %v", principal.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to generate API key")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, generateKeyResponse{
		KeyID:       key.KeyID,
		APIKey:      key.Secret,
		Name:        key.Name,
		Environment: key.Environment,
		CreatedAt:   key.CreatedAt.Format(time.RFC3339),
		ExpiresAt:   formatTimePtr(key.ExpiresAt),
	})
}

// ListKeys serves GET /v1/keys. Secrets are never listed, only prefixes.
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
		return
	}
	creds, err := h.Keys.List(r.Context(), principal.OrgID)
	if err != nil {
		log.Printf("portal: key list failed for org %s: %v", principal.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to list API keys")
		return
	}
	out := make([]keyInfo, 0, len(creds))
	for _, c := range creds {
		out = append(out, keyInfo{
			KeyID:       c.ID,
			Name:        c.Name,
			Environment: c.Environment,
			KeyPrefix:   c.Prefix,
			Status:      c.Status,
			CreatedAt:   c.CreatedAt.Format(time.RFC3339),
			LastUsedAt:  formatTimePtr(c.LastUsedAt),
			ExpiresAt:   formatTimePtr(c.ExpiresAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"keys": out, "count": len(out)})
}

// RevokeKey serves DELETE /v1/keys/{keyID}.
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
		return
	}
	keyID := chi.URLParam(r, "keyID")
	err := h.Keys.Revoke(r.Context(), principal.OrgID, keyID)
	switch {
	case err == nil:
	case errors.Is(err, apikey.ErrKeyNotFound):
		httpx.Error(w, http.StatusNotFound, "API key not found")
		return
	default:
		log.Printf("portal: key revoke failed for org %s: %v", principal.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to revoke API key")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "API key revoked"})
}

// Usage serves GET /v1/keys/usage: the current billing period snapshot.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
		return
	}
	snap, err := h.Meter.Snapshot(r.Context(), principal.OrgID, principal.Plan)
	if err != nil {
		log.Printf("portal: usage snapshot failed for org %s: %v", principal.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, snap)
}

type packRequest struct {
	PackID string `json:"pack_id"`
}

// EnablePack serves POST /v1/packs/enable.
func (h *Handlers) EnablePack(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
		return
	}
	var req packRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackID == "" {
		httpx.Error(w, http.StatusBadRequest, "pack_id is required")
		return
	}
	pack, err := h.Packs.Enable(r.Context(), principal.OrgID, principal.Plan, req.PackID)
	switch {
	case err == nil:
	case errors.Is(err, packs.ErrAlreadyEnabled):
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "policy pack '" + req.PackID + "' is already enabled",
		})
		return
	case errors.Is(err, packs.ErrPackNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, packs.ErrProPackOnly), errors.Is(err, packs.ErrEnableLimit):
		httpx.Error(w, http.StatusForbidden, err.Error())
		return
	default:
		log.Printf("portal: pack enable failed for org %s: %v", principal.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to enable policy pack")
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(stream.NewPackEvent(stream.TypePackEnabled, principal.OrgID, req.PackID))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message":   "policy pack '" + req.PackID + "' enabled successfully",
		"pack_name": pack.Name,
	})
}

// DisablePack serves POST /v1/packs/disable.
func (h *Handlers) DisablePack(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
		return
	}
	var req packRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackID == "" {
		httpx.Error(w, http.StatusBadRequest, "pack_id is required")
		return
	}
	pack, err := h.Packs.Disable(r.Context(), principal.OrgID, req.PackID)
	switch {
	case err == nil:
	case errors.Is(err, packs.ErrNotEnabled):
		httpx.Error(w, http.StatusNotFound, "policy pack '"+req.PackID+"' is not currently enabled")
		return
	default:
		log.Printf("portal: pack disable failed for org %s: %v", principal.OrgID, err)
		httpx.Error(w, http.StatusInternalServerError, "failed to disable policy pack")
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(stream.NewPackEvent(stream.TypePackDisabled, principal.OrgID, req.PackID))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message":   "policy pack '" + req.PackID + "' disabled successfully",
		"pack_name": pack.Name,
	})
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
