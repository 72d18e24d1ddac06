package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"linkhub/internal/entitlement"
	"linkhub/internal/gate"
	"linkhub/internal/models"
	"linkhub/internal/repo"
	"linkhub/internal/secrets"
)

// APIKeyHandler — управление API-ключами аккаунта.
type APIKeyHandler struct {
	keys *repo.APIKeyStore
}

func NewAPIKeyHandler(keys *repo.APIKeyStore) *APIKeyHandler { return &APIKeyHandler{keys: keys} }

type createKeyRequest struct {
	Name string `json:"name"`
}

type apiKeyResponse struct {
	ID        string    `json:"id"`
	KeyID     string    `json:"key_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	// Полный ключ отдаётся только один раз, при создании.
	Key string `json:"key,omitempty"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	// квота тарифа по живому счётчику
	active, err := h.keys.CountActive(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "count api keys", err)
		return
	}
	if err := entitlement.CheckQuota(p.Limits, p.Tier.Tier, entitlement.ResourceAPIKeys, active+1); err != nil {
		var quotaErr *entitlement.QuotaError
		if errors.As(err, &quotaErr) {
			models.WriteTierError(w, http.StatusForbidden, quotaErr.Error(), quotaErr.Tier)
			return
		}
		internalError(w, r, "api key quota", err)
		return
	}

	keyID, secret, secretHash := secrets.NewAPIKey()
	key := &models.APIKey{
		ID:         uuid.NewString(),
		AccountID:  p.AccountID,
		KeyID:      keyID,
		SecretHash: secretHash,
		Name:       req.Name,
		Status:     models.StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.keys.Create(r.Context(), key); err != nil {
		internalError(w, r, "create api key", err)
		return
	}

	models.WriteJSON(w, http.StatusCreated, apiKeyResponse{
		ID:        key.ID,
		KeyID:     key.KeyID,
		Name:      key.Name,
		Status:    string(key.Status),
		CreatedAt: key.CreatedAt,
		Key:       gate.FormatAPIKey(keyID, secret),
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	keys, err := h.keys.List(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "list api keys", err)
		return
	}
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyResponse{
			ID:        k.ID,
			KeyID:     k.KeyID,
			Name:      k.Name,
			Status:    string(k.Status),
			Reason:    k.StatusReason,
			CreatedAt: k.CreatedAt,
		})
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// Delete отключает ключ (soft-disable), не удаляет.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())
	id := mux.Vars(r)["id"]

	key, err := h.keys.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrAPIKeyNotFound) {
			models.WriteError(w, http.StatusNotFound, "api key not found")
			return
		}
		internalError(w, r, "get api key", err)
		return
	}
	if key.AccountID != p.AccountID {
		models.WriteError(w, http.StatusForbidden, "not the key owner")
		return
	}

	if _, err := h.keys.Disable(r.Context(), id, models.ReasonRevokedByOwner); err != nil {
		internalError(w, r, "disable api key", err)
		return
	}
	models.WriteJSON(w, http.StatusOK, struct{}{})
}
