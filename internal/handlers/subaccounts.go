package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"linkhub/internal/gate"
	"linkhub/internal/models"
	"linkhub/internal/repo"
)

// SubAccountHandler — создание/список/удаление суб-аккаунтов и отмена пака.
type SubAccountHandler struct {
	accounts *repo.AccountStore
}

func NewSubAccountHandler(accounts *repo.AccountStore) *SubAccountHandler {
	return &SubAccountHandler{accounts: accounts}
}

type createSubAccountRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type subAccountResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Type      string `json:"type"`
	Status    string `json:"status"`
}

// Create обеспечивает инварианты владения на месте создания:
// глубина наследования 1 (суб-аккаунт не создаёт суб-аккаунты),
// пак обязателен, активных связей не больше packLimit.
func (h *SubAccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())
	if p.IsSubAccount {
		models.WriteError(w, http.StatusForbidden, "sub-accounts cannot own sub-accounts")
		return
	}

	var req createSubAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		models.WriteError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if req.Type == "" {
		req.Type = "client"
	}

	parent, err := h.accounts.Get(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "load parent account", err)
		return
	}
	if parent.PackType == models.PackNone {
		models.WriteError(w, http.StatusForbidden, "an active pack is required to create sub-accounts")
		return
	}
	if parent.PackLimit >= 0 {
		active, err := h.accounts.CountActiveRelationships(r.Context(), parent.ID)
		if err != nil {
			internalError(w, r, "count relationships", err)
			return
		}
		if active >= int64(parent.PackLimit) {
			models.WriteError(w, http.StatusForbidden, "pack sub-account limit reached")
			return
		}
	}

	sub := &models.Account{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		Role:               models.RoleSubAccount,
		IsSubAccount:       true,
		AuthDisabled:       true,
		Tier:               models.TierFree, // эффективный тариф наследуется от родителя
		SubscriptionStatus: models.SubscriptionActive,
		PackType:           models.PackNone,
	}
	rel := &models.SubAccountRelationship{
		ParentAccountID: parent.ID,
		SubAccountID:    sub.ID,
		Type:            req.Type,
		Status:          models.RelationshipActive,
	}
	if err := h.accounts.CreateSubAccount(r.Context(), sub, rel); err != nil {
		internalError(w, r, "create sub-account", err)
		return
	}

	models.WriteJSON(w, http.StatusCreated, subAccountResponse{
		AccountID: sub.ID,
		Email:     sub.Email,
		Type:      rel.Type,
		Status:    string(rel.Status),
	})
}

func (h *SubAccountHandler) List(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	rels, err := h.accounts.ListRelationships(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "list relationships", err)
		return
	}
	out := make([]subAccountResponse, 0, len(rels))
	for _, rel := range rels {
		resp := subAccountResponse{
			AccountID: rel.SubAccountID,
			Type:      rel.Type,
			Status:    string(rel.Status),
		}
		if sub, err := h.accounts.Get(r.Context(), rel.SubAccountID); err == nil {
			resp.Email = sub.Email
		}
		out = append(out, resp)
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// Delete — hard delete суб-аккаунта и его связи (владеет только родитель).
func (h *SubAccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())
	subID := mux.Vars(r)["id"]

	if err := h.accounts.DeleteSubAccount(r.Context(), p.AccountID, subID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			models.WriteError(w, http.StatusNotFound, "sub-account not found")
			return
		}
		internalError(w, r, "delete sub-account", err)
		return
	}
	models.WriteJSON(w, http.StatusOK, struct{}{})
}

// CancelPack снимает пак; допускается только при нуле активных связей.
func (h *SubAccountHandler) CancelPack(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	active, err := h.accounts.CountActiveRelationships(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "count relationships", err)
		return
	}
	if active > 0 {
		models.WriteError(w, http.StatusConflict, "pack has active sub-accounts")
		return
	}

	acc, err := h.accounts.Get(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "load account", err)
		return
	}
	acc.PackType = models.PackNone
	acc.PackLimit = 0
	acc.PackExpiresAt = nil
	if err := h.accounts.Save(r.Context(), acc); err != nil {
		internalError(w, r, "save account", err)
		return
	}
	models.WriteJSON(w, http.StatusOK, struct{}{})
}
