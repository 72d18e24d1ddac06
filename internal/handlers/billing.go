package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"linkhub/internal/cleanup"
	"linkhub/internal/entitlement"
	"linkhub/internal/models"
	"linkhub/internal/repo"
)

// BillingHandler — входящий интерфейс биллинга (вызывается обработчиком
// webhook'ов платёжного провайдера, сам провайдер вне этого сервиса).
type BillingHandler struct {
	orchestrator *cleanup.Orchestrator
}

func NewBillingHandler(orchestrator *cleanup.Orchestrator) *BillingHandler {
	return &BillingHandler{orchestrator: orchestrator}
}

type subscriptionChangedRequest struct {
	AccountID string `json:"account_id"`
	NewTier   string `json:"new_tier"`
	Reason    string `json:"reason"`
}

func (h *BillingHandler) SubscriptionChanged(w http.ResponseWriter, r *http.Request) {
	var req subscriptionChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" || req.NewTier == "" {
		models.WriteError(w, http.StatusBadRequest, "account_id and new_tier are required")
		return
	}
	if req.Reason == "" {
		req.Reason = "unspecified"
	}

	err := h.orchestrator.HandleSubscriptionChange(r.Context(), req.AccountID, models.Tier(req.NewTier), req.Reason)
	switch {
	case err == nil:
		models.WriteJSON(w, http.StatusAccepted, struct{}{})
	case errors.Is(err, entitlement.ErrUnknownTier):
		models.WriteError(w, http.StatusBadRequest, "unknown tier")
	case errors.Is(err, repo.ErrAccountNotFound):
		models.WriteError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, cleanup.ErrSubAccountTarget):
		models.WriteError(w, http.StatusConflict, "subscription events are not applicable to sub-accounts")
	default:
		internalError(w, r, "subscription change", err)
	}
}
