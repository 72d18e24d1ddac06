package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"linkhub/internal/cleanup"
	"linkhub/internal/models"
	"linkhub/internal/repo"
)

// CleanupHandler — /internal/cleanup/*: запуск планового sweep'а внешним
// планировщиком и чтение аудита.
type CleanupHandler struct {
	orchestrator *cleanup.Orchestrator
	audits       *repo.AuditStore
}

func NewCleanupHandler(orchestrator *cleanup.Orchestrator, audits *repo.AuditStore) *CleanupHandler {
	return &CleanupHandler{orchestrator: orchestrator, audits: audits}
}

func (h *CleanupHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.orchestrator.RunScheduledCleanup(r.Context())
	if err != nil {
		internalError(w, r, "scheduled cleanup", err)
		return
	}
	models.WriteJSON(w, http.StatusOK, res)
}

func (h *CleanupHandler) Audits(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	audits, err := h.audits.ListForAccount(r.Context(), accountID, 50)
	if err != nil {
		internalError(w, r, "list audits", err)
		return
	}
	models.WriteJSON(w, http.StatusOK, audits)
}
