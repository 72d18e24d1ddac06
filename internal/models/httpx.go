package models

import (
	"encoding/json"
	"net/http"
)

// ErrorBody — единый формат тела ошибки движка доступа.
type ErrorBody struct {
	Error           string `json:"error"`
	CurrentTier     string `json:"current_tier,omitempty"`
	UpgradeRequired bool   `json:"upgrade_required,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteTierError — ошибка, устранимая апгрейдом тарифа (quota/tier-gated endpoint).
func WriteTierError(w http.ResponseWriter, status int, msg string, currentTier Tier) {
	WriteJSON(w, status, ErrorBody{
		Error:           msg,
		CurrentTier:     string(currentTier),
		UpgradeRequired: true,
	})
}
