package handlers

import (
	"net/http"

	"linkhub/internal/entitlement"
	"linkhub/internal/gate"
	"linkhub/internal/models"
)

type meResponse struct {
	AccountID       string                `json:"account_id"`
	Role            string                `json:"role"`
	IsSubAccount    bool                  `json:"is_sub_account"`
	ParentAccountID string                `json:"parent_account_id,omitempty"`
	Tier            string                `json:"tier"`
	TierInherited   bool                  `json:"tier_inherited"`
	Permissions     []string              `json:"permissions"`
	Limits          entitlement.TierLimit `json:"limits"`
}

// Me возвращает разрешённый Principal запроса — полный read-путь движка.
func Me(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())
	models.WriteJSON(w, http.StatusOK, meResponse{
		AccountID:       p.AccountID,
		Role:            string(p.Role),
		IsSubAccount:    p.IsSubAccount,
		ParentAccountID: p.ParentAccountID,
		Tier:            string(p.Tier.Tier),
		TierInherited:   p.Tier.Inherited,
		Permissions:     p.Permissions.List(),
		Limits:          p.Limits,
	})
}
