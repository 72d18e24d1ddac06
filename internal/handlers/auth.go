package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkhub/internal/models"
	"linkhub/internal/perm"
	"linkhub/internal/repo"
	"linkhub/internal/secrets"
	"linkhub/internal/token"
)

// Контракты потребителя (реализуются пакетом repo).
type AccountAuthRepo interface {
	Create(ctx context.Context, acc *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type SignupContentRepo interface {
	CreatePage(ctx context.Context, p *models.Page) error
	SaveAppearance(ctx context.Context, a *models.Appearance) error
}

// AuthHandler — /auth/*: signup, login, refresh, logout.
type AuthHandler struct {
	accounts AccountAuthRepo
	content  SignupContentRepo
	tokens   *token.Service
	resolver *perm.Resolver

	cookieName string
}

func NewAuthHandler(accounts AccountAuthRepo, content SignupContentRepo, tokens *token.Service, resolver *perm.Resolver, cookieName string) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		content:    content,
		tokens:     tokens,
		resolver:   resolver,
		cookieName: cookieName,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	Principal    *principalBody `json:"principal,omitempty"`
}

type principalBody struct {
	AccountID   string   `json:"account_id"`
	Role        string   `json:"role"`
	Tier        string   `json:"tier"`
	Permissions []string `json:"permissions"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		models.WriteError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		models.WriteError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	acc := &models.Account{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		PasswordHash:       secrets.HashPassword(req.Password),
		Role:               models.RoleStandard,
		Tier:               models.TierFree,
		SubscriptionStatus: models.SubscriptionActive,
		PackType:           models.PackNone,
	}
	if err := h.accounts.Create(r.Context(), acc); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			models.WriteError(w, http.StatusConflict, "email already registered")
			return
		}
		internalError(w, r, "signup", err)
		return
	}

	// Стартовый контент: default-страница и базовое оформление.
	// Default-страница — якорь cleanup'а; аккаунт без неё не отдаём.
	now := time.Now().UTC()
	if err := h.content.CreatePage(r.Context(), &models.Page{
		ID:        uuid.NewString(),
		AccountID: acc.ID,
		Slug:      "home",
		Title:     "Home",
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		internalError(w, r, "signup default page", err)
		return
	}
	if err := h.content.SaveAppearance(r.Context(), &models.Appearance{
		AccountID:      acc.ID,
		ThemeID:        models.ThemeDefault,
		BackgroundFill: models.BackgroundFillFlat,
	}); err != nil {
		internalError(w, r, "signup appearance", err)
		return
	}

	h.issuePair(w, r, acc, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	acc, err := h.accounts.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			models.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		internalError(w, r, "login", err)
		return
	}
	// суб-аккаунты не имеют собственного входа
	if acc.AuthDisabled {
		models.WriteError(w, http.StatusUnauthorized, "authentication disabled for this account")
		return
	}
	if !secrets.VerifyPassword(acc.PasswordHash, req.Password) {
		models.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issuePair(w, r, acc, http.StatusOK)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		models.WriteError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, refresh, err := h.tokens.Rotate(r.Context(), req.RefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrTokenExpired):
		models.WriteError(w, http.StatusUnauthorized, "refresh token expired")
		return
	case errors.Is(err, token.ErrTokenInvalid), errors.Is(err, token.ErrTokenRevoked):
		models.WriteError(w, http.StatusUnauthorized, "refresh token invalid")
		return
	default:
		internalError(w, r, "refresh", err)
		return
	}

	h.setSessionCookie(w, access)
	models.WriteJSON(w, http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

// Logout идемпотентен: отзыв уже недействительного токена — не ошибка.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		if err := h.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
			internalError(w, r, "logout", err)
			return
		}
	}
	h.clearSessionCookie(w)
	models.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *AuthHandler) issuePair(w http.ResponseWriter, r *http.Request, acc *models.Account, status int) {
	permissions, err := h.resolver.Resolve(acc)
	if err != nil {
		internalError(w, r, "resolve permissions", err)
		return
	}
	access, refresh, err := h.tokens.IssueInitialPair(r.Context(), acc, permissions, "")
	if err != nil {
		internalError(w, r, "issue tokens", err)
		return
	}

	h.setSessionCookie(w, access)
	models.WriteJSON(w, status, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Principal: &principalBody{
			AccountID:   acc.ID,
			Role:        string(acc.Role),
			Tier:        string(acc.Tier),
			Permissions: permissions.List(),
		},
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, access string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    access,
		Path:     "/",
		MaxAge:   int(token.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
