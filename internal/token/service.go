package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkhub/internal/models"
	"linkhub/internal/perm"
	"linkhub/internal/secrets"
)

// Времена жизни фиксированы дизайном: короткий самодостаточный access-токен
// ограничивает ущерб от кражи 15 минутами, отзыв сессии — через refresh.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrTokenInvalid     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenMalformed   = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// Claims — полезная нагрузка access-токена. Токен самодостаточен:
// Validate не ходит в хранилище.
type Claims struct {
	AccountID       string   `json:"account_id"`
	Role            string   `json:"role"`
	Permissions     []string `json:"permissions"`
	ParentAccountID string   `json:"parent_account_id,omitempty"`
	jwt.RegisteredClaims
}

// RefreshStore — контракт хранилища refresh-токенов.
// Invalidate обязан быть условной записью (is_valid true→false):
// при конкурентной ротации одного токена ровно один вызов вернёт true.
type RefreshStore interface {
	Create(ctx context.Context, t *models.RefreshToken) error
	Get(ctx context.Context, tokenValue string) (*models.RefreshToken, error)
	Invalidate(ctx context.Context, tokenValue string) (bool, error)
}

// PrincipalLoader отдаёт актуальные права аккаунта для перевыпуска
// access-токена при ротации.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, accountID string) (*models.Account, perm.Set, string, error)
}

// Service выпускает, проверяет и ротирует пары access/refresh.
type Service struct {
	secret     []byte
	store      RefreshStore
	principals PrincipalLoader
	now        func() time.Time
}

func NewService(secret string, store RefreshStore, principals PrincipalLoader) *Service {
	return &Service{
		secret:     []byte(secret),
		store:      store,
		principals: principals,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueInitialPair выпускает пару токенов для аккаунта (login/signup).
func (s *Service) IssueInitialPair(ctx context.Context, acc *models.Account, permissions perm.Set, parentID string) (access, refresh string, err error) {
	access, err = s.mintAccess(acc, permissions, parentID)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.mintRefresh(ctx, acc.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Rotate инвалидирует предъявленный refresh-токен и выпускает новую пару.
// Условная запись в store — ключевая гарантия: повтор уже ротированного
// токена всегда проигрывает, в том числе при конкурентных дублях.
func (s *Service) Rotate(ctx context.Context, presented string) (access, refresh string, err error) {
	rec, err := s.store.Get(ctx, presented)
	if err != nil {
		return "", "", fmt.Errorf("refresh lookup: %w", err)
	}
	if rec == nil {
		return "", "", ErrTokenInvalid
	}
	if !rec.IsValid {
		return "", "", ErrTokenRevoked
	}
	if s.now().After(rec.ExpiresAt) {
		return "", "", ErrTokenExpired
	}

	ok, err := s.store.Invalidate(ctx, presented)
	if err != nil {
		return "", "", fmt.Errorf("refresh invalidate: %w", err)
	}
	if !ok {
		// проигравший конкурентной ротации
		return "", "", ErrTokenRevoked
	}

	acc, permissions, parentID, err := s.principals.LoadPrincipal(ctx, rec.AccountID)
	if err != nil {
		return "", "", fmt.Errorf("principal load: %w", err)
	}

	access, err = s.mintAccess(acc, permissions, parentID)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.mintRefresh(ctx, rec.AccountID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Validate — stateless-проверка access-токена, хранилище не трогаем.
func (s *Service) Validate(access string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(access, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignatureInvalid
	default:
		return nil, ErrTokenMalformed
	}
}

// Revoke помечает refresh-токен недействительным; повторный отзыв — no-op.
func (s *Service) Revoke(ctx context.Context, refresh string) error {
	_, err := s.store.Invalidate(ctx, refresh)
	return err
}

func (s *Service) mintAccess(acc *models.Account, permissions perm.Set, parentID string) (string, error) {
	now := s.now()
	claims := &Claims{
		AccountID:       acc.ID,
		Role:            string(acc.Role),
		Permissions:     permissions.List(),
		ParentAccountID: parentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (s *Service) mintRefresh(ctx context.Context, accountID string) (string, error) {
	now := s.now()
	rec := &models.RefreshToken{
		TokenValue: secrets.NewRefreshTokenValue(),
		AccountID:  accountID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(RefreshTokenTTL),
		IsValid:    true,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("persist refresh token: %w", err)
	}
	return rec.TokenValue, nil
}
