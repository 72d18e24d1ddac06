package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkhub/internal/entitlement"
	"linkhub/internal/models"
	"linkhub/internal/perm"
	"linkhub/internal/ratelimit"
	"linkhub/internal/repo"
	"linkhub/internal/secrets"
	"linkhub/internal/token"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	// ErrEndpointNotAllowed — endpoint не входит в тариф для API-ключей.
	ErrEndpointNotAllowed = errors.New("endpoint not allowed for tier")
)

// TierRestrictedError — детализация ErrEndpointNotAllowed с тарифом для
// подсказки об апгрейде в теле ответа.
type TierRestrictedError struct {
	Endpoint string
	Tier     models.Tier
}

func (e *TierRestrictedError) Error() string {
	return fmt.Sprintf("endpoint %s is not available on tier %s", e.Endpoint, e.Tier)
}

func (e *TierRestrictedError) Is(target error) bool { return target == ErrEndpointNotAllowed }

// Префикс полного API-ключа: lk_<keyID>.<secret>.
const apiKeyPrefix = "lk_"

type AccountSource interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	ParentOf(ctx context.Context, subAccountID string) (*models.SubAccountRelationship, error)
}

type APIKeySource interface {
	GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error)
}

// Credential — сырой креденшел запроса после детекции типа.
type Credential struct {
	SessionToken string // access-токен из cookie сессии
	APIKey       string // полный ключ из Authorization: Bearer
}

// Principal — разрешённая личность запроса: кто, с какими правами,
// на каком эффективном тарифе.
type Principal struct {
	AccountID       string
	Role            models.Role
	IsSubAccount    bool
	ParentAccountID string

	Permissions perm.Set
	Tier        entitlement.TierResolution
	Limits      entitlement.TierLimit

	ViaAPIKey     bool
	RateRemaining int
	RateResetAt   time.Time
}

// Gate — фасад движка доступа: одна проверка на входящий запрос.
// Последовательность: детекция креденшела → TokenService.Validate или поиск
// API-ключа → PermissionResolver → карта endpoint→permission (deny по
// умолчанию) → для API-ключей RateLimiter и гейтинг endpoint'а тарифом.
// Первый отказ останавливает цепочку.
type Gate struct {
	tokens   *token.Service
	accounts AccountSource
	apiKeys  APIKeySource
	resolver *perm.Resolver
	tiers    *entitlement.TierResolver
	catalog  *entitlement.Catalog
	limiter  *ratelimit.Limiter

	// endpoint ("METHOD /path/template") → требуемое право.
	endpoints map[string]perm.PermissionID
}

func New(tokens *token.Service, accounts AccountSource, apiKeys APIKeySource,
	resolver *perm.Resolver, tiers *entitlement.TierResolver,
	catalog *entitlement.Catalog, limiter *ratelimit.Limiter,
	endpoints map[string]perm.PermissionID) *Gate {
	return &Gate{
		tokens:    tokens,
		accounts:  accounts,
		apiKeys:   apiKeys,
		resolver:  resolver,
		tiers:     tiers,
		catalog:   catalog,
		limiter:   limiter,
		endpoints: endpoints,
	}
}

// Authorize возвращает Principal либо первую ошибку цепочки.
// method+endpoint — метод и шаблон маршрута (mux path template).
func (g *Gate) Authorize(ctx context.Context, cred Credential, method, endpoint string) (*Principal, error) {
	var (
		acc       *models.Account
		viaAPIKey bool
		err       error
	)
	switch {
	case cred.SessionToken != "":
		acc, err = g.authenticateSession(ctx, cred.SessionToken)
	case cred.APIKey != "":
		acc, err = g.authenticateAPIKey(ctx, cred.APIKey)
		viaAPIKey = true
	default:
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	permissions, err := g.resolver.Resolve(acc)
	if err != nil {
		return nil, fmt.Errorf("permission resolve for %s: %w", acc.ID, err)
	}

	// Deny by default: endpoint без записи в карте закрыт для всех.
	required, mapped := g.endpoints[method+" "+endpoint]
	if !mapped || !g.resolver.AuthorizeEndpoint(permissions, required) {
		return nil, ErrForbidden
	}

	tierRes, err := g.tiers.Resolve(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("tier resolve for %s: %w", acc.ID, err)
	}
	limits, err := g.catalog.Lookup(tierRes.Tier)
	if err != nil {
		return nil, fmt.Errorf("tier limits for %s: %w", acc.ID, err)
	}

	p := &Principal{
		AccountID:    acc.ID,
		Role:         acc.Role,
		IsSubAccount: acc.IsSubAccount,
		Permissions:  permissions,
		Tier:         tierRes,
		Limits:       limits,
		ViaAPIKey:    viaAPIKey,
	}
	if tierRes.Inherited {
		p.ParentAccountID = tierRes.InheritedFrom
	}

	// UI-трафик по сессии не тарифицируется — метрим только API-ключи.
	if viaAPIKey {
		res, err := g.limiter.CheckAndIncrement(ctx, acc.ID, limits.APIRequestsPerHour)
		if err != nil {
			return nil, err
		}
		p.RateRemaining = res.Remaining
		p.RateResetAt = res.ResetAt

		if !limits.EndpointAllowed(endpoint) {
			return nil, &TierRestrictedError{Endpoint: endpoint, Tier: tierRes.Tier}
		}
	}
	return p, nil
}

func (g *Gate) authenticateSession(ctx context.Context, access string) (*models.Account, error) {
	claims, err := g.tokens.Validate(access)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	acc, err := g.accounts.Get(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return acc, nil
}

func (g *Gate) authenticateAPIKey(ctx context.Context, raw string) (*models.Account, error) {
	keyID, secret, err := parseAPIKey(raw)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	key, err := g.apiKeys.GetByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repo.ErrAPIKeyNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if key.Status != models.StatusActive {
		return nil, ErrUnauthenticated
	}
	if !secrets.VerifyAPIKeySecret(key.SecretHash, secret) {
		return nil, ErrUnauthenticated
	}
	acc, err := g.accounts.Get(ctx, key.AccountID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return acc, nil
}

// FormatAPIKey собирает полный ключ для однократного показа владельцу.
func FormatAPIKey(keyID, secret string) string {
	return apiKeyPrefix + keyID + "." + secret
}

func parseAPIKey(raw string) (keyID, secret string, err error) {
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		return "", "", fmt.Errorf("bad api key prefix")
	}
	body := strings.TrimPrefix(raw, apiKeyPrefix)
	dot := strings.IndexByte(body, '.')
	if dot <= 0 || dot == len(body)-1 {
		return "", "", fmt.Errorf("bad api key format")
	}
	return body[:dot], body[dot+1:], nil
}
