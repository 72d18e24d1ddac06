package gate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkhub/internal/entitlement"
	"linkhub/internal/gate"
	"linkhub/internal/logs"
	"linkhub/internal/models"
	"linkhub/internal/perm"
	"linkhub/internal/ratelimit"
	"linkhub/internal/repo"
	"linkhub/internal/secrets"
	"linkhub/internal/token"
)

func TestMain(m *testing.M) {
	logs.Init(logs.Options{Level: "error"})
	os.Exit(m.Run())
}

// fakeDB закрывает все источники фасада: аккаунты, связи владения, API-ключи.
type fakeDB struct {
	accounts map[string]*models.Account
	rels     map[string]*models.SubAccountRelationship
	keys     map[string]*models.APIKey // по KeyID
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		accounts: map[string]*models.Account{},
		rels:     map[string]*models.SubAccountRelationship{},
		keys:     map[string]*models.APIKey{},
	}
}

func (f *fakeDB) Get(_ context.Context, id string) (*models.Account, error) {
	if acc, ok := f.accounts[id]; ok {
		return acc, nil
	}
	return nil, repo.ErrAccountNotFound
}

func (f *fakeDB) ParentOf(_ context.Context, subID string) (*models.SubAccountRelationship, error) {
	return f.rels[subID], nil
}

func (f *fakeDB) GetByKeyID(_ context.Context, keyID string) (*models.APIKey, error) {
	if k, ok := f.keys[keyID]; ok {
		return k, nil
	}
	return nil, repo.ErrAPIKeyNotFound
}

type memRefreshStore struct {
	mu   sync.Mutex
	recs map[string]*models.RefreshToken
}

func (s *memRefreshStore) Create(_ context.Context, t *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.recs[t.TokenValue] = &cp
	return nil
}

func (s *memRefreshStore) Get(_ context.Context, value string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[value]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (s *memRefreshStore) Invalidate(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[value]
	if !ok || !rec.IsValid {
		return false, nil
	}
	rec.IsValid = false
	return true, nil
}

type fixture struct {
	db       *fakeDB
	resolver *perm.Resolver
	catalog  *entitlement.Catalog
	tokens   *token.Service
	gate     *gate.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newFakeDB()
	resolver := perm.NewResolver(perm.DefaultRoleConfig())
	catalog := entitlement.NewCatalog()
	tiers := entitlement.NewTierResolver(db, db)
	loader := gate.NewLoader(db, resolver)
	tokens := token.NewService("gate-test-secret", &memRefreshStore{recs: map[string]*models.RefreshToken{}}, loader)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())

	endpoints := map[string]perm.PermissionID{
		"GET /v1/me":       perm.ProfileRead,
		"GET /v1/links":    perm.LinksManage,
		"GET /v1/apikeys":  perm.APIKeysManage,
		"DELETE /v1/pack":  perm.BillingManage,
		"POST /v1/apikeys": perm.APIKeysManage,
	}
	g := gate.New(tokens, db, db, resolver, tiers, catalog, limiter, endpoints)
	return &fixture{db: db, resolver: resolver, catalog: catalog, tokens: tokens, gate: g}
}

func (f *fixture) addAccount(t *testing.T, acc *models.Account) {
	t.Helper()
	f.db.accounts[acc.ID] = acc
}

func (f *fixture) sessionFor(t *testing.T, acc *models.Account) string {
	t.Helper()
	set, err := f.resolver.Resolve(acc)
	require.NoError(t, err)
	access, _, err := f.tokens.IssueInitialPair(context.Background(), acc, set, "")
	require.NoError(t, err)
	return access
}

func (f *fixture) addKey(t *testing.T, accountID string) (full string) {
	t.Helper()
	keyID, secret, hash := secrets.NewAPIKey()
	f.db.keys[keyID] = &models.APIKey{
		ID: "key-" + keyID, AccountID: accountID, KeyID: keyID,
		SecretHash: hash, Status: models.StatusActive,
	}
	return gate.FormatAPIKey(keyID, secret)
}

func TestAuthorizeNoCredential(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Authorize(context.Background(), gate.Credential{}, http.MethodGet, "/v1/me")
	require.ErrorIs(t, err, gate.ErrUnauthenticated)
}

func TestAuthorizeSession(t *testing.T) {
	f := newFixture(t)
	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard, Tier: models.TierBusiness}
	f.addAccount(t, acc)
	access := f.sessionFor(t, acc)

	p, err := f.gate.Authorize(context.Background(), gate.Credential{SessionToken: access}, http.MethodGet, "/v1/me")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", p.AccountID)
	assert.Equal(t, models.TierBusiness, p.Tier.Tier)
	assert.False(t, p.ViaAPIKey)
	assert.Equal(t, 10, p.Limits.MaxPages)
}

func TestAuthorizeGarbageToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Authorize(context.Background(), gate.Credential{SessionToken: "garbage"}, http.MethodGet, "/v1/me")
	require.ErrorIs(t, err, gate.ErrUnauthenticated)
}

// Endpoint без записи в карте закрыт даже для agencyAdmin.
func TestAuthorizeUnmappedEndpoint(t *testing.T) {
	f := newFixture(t)
	acc := &models.Account{ID: "acc-1", Role: models.RoleAgencyAdmin, Tier: models.TierEnterprise}
	f.addAccount(t, acc)
	access := f.sessionFor(t, acc)

	_, err := f.gate.Authorize(context.Background(), gate.Credential{SessionToken: access}, http.MethodGet, "/v1/export")
	require.ErrorIs(t, err, gate.ErrForbidden)
}

// Суб-аккаунт не проходит на billing-операции никогда — даже с явным
// грантом billing:manage на своей записи.
func TestSubAccountBillingAlwaysForbidden(t *testing.T) {
	f := newFixture(t)

	grants, err := perm.EncodeOverrides([]perm.PermissionID{perm.BillingManage})
	require.NoError(t, err)

	parent := &models.Account{ID: "parent", Role: models.RoleAgencyAdmin, Tier: models.TierPremium}
	sub := &models.Account{
		ID: "sub-1", Role: models.RoleSubAccount, IsSubAccount: true,
		AuthDisabled: true, Tier: models.TierFree, PermissionGrants: grants,
	}
	f.addAccount(t, parent)
	f.addAccount(t, sub)
	f.db.rels["sub-1"] = &models.SubAccountRelationship{ParentAccountID: "parent", SubAccountID: "sub-1"}

	access := f.sessionFor(t, sub)
	_, err = f.gate.Authorize(context.Background(), gate.Credential{SessionToken: access}, http.MethodDelete, "/v1/pack")
	require.ErrorIs(t, err, gate.ErrForbidden)

	// контентный endpoint при этом доступен, и тариф — родительский
	p, err := f.gate.Authorize(context.Background(), gate.Credential{SessionToken: access}, http.MethodGet, "/v1/me")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, p.Tier.Tier)
	assert.True(t, p.Tier.Inherited)
	assert.Equal(t, "parent", p.ParentAccountID)
}

func TestAuthorizeAPIKey(t *testing.T) {
	f := newFixture(t)
	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard, Tier: models.TierBusiness}
	f.addAccount(t, acc)
	full := f.addKey(t, "acc-1")

	p, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: full}, http.MethodGet, "/v1/apikeys")
	require.NoError(t, err)
	assert.True(t, p.ViaAPIKey)
	assert.Equal(t, 999, p.RateRemaining, "business: 1000 в час минус этот запрос")
}

func TestAuthorizeAPIKeyRejections(t *testing.T) {
	f := newFixture(t)
	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard, Tier: models.TierBusiness}
	f.addAccount(t, acc)
	full := f.addKey(t, "acc-1")

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: full + "ff"}, http.MethodGet, "/v1/me")
		require.ErrorIs(t, err, gate.ErrUnauthenticated)
	})

	t.Run("unknown key id", func(t *testing.T) {
		_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: "lk_deadbeef0000.feedface"}, http.MethodGet, "/v1/me")
		require.ErrorIs(t, err, gate.ErrUnauthenticated)
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: "sk_not_ours"}, http.MethodGet, "/v1/me")
		require.ErrorIs(t, err, gate.ErrUnauthenticated)
	})

	t.Run("disabled key", func(t *testing.T) {
		for _, k := range f.db.keys {
			k.Status = models.StatusDisabled
			k.StatusReason = models.ReasonTierDowngrade
		}
		_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: full}, http.MethodGet, "/v1/me")
		require.ErrorIs(t, err, gate.ErrUnauthenticated)
	})
}

// Тариф starter не включает /v1/apikeys для API-ключей: права есть,
// а endpoint закрыт тарифом.
func TestAPIKeyEndpointGatedByTier(t *testing.T) {
	f := newFixture(t)
	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard, Tier: models.TierStarter}
	f.addAccount(t, acc)
	full := f.addKey(t, "acc-1")

	_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: full}, http.MethodGet, "/v1/apikeys")
	require.ErrorIs(t, err, gate.ErrEndpointNotAllowed)

	var tierErr *gate.TierRestrictedError
	require.True(t, errors.As(err, &tierErr))
	assert.Equal(t, models.TierStarter, tierErr.Tier)

	// тот же ключ на разрешённом endpoint'е проходит
	_, err = f.gate.Authorize(context.Background(), gate.Credential{APIKey: full}, http.MethodGet, "/v1/me")
	require.NoError(t, err)
}

func TestAPIKeyRateLimited(t *testing.T) {
	f := newFixture(t)

	// дешёвый тариф из файла переопределений, чтобы не крутить сотню argon2
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	yaml := `tiers:
  trial:
    max_pages: 1
    max_links: 5
    api_requests_per_hour: 3
    allowed_endpoints: ["/v1/me"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	require.NoError(t, f.catalog.Reload(path))

	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard, Tier: models.Tier("trial")}
	f.addAccount(t, acc)
	full := f.addKey(t, "acc-1")

	for i := 0; i < 3; i++ {
		_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: full}, http.MethodGet, "/v1/me")
		require.NoError(t, err)
	}

	_, err := f.gate.Authorize(context.Background(), gate.Credential{APIKey: full}, http.MethodGet, "/v1/me")
	require.Error(t, err)
	var rateErr *ratelimit.Error
	require.True(t, errors.As(err, &rateErr))
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))

	// сессионный трафик того же аккаунта не тарифицируется
	access := f.sessionFor(t, acc)
	_, err = f.gate.Authorize(context.Background(), gate.Credential{SessionToken: access}, http.MethodGet, "/v1/me")
	require.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard, Tier: models.TierBusiness}
	f.addAccount(t, acc)

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(f.gate.Middleware("lh_session"))
	v1.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		p := gate.PrincipalFrom(r.Context())
		require.NotNil(t, p)
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	t.Run("no credential -> 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "unauthenticated")
	})

	t.Run("session cookie -> 200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: "lh_session", Value: f.sessionFor(t, acc)})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("api key -> 200 + remaining header", func(t *testing.T) {
		full := f.addKey(t, "acc-1")
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+full)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	})
}
