package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkhub/internal/models"
	"linkhub/internal/perm"
	"linkhub/internal/token"
)

// In-memory RefreshStore с условной инвалидацией — та же CAS-гарантия,
// что у SQL-версии (UPDATE ... WHERE is_valid = true).
type memRefreshStore struct {
	mu   sync.Mutex
	recs map[string]*models.RefreshToken
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{recs: map[string]*models.RefreshToken{}}
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
	rec, ok := s.recs[value]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
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

type stubLoader struct {
	acc *models.Account
	set perm.Set
}

func (l *stubLoader) LoadPrincipal(_ context.Context, _ string) (*models.Account, perm.Set, string, error) {
	return l.acc, l.set, "", nil
}

func newService(store token.RefreshStore) (*token.Service, *models.Account) {
	acc := &models.Account{ID: "acc-1", Role: models.RoleStandard}
	loader := &stubLoader{acc: acc, set: perm.NewSet(perm.ProfileRead, perm.LinksManage)}
	return token.NewService("unit-test-secret", store, loader), acc
}

func TestIssueInitialPair(t *testing.T) {
	store := newMemRefreshStore()
	svc, acc := newService(store)

	access, refresh, err := svc.IssueInitialPair(context.Background(), acc, perm.NewSet(perm.ProfileRead), "")
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.Len(t, refresh, 64)

	claims, err := svc.Validate(access)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, string(models.RoleStandard), claims.Role)
	assert.Equal(t, []string{"profile:read"}, claims.Permissions)

	// срок жизни access-токена ровно AccessTokenTTL
	ttl := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	assert.Equal(t, token.AccessTokenTTL, ttl)

	rec, err := store.Get(context.Background(), refresh)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsValid)
	assert.Equal(t, token.RefreshTokenTTL, rec.ExpiresAt.Sub(rec.IssuedAt))
}

func TestRotateInvalidatesPresented(t *testing.T) {
	store := newMemRefreshStore()
	svc, acc := newService(store)

	_, refresh, err := svc.IssueInitialPair(context.Background(), acc, perm.NewSet(), "")
	require.NoError(t, err)

	access2, refresh2, err := svc.Rotate(context.Background(), refresh)
	require.NoError(t, err)
	require.NotEmpty(t, access2)
	require.NotEqual(t, refresh, refresh2)

	// повтор уже ротированного токена всегда проигрывает
	_, _, err = svc.Rotate(context.Background(), refresh)
	require.ErrorIs(t, err, token.ErrTokenRevoked)

	// новый токен при этом работает
	_, _, err = svc.Rotate(context.Background(), refresh2)
	require.NoError(t, err)
}

func TestRotateUnknownToken(t *testing.T) {
	svc, _ := newService(newMemRefreshStore())

	_, _, err := svc.Rotate(context.Background(), "never-issued")
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestRotateExpiredToken(t *testing.T) {
	store := newMemRefreshStore()
	svc, _ := newService(store)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Create(context.Background(), &models.RefreshToken{
		TokenValue: "expired-token",
		AccountID:  "acc-1",
		IssuedAt:   past.Add(-token.RefreshTokenTTL),
		ExpiresAt:  past,
		IsValid:    true,
	}))

	_, _, err := svc.Rotate(context.Background(), "expired-token")
	require.ErrorIs(t, err, token.ErrTokenExpired)
}

// Конкурентные дубли одного refresh-запроса: ровно один побеждает,
// остальные получают ErrTokenRevoked.
func TestRotateConcurrent(t *testing.T) {
	store := newMemRefreshStore()
	svc, acc := newService(store)

	_, refresh, err := svc.IssueInitialPair(context.Background(), acc, perm.NewSet(), "")
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Rotate(context.Background(), refresh)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, token.ErrTokenRevoked)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRevokeIdempotent(t *testing.T) {
	store := newMemRefreshStore()
	svc, acc := newService(store)

	_, refresh, err := svc.IssueInitialPair(context.Background(), acc, perm.NewSet(), "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), refresh))
	require.NoError(t, svc.Revoke(context.Background(), refresh))
	require.NoError(t, svc.Revoke(context.Background(), "never-issued"))

	_, _, err = svc.Rotate(context.Background(), refresh)
	require.ErrorIs(t, err, token.ErrTokenRevoked)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	svc, acc := newService(newMemRefreshStore())

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.Validate("not-a-jwt")
		require.ErrorIs(t, err, token.ErrTokenMalformed)
	})

	t.Run("wrong signature", func(t *testing.T) {
		other := token.NewService("another-secret", newMemRefreshStore(), &stubLoader{acc: acc, set: perm.NewSet()})
		access, _, err := other.IssueInitialPair(context.Background(), acc, perm.NewSet(), "")
		require.NoError(t, err)

		_, err = svc.Validate(access)
		require.ErrorIs(t, err, token.ErrSignatureInvalid)
	})
}
