package entitlement_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkhub/internal/entitlement"
	"linkhub/internal/models"
)

func TestCatalogLookup(t *testing.T) {
	c := entitlement.NewCatalog()

	free, err := c.Lookup(models.TierFree)
	require.NoError(t, err)
	assert.Equal(t, 1, free.MaxPages)
	assert.Equal(t, 10, free.MaxLinks)
	assert.Equal(t, 0, free.MaxAPIKeys)
	assert.False(t, free.CustomThemesAllowed)

	ent, err := c.Lookup(models.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, -1, ent.MaxPages)
	assert.Equal(t, -1, ent.APIRequestsPerHour)
	assert.True(t, ent.VideoBackgroundAllowed)
}

func TestCatalogUnknownTier(t *testing.T) {
	c := entitlement.NewCatalog()
	_, err := c.Lookup(models.Tier("platinum"))
	require.ErrorIs(t, err, entitlement.ErrUnknownTier)
}

func TestEndpointAllowed(t *testing.T) {
	c := entitlement.NewCatalog()

	starter, err := c.Lookup(models.TierStarter)
	require.NoError(t, err)
	assert.True(t, starter.EndpointAllowed("/v1/me"))
	assert.False(t, starter.EndpointAllowed("/v1/apikeys"))

	business, err := c.Lookup(models.TierBusiness)
	require.NoError(t, err)
	assert.True(t, business.EndpointAllowed("/v1/apikeys"))
}

// Reload подменяет таблицу атомарно: переопределённый тариф берётся из файла
// целиком, остальные остаются встроенными, версия растёт.
func TestCatalogReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	yaml := `tiers:
  business:
    max_pages: 20
    max_links: 500
    max_api_keys: 5
    api_requests_per_hour: 2000
    custom_themes_allowed: true
    allowed_endpoints: ["/v1/me"]
  legacy:
    max_pages: 2
    max_links: 20
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	c := entitlement.NewCatalog()
	require.Equal(t, 1, c.Version())
	require.NoError(t, c.Reload(path))
	assert.Equal(t, 2, c.Version())

	business, err := c.Lookup(models.TierBusiness)
	require.NoError(t, err)
	assert.Equal(t, 20, business.MaxPages)
	assert.Equal(t, 2000, business.APIRequestsPerHour)
	// запись заменяет тариф целиком: пропущенное в файле поле обнуляется
	assert.Zero(t, business.AnalyticsRetentionDays)
	assert.Equal(t, []string{"/v1/me"}, business.AllowedEndpoints)

	// новый тариф — чистое изменение данных
	legacy, err := c.Lookup(models.Tier("legacy"))
	require.NoError(t, err)
	assert.Equal(t, 2, legacy.MaxPages)

	// не переопределённые тарифы не тронуты
	free, err := c.Lookup(models.TierFree)
	require.NoError(t, err)
	assert.Equal(t, 1, free.MaxPages)
}

func TestCheckQuota(t *testing.T) {
	limit := entitlement.TierLimit{MaxPages: 3, MaxLinks: -1, MaxAPIKeys: 0}

	t.Run("within limit", func(t *testing.T) {
		assert.NoError(t, entitlement.CheckQuota(limit, models.TierStarter, entitlement.ResourcePages, 3))
	})

	t.Run("unlimited", func(t *testing.T) {
		assert.NoError(t, entitlement.CheckQuota(limit, models.TierStarter, entitlement.ResourceLinks, 100000))
	})

	t.Run("exceeded", func(t *testing.T) {
		err := entitlement.CheckQuota(limit, models.TierStarter, entitlement.ResourcePages, 4)
		require.Error(t, err)

		var quotaErr *entitlement.QuotaError
		require.True(t, errors.As(err, &quotaErr))
		assert.Equal(t, entitlement.ResourcePages, quotaErr.Kind)
		assert.Equal(t, 4, quotaErr.Current)
		assert.Equal(t, 3, quotaErr.Limit)
		assert.Equal(t, models.TierStarter, quotaErr.Tier)
	})

	t.Run("zero limit blocks first resource", func(t *testing.T) {
		err := entitlement.CheckQuota(limit, models.TierFree, entitlement.ResourceAPIKeys, 1)
		require.Error(t, err)
	})
}
