package entitlement

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"linkhub/internal/models"
)

// ErrUnknownTier — тариф отсутствует в таблице. Это ошибка конфигурации
// (fatal, наружу уходит как generic 500), а не ошибка пользователя.
var ErrUnknownTier = errors.New("unknown tier")

// TierLimit — лимиты одного тарифа. Значение -1 = без ограничений.
// AllowedEndpoints имеет смысл только для вызовов по API-ключу.
type TierLimit struct {
	MaxPages               int      `mapstructure:"max_pages" json:"max_pages"`
	MaxLinks               int      `mapstructure:"max_links" json:"max_links"`
	MaxAPIKeys             int      `mapstructure:"max_api_keys" json:"max_api_keys"`
	AnalyticsRetentionDays int      `mapstructure:"analytics_retention_days" json:"analytics_retention_days"`
	CustomThemesAllowed    bool     `mapstructure:"custom_themes_allowed" json:"custom_themes_allowed"`
	VideoBackgroundAllowed bool     `mapstructure:"video_background_allowed" json:"video_background_allowed"`
	APIRequestsPerHour     int      `mapstructure:"api_requests_per_hour" json:"api_requests_per_hour"`
	AllowedEndpoints       []string `mapstructure:"allowed_endpoints" json:"allowed_endpoints,omitempty"`
}

// EndpointAllowed — шаблон маршрута должен быть явно перечислен для тарифа.
func (l TierLimit) EndpointAllowed(endpoint string) bool {
	for _, e := range l.AllowedEndpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}

// Catalog — таблица тариф → лимиты. Статическая, но перезагружаемая:
// Reload подменяет всю таблицу целиком и повышает версию, in-place мутаций нет.
type Catalog struct {
	mu      sync.RWMutex
	limits  map[models.Tier]TierLimit
	version int
}

const (
	endpointMe       = "/v1/me"
	endpointLinks    = "/v1/links"
	endpointPages    = "/v1/pages"
	endpointAPIKeys  = "/v1/apikeys"
	endpointAPIKeyID = "/v1/apikeys/{id}"
)

var builtinLimits = map[models.Tier]TierLimit{
	models.TierFree: {
		MaxPages: 1, MaxLinks: 10, MaxAPIKeys: 0,
		AnalyticsRetentionDays: 7,
		APIRequestsPerHour:     0,
	},
	models.TierStarter: {
		MaxPages: 3, MaxLinks: 50, MaxAPIKeys: 1,
		AnalyticsRetentionDays: 30,
		APIRequestsPerHour:     100,
		AllowedEndpoints:       []string{endpointMe, endpointLinks, endpointPages},
	},
	models.TierBusiness: {
		MaxPages: 10, MaxLinks: 500, MaxAPIKeys: 5,
		AnalyticsRetentionDays: 180,
		CustomThemesAllowed:    true,
		APIRequestsPerHour:     1000,
		AllowedEndpoints:       []string{endpointMe, endpointLinks, endpointPages, endpointAPIKeys, endpointAPIKeyID},
	},
	models.TierPremium: {
		MaxPages: 50, MaxLinks: -1, MaxAPIKeys: 20,
		AnalyticsRetentionDays: 365,
		CustomThemesAllowed:    true,
		VideoBackgroundAllowed: true,
		APIRequestsPerHour:     10000,
		AllowedEndpoints:       []string{endpointMe, endpointLinks, endpointPages, endpointAPIKeys, endpointAPIKeyID},
	},
	models.TierEnterprise: {
		MaxPages: -1, MaxLinks: -1, MaxAPIKeys: -1,
		AnalyticsRetentionDays: 730,
		CustomThemesAllowed:    true,
		VideoBackgroundAllowed: true,
		APIRequestsPerHour:     -1,
		AllowedEndpoints:       []string{endpointMe, endpointLinks, endpointPages, endpointAPIKeys, endpointAPIKeyID},
	},
}

// NewCatalog возвращает каталог со встроенной таблицей (версия 1).
func NewCatalog() *Catalog {
	limits := make(map[models.Tier]TierLimit, len(builtinLimits))
	for t, l := range builtinLimits {
		limits[t] = l
	}
	return &Catalog{limits: limits, version: 1}
}

// Reload читает yaml-файл с переопределениями лимитов и атомарно подменяет
// таблицу. Запись из файла заменяет тариф целиком, слияния со встроенной
// таблицей нет: перечисляйте все поля, пропущенные обнуляются. Новый
// тариф — изменение данных, не кода.
//
//	tiers:
//	  business:
//	    max_pages: 20
//	    max_links: 500
//	    max_api_keys: 5
//	    analytics_retention_days: 180
//	    custom_themes_allowed: true
//	    api_requests_per_hour: 1000
//	    allowed_endpoints: ["/v1/me", "/v1/links", "/v1/pages", "/v1/apikeys", "/v1/apikeys/{id}"]
func (c *Catalog) Reload(path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("tiers file read error: %w", err)
	}
	var raw struct {
		Tiers map[string]TierLimit `mapstructure:"tiers"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return fmt.Errorf("tiers file unmarshal error: %w", err)
	}

	next := make(map[models.Tier]TierLimit, len(builtinLimits)+len(raw.Tiers))
	for t, l := range builtinLimits {
		next[t] = l
	}
	for name, l := range raw.Tiers {
		next[models.Tier(name)] = l
	}

	c.mu.Lock()
	c.limits = next
	c.version++
	c.mu.Unlock()
	return nil
}

// Lookup возвращает лимиты тарифа.
func (c *Catalog) Lookup(tier models.Tier) (TierLimit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.limits[tier]
	if !ok {
		return TierLimit{}, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return l, nil
}

func (c *Catalog) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
