package perm

import "linkhub/internal/models"

// RoleConfig — неизменяемая таблица прав по умолчанию и маска суб-аккаунта.
// Собирается один раз на старте и инжектируется в Resolver; обновление —
// только заменой всей структуры (Reload со сменой версии), не мутацией.
type RoleConfig struct {
	defaults map[models.Role]Set
	subMask  Set
	version  int
}

// DefaultRoleConfig строит таблицу версии 1.
func DefaultRoleConfig() *RoleConfig {
	content := []PermissionID{
		ProfileRead, ProfileWrite,
		PagesManage, LinksManage, AppearanceManage,
		AnalyticsRead,
	}

	standard := NewSet(content...)
	standard.Add(APIKeysManage)
	standard.Add(BillingManage)

	agency := standard.Clone()
	agency.Add(UsersManage)
	agency.Add(SubAccountsManage)

	// Маска суб-аккаунта: только контент. Никакие гранты не добавят
	// auth/billing/users/subaccounts поверх неё.
	mask := NewSet(content...)

	return &RoleConfig{
		defaults: map[models.Role]Set{
			models.RoleStandard:    standard,
			models.RoleAgencyAdmin: agency,
			models.RoleSubAccount:  mask.Clone(),
		},
		subMask: mask,
		version: 1,
	}
}

// DefaultsFor возвращает копию прав по умолчанию для роли
// (пустое множество для неизвестной роли — deny by default).
func (c *RoleConfig) DefaultsFor(role models.Role) Set {
	if d, ok := c.defaults[role]; ok {
		return d.Clone()
	}
	return NewSet()
}

// SubAccountMask возвращает фиксированную маску возможностей суб-аккаунта.
func (c *RoleConfig) SubAccountMask() Set { return c.subMask }

func (c *RoleConfig) Version() int { return c.version }
