package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role — роль аккаунта.
type Role string

const (
	RoleStandard    Role = "standard"
	RoleAgencyAdmin Role = "agencyAdmin"
	RoleSubAccount  Role = "subAccount"
)

// Tier — уровень подписки.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierBusiness   Tier = "business"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

var tierRanks = map[Tier]int{
	TierFree:       0,
	TierStarter:    1,
	TierBusiness:   2,
	TierPremium:    3,
	TierEnterprise: 4,
}

// TierRank возвращает порядковый номер тарифа (для сравнения up/downgrade).
// Неизвестный тариф получает -1 и сравнивается ниже любого известного.
func TierRank(t Tier) int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

type PackType string

const (
	PackNone   PackType = "none"
	PackAgency PackType = "agency"
)

// Account — аккаунт и состояние его подписки.
// Инвариант: IsSubAccount=true ⇒ AuthDisabled=true, Role=subAccount, PackType=none.
// Родительские аккаунты никогда не удаляются физически; суб-аккаунты — удаляются
// при явном удалении владельцем.
type Account struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash []byte `gorm:"type:varbinary(64)"`

	Role         Role `gorm:"size:32;not null"`
	IsSubAccount bool `gorm:"not null;default:false"`
	AuthDisabled bool `gorm:"not null;default:false"`

	Tier               Tier               `gorm:"size:32;not null"`
	SubscriptionStatus SubscriptionStatus `gorm:"size:32;not null"`

	PackType      PackType `gorm:"size:32;not null;default:none"`
	PackLimit     int      `gorm:"not null;default:0"` // -1 = без ограничений
	PackExpiresAt *time.Time

	// Явные переопределения прав: JSON-массивы строк permission id.
	PermissionGrants      datatypes.JSON `gorm:"type:jsonb"`
	PermissionRevocations datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionLapsed — подписка платного родительского аккаунта истекла
// или приостановлена. Истечение пака сюда не входит: пак и подписка
// независимы.
func (a *Account) SubscriptionLapsed() bool {
	if a.IsSubAccount || a.Tier == TierFree {
		return false
	}
	return a.SubscriptionStatus == SubscriptionSuspended || a.SubscriptionStatus == SubscriptionExpired
}

type RelationshipStatus string

const (
	RelationshipActive    RelationshipStatus = "active"
	RelationshipSuspended RelationshipStatus = "suspended"
)

// SubAccountRelationship — ребро владения parent → sub.
// У суб-аккаунта ровно одна родительская связь (uniqueIndex по SubAccountID).
type SubAccountRelationship struct {
	ID              uint               `gorm:"primaryKey"`
	ParentAccountID string             `gorm:"size:36;not null;index"`
	SubAccountID    string             `gorm:"size:36;not null;uniqueIndex"`
	Type            string             `gorm:"size:64"`
	Status          RelationshipStatus `gorm:"size:32;not null;default:active"`
	CreatedAt       time.Time
}
