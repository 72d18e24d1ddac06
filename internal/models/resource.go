package models

import "time"

// ResourceStatus — статус мягкого отключения ресурса.
// API-ключи: active|disabled; ссылки: active|inactive.
type ResourceStatus string

const (
	StatusActive   ResourceStatus = "active"
	StatusDisabled ResourceStatus = "disabled"
	StatusInactive ResourceStatus = "inactive"
)

// Причины отключения; восстановление при апгрейде применимо только к tier downgrade.
const (
	ReasonTierDowngrade  = "tier downgrade"
	ReasonRevokedByOwner = "revoked by owner"
)

// Page — страница профиля. Страница с IsDefault=true не удаляется никогда.
type Page struct {
	ID        string `gorm:"primaryKey;size:36"`
	AccountID string `gorm:"size:36;not null;index"`
	Slug      string `gorm:"size:255"`
	Title     string `gorm:"size:255"`
	IsDefault bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Link — ссылка на странице. Лишние при downgrade помечаются inactive
// (по убыванию DisplayOrder — ранние остаются активными), не удаляются.
type Link struct {
	ID           string `gorm:"primaryKey;size:36"`
	AccountID    string `gorm:"size:36;not null;index"`
	PageID       string `gorm:"size:36;index"`
	Title        string `gorm:"size:255"`
	URL          string `gorm:"size:2048"`
	DisplayOrder int    `gorm:"not null;index"`

	Status          ResourceStatus `gorm:"size:32;not null;default:active"`
	StatusReason    string         `gorm:"size:255"`
	StatusChangedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey — ключ программного доступа. Секрет хранится только как argon2-хэш.
// Лишние при downgrade отключаются (не удаляются) с записанной причиной.
type APIKey struct {
	ID         string `gorm:"primaryKey;size:36"`
	AccountID  string `gorm:"size:36;not null;index"`
	KeyID      string `gorm:"uniqueIndex;size:16;not null"`
	SecretHash []byte `gorm:"type:varbinary(64);not null"`
	Name       string `gorm:"size:255"`

	Status          ResourceStatus `gorm:"size:32;not null;default:active"`
	StatusReason    string         `gorm:"size:255"`
	StatusChangedAt *time.Time

	CreatedAt time.Time
}

// Базовые значения оформления, к которым откатывает cleanup.
const (
	ThemeDefault       = "default"
	BackgroundFillFlat = "flat"
)

// Appearance — оформление профиля (одна запись на аккаунт).
type Appearance struct {
	AccountID string `gorm:"primaryKey;size:36"`

	ThemeID            string `gorm:"size:64;not null;default:default"`
	BackgroundFill     string `gorm:"size:32;not null;default:flat"` // flat|gradient|video
	BackgroundColor    string `gorm:"size:32"`
	BackgroundGradient string `gorm:"size:255"`
	BackgroundVideoURL string `gorm:"size:2048"`

	UpdatedAt time.Time
}
