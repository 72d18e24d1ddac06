package models

import "time"

// RefreshToken — запись ротации refresh-токена.
// В каждый момент от цепочки ротаций действителен максимум один токен:
// ротация инвалидирует предшественника условным UPDATE (is_valid true→false)
// и только после этого создаёт преемника.
type RefreshToken struct {
	TokenValue string    `gorm:"primaryKey;size:64"`
	AccountID  string    `gorm:"size:36;not null;index"`
	IssuedAt   time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	IsValid    bool      `gorm:"not null;index"`
}
