package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"linkhub/internal/models"
)

type TokenStore struct{ db *gorm.DB }

func NewTokenStore(db *gorm.DB) *TokenStore { return &TokenStore{db: db} }

func (s *TokenStore) Create(ctx context.Context, t *models.RefreshToken) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *TokenStore) Get(ctx context.Context, tokenValue string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := s.db.WithContext(ctx).Where("token_value = ?", tokenValue).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Invalidate — условная запись is_valid true→false. При двух конкурентных
// ротациях одного токена ровно один UPDATE заденет строку; второй получит
// RowsAffected=0 и проиграет.
func (s *TokenStore) Invalidate(ctx context.Context, tokenValue string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_value = ? AND is_valid = ?", tokenValue, true).
		Update("is_valid", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// InvalidateExpired — sweep протухших refresh-токенов.
func (s *TokenStore) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("is_valid = ? AND expires_at < ?", true, now).
		Update("is_valid", false)
	return res.RowsAffected, res.Error
}
