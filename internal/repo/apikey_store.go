package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"linkhub/internal/models"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

type APIKeyStore struct{ db *gorm.DB }

func NewAPIKeyStore(db *gorm.DB) *APIKeyStore { return &APIKeyStore{db: db} }

func (s *APIKeyStore) Create(ctx context.Context, k *models.APIKey) error {
	return s.db.WithContext(ctx).Create(k).Error
}

func (s *APIKeyStore) Get(ctx context.Context, id string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetByKeyID — поиск по публичной части ключа (для аутентификации запроса).
func (s *APIKeyStore) GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.WithContext(ctx).Where("key_id = ?", keyID).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *APIKeyStore) List(ctx context.Context, accountID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at asc, id asc").
		Find(&keys).Error
	return keys, err
}

func (s *APIKeyStore) CountActive(ctx context.Context, accountID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("account_id = ? AND status = ?", accountID, models.StatusActive).
		Count(&n).Error
	return int(n), err
}

// ListActiveOldestFirst — активные ключи по возрастанию created_at
// (при downgrade отключаются новейшие, старейший остаётся).
func (s *APIKeyStore) ListActiveOldestFirst(ctx context.Context, accountID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, models.StatusActive).
		Order("created_at asc, id asc").
		Find(&keys).Error
	return keys, err
}

// Disable — условный перевод active→disabled с причиной (не удаление:
// ключ восстановим при повторном апгрейде).
func (s *APIKeyStore) Disable(ctx context.Context, id, reason string) (bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]any{
			"status":            models.StatusDisabled,
			"status_reason":     reason,
			"status_changed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Reinstate возвращает в active до maxTotal активных ключей, отключённых
// с данной причиной, начиная со старейших. maxTotal < 0 — вернуть все.
func (s *APIKeyStore) Reinstate(ctx context.Context, accountID, reason string, maxTotal int) (int, error) {
	active, err := s.CountActive(ctx, accountID)
	if err != nil {
		return 0, err
	}

	var candidates []models.APIKey
	if err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND status_reason = ?", accountID, models.StatusDisabled, reason).
		Order("created_at asc, id asc").
		Find(&candidates).Error; err != nil {
		return 0, err
	}

	restored := 0
	for _, k := range candidates {
		if maxTotal >= 0 && active+restored >= maxTotal {
			break
		}
		res := s.db.WithContext(ctx).Model(&models.APIKey{}).
			Where("id = ? AND status = ?", k.ID, models.StatusDisabled).
			Updates(map[string]any{
				"status":            models.StatusActive,
				"status_reason":     "",
				"status_changed_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return restored, res.Error
		}
		if res.RowsAffected == 1 {
			restored++
		}
	}
	return restored, nil
}
