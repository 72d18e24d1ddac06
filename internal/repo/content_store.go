package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"linkhub/internal/models"
)

var ErrPageNotFound = errors.New("page not found")

// ContentStore — страницы, ссылки и оформление профиля.
type ContentStore struct{ db *gorm.DB }

func NewContentStore(db *gorm.DB) *ContentStore { return &ContentStore{db: db} }

// -------- Pages --------

func (s *ContentStore) CreatePage(ctx context.Context, p *models.Page) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *ContentStore) CountPages(ctx context.Context, accountID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Page{}).
		Where("account_id = ?", accountID).Count(&n).Error
	return int(n), err
}

// ListPagesOldestFirst — страницы аккаунта по возрастанию created_at.
func (s *ContentStore) ListPagesOldestFirst(ctx context.Context, accountID string) ([]models.Page, error) {
	var pages []models.Page
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at asc, id asc").
		Find(&pages).Error
	return pages, err
}

func (s *ContentStore) DeletePage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Page{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPageNotFound
	}
	return nil
}

// -------- Links --------

func (s *ContentStore) CreateLink(ctx context.Context, l *models.Link) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *ContentStore) CountActiveLinks(ctx context.Context, accountID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("account_id = ? AND status = ?", accountID, models.StatusActive).
		Count(&n).Error
	return int(n), err
}

// ListActiveLinksByOrder — активные ссылки по возрастанию display_order
// (ранние/с меньшим порядком в начале).
func (s *ContentStore) ListActiveLinksByOrder(ctx context.Context, accountID string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, models.StatusActive).
		Order("display_order asc, created_at asc").
		Find(&links).Error
	return links, err
}

// DeactivateLink — условный перевод active→inactive с причиной.
// Уже неактивная ссылка не затрагивается (идемпотентность cleanup).
func (s *ContentStore) DeactivateLink(ctx context.Context, id, reason string) (bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]any{
			"status":            models.StatusInactive,
			"status_reason":     reason,
			"status_changed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReinstateLinks возвращает в active до maxTotal активных ссылок,
// отключённых с данной причиной, начиная с меньшего display_order.
// maxTotal < 0 — вернуть все.
func (s *ContentStore) ReinstateLinks(ctx context.Context, accountID, reason string, maxTotal int) (int, error) {
	active, err := s.CountActiveLinks(ctx, accountID)
	if err != nil {
		return 0, err
	}

	var candidates []models.Link
	if err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND status_reason = ?", accountID, models.StatusInactive, reason).
		Order("display_order asc, created_at asc").
		Find(&candidates).Error; err != nil {
		return 0, err
	}

	restored := 0
	for _, l := range candidates {
		if maxTotal >= 0 && active+restored >= maxTotal {
			break
		}
		res := s.db.WithContext(ctx).Model(&models.Link{}).
			Where("id = ? AND status = ?", l.ID, models.StatusInactive).
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

// -------- Appearance --------

// GetAppearance возвращает оформление аккаунта (nil — записи ещё нет).
func (s *ContentStore) GetAppearance(ctx context.Context, accountID string) (*models.Appearance, error) {
	var a models.Appearance
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *ContentStore) SaveAppearance(ctx context.Context, a *models.Appearance) error {
	return s.db.WithContext(ctx).Save(a).Error
}
