package repo

import (
	"context"

	"gorm.io/gorm"

	"linkhub/internal/models"
)

type AuditStore struct{ db *gorm.DB }

func NewAuditStore(db *gorm.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Create(ctx context.Context, a *models.CleanupAudit) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *AuditStore) ListForAccount(ctx context.Context, accountID string, limit int) ([]models.CleanupAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	var audits []models.CleanupAudit
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Limit(limit).
		Find(&audits).Error
	return audits, err
}
