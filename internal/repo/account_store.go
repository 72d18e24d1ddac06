package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"linkhub/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

type AccountStore struct{ db *gorm.DB }

func NewAccountStore(db *gorm.DB) *AccountStore { return &AccountStore{db: db} }

func (s *AccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *AccountStore) Create(ctx context.Context, acc *models.Account) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("email = ?", acc.Email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}
	return s.db.WithContext(ctx).Create(acc).Error
}

func (s *AccountStore) Save(ctx context.Context, acc *models.Account) error {
	return s.db.WithContext(ctx).Save(acc).Error
}

// UpdateTier выставляет новый тариф и статус подписки.
func (s *AccountStore) UpdateTier(ctx context.Context, id string, tier models.Tier, status models.SubscriptionStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"tier":                tier,
			"subscription_status": status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListLapsedParents — родительские аккаунты, чья подписка истекла, но
// событие биллинга не пришло (плановый sweep). Критерий — только статус
// подписки: истечение пака суб-аккаунтов и подписка независимы, пак не
// повод для downgrade. Суб-аккаунты не трогаем: они ограничиваются
// тарифом родителя при следующем разрешении.
func (s *AccountStore) ListLapsedParents(ctx context.Context) ([]models.Account, error) {
	var accs []models.Account
	err := s.db.WithContext(ctx).
		Where("is_sub_account = ?", false).
		Where("tier <> ?", models.TierFree).
		Where("subscription_status IN ?",
			[]models.SubscriptionStatus{models.SubscriptionSuspended, models.SubscriptionExpired}).
		Find(&accs).Error
	return accs, err
}

// -------- Связи владения parent → sub --------

// ParentOf возвращает родительскую связь суб-аккаунта (nil — связи нет).
func (s *AccountStore) ParentOf(ctx context.Context, subAccountID string) (*models.SubAccountRelationship, error) {
	var rel models.SubAccountRelationship
	err := s.db.WithContext(ctx).Where("sub_account_id = ?", subAccountID).First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (s *AccountStore) CountActiveRelationships(ctx context.Context, parentAccountID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.SubAccountRelationship{}).
		Where("parent_account_id = ? AND status = ?", parentAccountID, models.RelationshipActive).
		Count(&n).Error
	return n, err
}

func (s *AccountStore) ListRelationships(ctx context.Context, parentAccountID string) ([]models.SubAccountRelationship, error) {
	var rels []models.SubAccountRelationship
	err := s.db.WithContext(ctx).
		Where("parent_account_id = ?", parentAccountID).
		Order("created_at asc").
		Find(&rels).Error
	return rels, err
}

// CreateSubAccount создаёт суб-аккаунт и связь одной транзакцией.
func (s *AccountStore) CreateSubAccount(ctx context.Context, sub *models.Account, rel *models.SubAccountRelationship) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Create(rel).Error
	})
}

// DeleteSubAccount удаляет связь и сам суб-аккаунт (hard delete).
func (s *AccountStore) DeleteSubAccount(ctx context.Context, parentAccountID, subAccountID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("parent_account_id = ? AND sub_account_id = ?", parentAccountID, subAccountID).
			Delete(&models.SubAccountRelationship{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return tx.Where("id = ?", subAccountID).Delete(&models.Account{}).Error
	})
}
