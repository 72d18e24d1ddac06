package entitlement

import (
	"context"
	"errors"
	"fmt"

	"linkhub/internal/models"
)

var (
	// ErrCyclicOwnership — цикл в связях владения; ошибка целостности данных.
	ErrCyclicOwnership = errors.New("cyclic ownership detected")
	// ErrOrphanSubAccount — суб-аккаунт без родительской связи.
	ErrOrphanSubAccount = errors.New("sub-account has no parent relationship")
)

// Глубина наследования ограничена одним уровнем: суб-аккаунт не может
// владеть суб-аккаунтами (инвариант обеспечивается при создании).
const maxOwnershipDepth = 1

type AccountSource interface {
	Get(ctx context.Context, id string) (*models.Account, error)
}

type RelationshipSource interface {
	ParentOf(ctx context.Context, subAccountID string) (*models.SubAccountRelationship, error)
}

// TierResolution — результат разрешения эффективного тарифа.
type TierResolution struct {
	Tier          models.Tier
	Inherited     bool
	InheritedFrom string // id родителя, если Inherited
}

// TierResolver вычисляет эффективный тариф: суб-аккаунт наследует тариф
// родителя, обычный аккаунт использует свой собственный.
type TierResolver struct {
	accounts AccountSource
	rels     RelationshipSource
}

func NewTierResolver(accounts AccountSource, rels RelationshipSource) *TierResolver {
	return &TierResolver{accounts: accounts, rels: rels}
}

// Resolve — ограниченная итерация с visited-set: обнаруженный цикл или
// превышение глубины — fatal-ошибка данных, не тихий fallback.
func (r *TierResolver) Resolve(ctx context.Context, acc *models.Account) (TierResolution, error) {
	if !acc.IsSubAccount {
		return TierResolution{Tier: acc.Tier}, nil
	}

	visited := map[string]struct{}{acc.ID: {}}
	cur := acc
	for depth := 0; depth < maxOwnershipDepth; depth++ {
		rel, err := r.rels.ParentOf(ctx, cur.ID)
		if err != nil {
			return TierResolution{}, fmt.Errorf("parent lookup for %s: %w", cur.ID, err)
		}
		if rel == nil {
			return TierResolution{}, fmt.Errorf("%w: %s", ErrOrphanSubAccount, cur.ID)
		}
		if _, seen := visited[rel.ParentAccountID]; seen {
			return TierResolution{}, fmt.Errorf("%w: %s", ErrCyclicOwnership, rel.ParentAccountID)
		}

		parent, err := r.accounts.Get(ctx, rel.ParentAccountID)
		if err != nil {
			return TierResolution{}, fmt.Errorf("parent %s: %w", rel.ParentAccountID, err)
		}
		if !parent.IsSubAccount {
			return TierResolution{Tier: parent.Tier, Inherited: true, InheritedFrom: parent.ID}, nil
		}
		visited[parent.ID] = struct{}{}
		cur = parent
	}
	return TierResolution{}, fmt.Errorf("%w: depth limit exceeded at %s", ErrCyclicOwnership, cur.ID)
}
