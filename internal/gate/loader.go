package gate

import (
	"context"
	"fmt"

	"linkhub/internal/models"
	"linkhub/internal/perm"
)

// Loader реализует token.PrincipalLoader: свежие права и родитель аккаунта
// для перевыпуска access-токена при ротации.
type Loader struct {
	accounts AccountSource
	resolver *perm.Resolver
}

func NewLoader(accounts AccountSource, resolver *perm.Resolver) *Loader {
	return &Loader{accounts: accounts, resolver: resolver}
}

func (l *Loader) LoadPrincipal(ctx context.Context, accountID string) (*models.Account, perm.Set, string, error) {
	acc, err := l.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, nil, "", err
	}
	permissions, err := l.resolver.Resolve(acc)
	if err != nil {
		return nil, nil, "", fmt.Errorf("resolve permissions: %w", err)
	}

	parentID := ""
	if acc.IsSubAccount {
		rel, err := l.accounts.ParentOf(ctx, acc.ID)
		if err != nil {
			return nil, nil, "", err
		}
		if rel != nil {
			parentID = rel.ParentAccountID
		}
	}
	return acc, permissions, parentID, nil
}
