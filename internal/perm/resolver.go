package perm

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"linkhub/internal/models"
)

// Resolver вычисляет эффективное множество прав аккаунта:
// roleDefaults ∪ grants \ revocations, для суб-аккаунта — пересечение с маской.
type Resolver struct {
	roles *RoleConfig
}

func NewResolver(roles *RoleConfig) *Resolver { return &Resolver{roles: roles} }

// Resolve возвращает эффективные права. Неизвестный permission id в гранте —
// ошибка целостности данных, а не повод молча расширить права.
func (r *Resolver) Resolve(acc *models.Account) (Set, error) {
	set := r.roles.DefaultsFor(acc.Role)

	grants, err := decodeOverrides(acc.PermissionGrants)
	if err != nil {
		return nil, fmt.Errorf("account %s grants: %w", acc.ID, err)
	}
	for _, id := range grants {
		set.Add(id)
	}

	revocations, err := decodeOverrides(acc.PermissionRevocations)
	if err != nil {
		return nil, fmt.Errorf("account %s revocations: %w", acc.ID, err)
	}
	for _, id := range revocations {
		set.Remove(id)
	}

	// Суб-аккаунт никогда не выходит за контентную маску,
	// какими бы ни были гранты на его записи.
	if acc.IsSubAccount {
		set = set.Intersect(r.roles.SubAccountMask())
	}
	return set, nil
}

// AuthorizeEndpoint — чистая проверка принадлежности права множеству.
func (r *Resolver) AuthorizeEndpoint(set Set, required PermissionID) bool {
	return set.Has(required)
}

func decodeOverrides(raw datatypes.JSON) ([]PermissionID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, err
	}
	out := make([]PermissionID, 0, len(ss))
	for _, s := range ss {
		id, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// EncodeOverrides сериализует список прав для хранения в JSON-колонке.
func EncodeOverrides(ids []PermissionID) (datatypes.JSON, error) {
	ss := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := Parse(string(id)); err != nil {
			return nil, err
		}
		ss = append(ss, string(id))
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
