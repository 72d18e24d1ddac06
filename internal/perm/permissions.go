package perm

import (
	"fmt"
	"sort"
)

// PermissionID — строго типизированный идентификатор права.
// Неизвестные строки отбрасываются на границе (Parse), а не протаскиваются дальше.
type PermissionID string

const (
	ProfileRead       PermissionID = "profile:read"
	ProfileWrite      PermissionID = "profile:write"
	PagesManage       PermissionID = "pages:manage"
	LinksManage       PermissionID = "links:manage"
	AppearanceManage  PermissionID = "appearance:manage"
	AnalyticsRead     PermissionID = "analytics:read"
	APIKeysManage     PermissionID = "apikeys:manage"
	BillingManage     PermissionID = "billing:manage"
	UsersManage       PermissionID = "users:manage"
	SubAccountsManage PermissionID = "subaccounts:manage"
)

var known = map[PermissionID]struct{}{
	ProfileRead:       {},
	ProfileWrite:      {},
	PagesManage:       {},
	LinksManage:       {},
	AppearanceManage:  {},
	AnalyticsRead:     {},
	APIKeysManage:     {},
	BillingManage:     {},
	UsersManage:       {},
	SubAccountsManage: {},
}

// Parse проверяет строку на принадлежность домену прав.
func Parse(s string) (PermissionID, error) {
	id := PermissionID(s)
	if _, ok := known[id]; !ok {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return id, nil
}

// Set — множество прав.
type Set map[PermissionID]struct{}

func NewSet(ids ...PermissionID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id PermissionID) bool { _, ok := s[id]; return ok }

func (s Set) Add(id PermissionID)    { s[id] = struct{}{} }
func (s Set) Remove(id PermissionID) { delete(s, id) }

func (s Set) Clone() Set {
	c := make(Set, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Intersect возвращает пересечение множеств.
func (s Set) Intersect(other Set) Set {
	r := make(Set)
	for id := range s {
		if other.Has(id) {
			r[id] = struct{}{}
		}
	}
	return r
}

// IsSubsetOf — s ⊆ other.
func (s Set) IsSubsetOf(other Set) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// List возвращает отсортированный срез строк (для claims и ответов API).
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}
