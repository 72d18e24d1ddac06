package entitlement

import (
	"fmt"

	"linkhub/internal/models"
)

// ResourceKind — класс ресурса, ограниченный тарифом.
type ResourceKind string

const (
	ResourcePages   ResourceKind = "pages"
	ResourceLinks   ResourceKind = "links"
	ResourceAPIKeys ResourceKind = "apikeys"
)

// QuotaError — превышение лимита ресурса; несёт current/limit и тариф
// для подсказки об апгрейде.
type QuotaError struct {
	Kind    ResourceKind
	Current int
	Limit   int
	Tier    models.Tier
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d of %d allowed on tier %s",
		e.Kind, e.Current, e.Limit, e.Tier)
}

func (l TierLimit) limitFor(kind ResourceKind) (int, error) {
	switch kind {
	case ResourcePages:
		return l.MaxPages, nil
	case ResourceLinks:
		return l.MaxLinks, nil
	case ResourceAPIKeys:
		return l.MaxAPIKeys, nil
	default:
		return 0, fmt.Errorf("unknown resource kind %q", kind)
	}
}

// CheckQuota сравнивает живой счётчик с лимитом тарифа.
// requested — сколько ресурсов будет после операции; -1 в лимите = всегда разрешено.
func CheckQuota(limit TierLimit, tier models.Tier, kind ResourceKind, requested int) error {
	max, err := limit.limitFor(kind)
	if err != nil {
		return err
	}
	if max < 0 || requested <= max {
		return nil
	}
	return &QuotaError{Kind: kind, Current: requested, Limit: max, Tier: tier}
}
