package cleanup

import (
	"context"
	"fmt"

	"linkhub/internal/logs"
	"linkhub/internal/models"
)

// HandleSubscriptionChange — входная точка для webhook'а биллинга.
// Понижение тарифа запускает cleanup, повышение — восстановление ресурсов,
// отключённых предыдущим downgrade. Оба пути идут через один RunCleanup /
// reinstate, независимо от источника события.
func (o *Orchestrator) HandleSubscriptionChange(ctx context.Context, accountID string, newTier models.Tier, reason string) error {
	if _, err := o.catalog.Lookup(newTier); err != nil {
		return err
	}

	acc, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.IsSubAccount {
		return ErrSubAccountTarget
	}

	oldTier := acc.Tier
	status := models.SubscriptionActive
	if newTier == models.TierFree {
		status = models.SubscriptionExpired
	}
	if err := o.accounts.UpdateTier(ctx, accountID, newTier, status); err != nil {
		return err
	}

	switch {
	case models.TierRank(newTier) < models.TierRank(oldTier):
		trigger := fmt.Sprintf("webhook:%s:%s->%s", reason, oldTier, newTier)
		if _, err := o.RunCleanup(ctx, accountID, trigger); err != nil {
			return err
		}
	case models.TierRank(newTier) > models.TierRank(oldTier):
		if err := o.reinstateAfterUpgrade(ctx, accountID, newTier); err != nil {
			return err
		}
	}
	return nil
}

// reinstateAfterUpgrade возвращает в строй ключи и ссылки, отключённые
// из-за downgrade, в пределах лимитов нового тарифа (старейшие первыми).
func (o *Orchestrator) reinstateAfterUpgrade(ctx context.Context, accountID string, newTier models.Tier) error {
	limit, err := o.catalog.Lookup(newTier)
	if err != nil {
		return err
	}

	report := &Report{AccountID: accountID, Tier: newTier, FullySucceeded: true}

	restoredKeys, err := o.keys.Reinstate(ctx, accountID, models.ReasonTierDowngrade, limit.MaxAPIKeys)
	if err != nil {
		report.FullySucceeded = false
		report.Actions = append(report.Actions, Action{Class: "api_keys", Op: "failed", Detail: err.Error()})
		logs.Logger.Errorf("reinstate api keys account=%s: %v", accountID, err)
	} else if restoredKeys > 0 {
		report.Actions = append(report.Actions, Action{
			Class: "api_keys", Op: "reinstated", Detail: fmt.Sprintf("%d keys", restoredKeys),
		})
	}

	restoredLinks, err := o.content.ReinstateLinks(ctx, accountID, models.ReasonTierDowngrade, limit.MaxLinks)
	if err != nil {
		report.FullySucceeded = false
		report.Actions = append(report.Actions, Action{Class: "links", Op: "failed", Detail: err.Error()})
		logs.Logger.Errorf("reinstate links account=%s: %v", accountID, err)
	} else if restoredLinks > 0 {
		report.Actions = append(report.Actions, Action{
			Class: "links", Op: "reinstated", Detail: fmt.Sprintf("%d links", restoredLinks),
		})
	}

	o.writeAudit(ctx, accountID, "upgrade", newTier, report)
	return nil
}

// SweepResult — итог планового прогона.
type SweepResult struct {
	ProcessedCount int `json:"processed_count"`
	ErrorCount     int `json:"error_count"`
}

// RunScheduledCleanup — плановый sweep: находит родительские аккаунты с
// истёкшей подпиской, для которых событие биллинга не пришло, переводит их
// на free и запускает тот же cleanup. Заодно инвалидирует протухшие
// refresh-токены.
func (o *Orchestrator) RunScheduledCleanup(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := o.now()

	if n, err := o.tokens.InvalidateExpired(ctx, now); err != nil {
		res.ErrorCount++
		logs.Logger.Errorf("sweep: refresh token expiry: %v", err)
	} else if n > 0 {
		logs.Logger.Infof("sweep: invalidated %d expired refresh tokens", n)
	}

	lapsed, err := o.accounts.ListLapsedParents(ctx)
	if err != nil {
		res.ErrorCount++
		return res, fmt.Errorf("sweep: list lapsed accounts: %w", err)
	}

	for _, acc := range lapsed {
		// Перепроверка критерия: downgrade только при истёкшей подписке,
		// истёкший пак при живой подписке — не повод.
		if !acc.SubscriptionLapsed() {
			continue
		}
		if err := o.accounts.UpdateTier(ctx, acc.ID, models.TierFree, models.SubscriptionExpired); err != nil {
			res.ErrorCount++
			logs.Logger.Errorf("sweep: downgrade account=%s: %v", acc.ID, err)
			continue
		}
		trigger := fmt.Sprintf("sweep:%s->%s", acc.Tier, models.TierFree)
		if _, err := o.RunCleanup(ctx, acc.ID, trigger); err != nil {
			res.ErrorCount++
			logs.Logger.Errorf("sweep: cleanup account=%s: %v", acc.ID, err)
			continue
		}
		res.ProcessedCount++
	}
	return res, nil
}
