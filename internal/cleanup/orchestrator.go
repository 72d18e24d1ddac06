package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"linkhub/internal/entitlement"
	"linkhub/internal/logs"
	"linkhub/internal/models"
)

// ErrSubAccountTarget — cleanup запускается только для родительских аккаунтов;
// суб-аккаунты ограничиваются тарифом родителя при следующем разрешении.
var ErrSubAccountTarget = errors.New("cleanup is not applicable to sub-accounts")

// Репозитории (контракты потребителя — реализуются пакетом repo).
type AccountRepo interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	UpdateTier(ctx context.Context, id string, tier models.Tier, status models.SubscriptionStatus) error
	ListLapsedParents(ctx context.Context) ([]models.Account, error)
}

type ContentRepo interface {
	CountPages(ctx context.Context, accountID string) (int, error)
	ListPagesOldestFirst(ctx context.Context, accountID string) ([]models.Page, error)
	DeletePage(ctx context.Context, id string) error

	CountActiveLinks(ctx context.Context, accountID string) (int, error)
	ListActiveLinksByOrder(ctx context.Context, accountID string) ([]models.Link, error)
	DeactivateLink(ctx context.Context, id, reason string) (bool, error)
	ReinstateLinks(ctx context.Context, accountID, reason string, maxTotal int) (int, error)

	GetAppearance(ctx context.Context, accountID string) (*models.Appearance, error)
	SaveAppearance(ctx context.Context, a *models.Appearance) error
}

type KeyRepo interface {
	CountActive(ctx context.Context, accountID string) (int, error)
	ListActiveOldestFirst(ctx context.Context, accountID string) ([]models.APIKey, error)
	Disable(ctx context.Context, id, reason string) (bool, error)
	Reinstate(ctx context.Context, accountID, reason string, maxTotal int) (int, error)
}

type AuditRepo interface {
	Create(ctx context.Context, a *models.CleanupAudit) error
}

type TokenSweeper interface {
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)
}

// Action — одно действие cleanup в аудите.
type Action struct {
	Class      string `json:"class"`
	Op         string `json:"op"`
	ResourceID string `json:"resource_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Report — итог одного прогона.
type Report struct {
	AccountID      string
	Tier           models.Tier
	Actions        []Action
	FullySucceeded bool
}

// Orchestrator приводит ресурсы аккаунта к лимитам нового (более низкого)
// тарифа. Прогон идемпотентен и безопасно перезапускаем: каждый класс
// пересчитывает живые счётчики в момент обработки, а не по снимку.
type Orchestrator struct {
	accounts AccountRepo
	content  ContentRepo
	keys     KeyRepo
	audits   AuditRepo
	tokens   TokenSweeper
	catalog  *entitlement.Catalog
	now      func() time.Time
}

func NewOrchestrator(accounts AccountRepo, content ContentRepo, keys KeyRepo, audits AuditRepo, tokens TokenSweeper, catalog *entitlement.Catalog) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		content:  content,
		keys:     keys,
		audits:   audits,
		tokens:   tokens,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type classStep struct {
	name string
	fn   func(ctx context.Context, accountID string, limit entitlement.TierLimit) ([]Action, error)
}

// RunCleanup — единая точка входа для webhook'а, sweep'а и ручного запуска.
// Отказ одного класса ресурсов логируется и попадает в аудит, но не
// прерывает остальные классы.
func (o *Orchestrator) RunCleanup(ctx context.Context, accountID, trigger string) (*Report, error) {
	acc, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("cleanup target %s: %w", accountID, err)
	}
	if acc.IsSubAccount {
		return nil, ErrSubAccountTarget
	}

	limit, err := o.catalog.Lookup(acc.Tier)
	if err != nil {
		return nil, fmt.Errorf("cleanup target %s: %w", accountID, err)
	}

	report := &Report{AccountID: accountID, Tier: acc.Tier, FullySucceeded: true}
	steps := []classStep{
		{"pages", o.cleanPages},
		{"themes", o.cleanThemes},
		{"video_backgrounds", o.cleanVideoBackgrounds},
		{"api_keys", o.cleanAPIKeys},
		{"links", o.cleanLinks},
	}
	for _, step := range steps {
		actions, err := step.fn(ctx, accountID, limit)
		report.Actions = append(report.Actions, actions...)
		if err != nil {
			report.FullySucceeded = false
			report.Actions = append(report.Actions, Action{
				Class: step.name, Op: "failed", Detail: err.Error(),
			})
			logs.Logger.Errorf("cleanup account=%s class=%s failed: %v", accountID, step.name, err)
		}
	}

	o.writeAudit(ctx, acc.ID, trigger, acc.Tier, report)
	return report, nil
}

// -------- Классы ресурсов --------

// Страницы: лишние удаляются от старых к новым, страница-default — никогда.
func (o *Orchestrator) cleanPages(ctx context.Context, accountID string, limit entitlement.TierLimit) ([]Action, error) {
	if limit.MaxPages < 0 {
		return nil, nil
	}
	count, err := o.content.CountPages(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if count <= limit.MaxPages {
		return nil, nil
	}

	pages, err := o.content.ListPagesOldestFirst(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var actions []Action
	excess := count - limit.MaxPages
	for _, p := range pages {
		if excess <= 0 {
			break
		}
		if p.IsDefault {
			continue
		}
		if err := o.content.DeletePage(ctx, p.ID); err != nil {
			return actions, err
		}
		actions = append(actions, Action{Class: "pages", Op: "deleted", ResourceID: p.ID})
		excess--
	}
	return actions, nil
}

// Темы: если кастомные темы больше не доступны — возврат к базовой.
func (o *Orchestrator) cleanThemes(ctx context.Context, accountID string, limit entitlement.TierLimit) ([]Action, error) {
	if limit.CustomThemesAllowed {
		return nil, nil
	}
	a, err := o.content.GetAppearance(ctx, accountID)
	if err != nil || a == nil {
		return nil, err
	}
	if a.ThemeID == models.ThemeDefault {
		return nil, nil
	}
	prev := a.ThemeID
	a.ThemeID = models.ThemeDefault
	if err := o.content.SaveAppearance(ctx, a); err != nil {
		return nil, err
	}
	return []Action{{Class: "themes", Op: "reset", Detail: "theme " + prev + " -> " + models.ThemeDefault}}, nil
}

// Видео-фон: чистим URL и возвращаем базовый тип заливки;
// цвет и градиент не трогаем.
func (o *Orchestrator) cleanVideoBackgrounds(ctx context.Context, accountID string, limit entitlement.TierLimit) ([]Action, error) {
	if limit.VideoBackgroundAllowed {
		return nil, nil
	}
	a, err := o.content.GetAppearance(ctx, accountID)
	if err != nil || a == nil {
		return nil, err
	}
	if a.BackgroundVideoURL == "" && a.BackgroundFill != "video" {
		return nil, nil
	}
	a.BackgroundVideoURL = ""
	a.BackgroundFill = models.BackgroundFillFlat
	if err := o.content.SaveAppearance(ctx, a); err != nil {
		return nil, err
	}
	return []Action{{Class: "video_backgrounds", Op: "reset", Detail: "video background cleared"}}, nil
}

// API-ключи: новейшие сверх лимита отключаются (не удаляются) с причиной —
// восстановимы при повторном апгрейде. Старейшие остаются активными.
func (o *Orchestrator) cleanAPIKeys(ctx context.Context, accountID string, limit entitlement.TierLimit) ([]Action, error) {
	if limit.MaxAPIKeys < 0 {
		return nil, nil
	}
	count, err := o.keys.CountActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if count <= limit.MaxAPIKeys {
		return nil, nil
	}

	keys, err := o.keys.ListActiveOldestFirst(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if limit.MaxAPIKeys >= len(keys) {
		return nil, nil
	}

	var actions []Action
	for _, k := range keys[limit.MaxAPIKeys:] {
		ok, err := o.keys.Disable(ctx, k.ID, models.ReasonTierDowngrade)
		if err != nil {
			return actions, err
		}
		if ok {
			actions = append(actions, Action{Class: "api_keys", Op: "disabled", ResourceID: k.ID})
		}
	}
	return actions, nil
}

// Ссылки: сверх лимита помечаются inactive по убыванию display_order —
// ранние остаются активными. Без удаления.
func (o *Orchestrator) cleanLinks(ctx context.Context, accountID string, limit entitlement.TierLimit) ([]Action, error) {
	if limit.MaxLinks < 0 {
		return nil, nil
	}
	count, err := o.content.CountActiveLinks(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if count <= limit.MaxLinks {
		return nil, nil
	}

	links, err := o.content.ListActiveLinksByOrder(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if limit.MaxLinks >= len(links) {
		return nil, nil
	}

	var actions []Action
	for _, l := range links[limit.MaxLinks:] {
		ok, err := o.content.DeactivateLink(ctx, l.ID, models.ReasonTierDowngrade)
		if err != nil {
			return actions, err
		}
		if ok {
			actions = append(actions, Action{Class: "links", Op: "deactivated", ResourceID: l.ID})
		}
	}
	return actions, nil
}

func (o *Orchestrator) writeAudit(ctx context.Context, accountID, trigger string, tier models.Tier, report *Report) {
	actions := report.Actions
	if actions == nil {
		actions = []Action{}
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		raw = []byte(`[]`)
	}
	audit := &models.CleanupAudit{
		AccountID:      accountID,
		Trigger:        trigger,
		Tier:           tier,
		Actions:        datatypes.JSON(raw),
		FullySucceeded: report.FullySucceeded,
	}
	if err := o.audits.Create(ctx, audit); err != nil {
		// аудит не должен валить сам прогон
		logs.Logger.Errorf("cleanup audit write account=%s: %v", accountID, err)
	}
}
