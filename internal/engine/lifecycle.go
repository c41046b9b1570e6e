package engine

import (
	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/domain"
)

// ClearImpressionsForSite implements clearImpressionsForSite.
func (e *Engine) ClearImpressionsForSite(rawSite string) error {
	site, err := e.canonicalize("site", rawSite)
	if err != nil {
		return err
	}
	if site == "" {
		return domain.NewError(domain.InvalidSyntax, "site", "required")
	}
	e.store.ClearForSite(site)
	e.log.Info("impressions cleared for site", zap.String("site", string(site)))
	e.audit(func(a collab.Auditor) error {
		return a.RecordImpressionsCleared(collab.ImpressionClearedRecord{
			Site: string(site), Reason: "clear_impressions_for_site", OccurredAt: e.clock.Now(),
		})
	})
	return nil
}

// ClearExpiredImpressions implements clearExpiredImpressions.
// Idempotent: a second call with no elapsed time removes nothing further.
func (e *Engine) ClearExpiredImpressions() {
	now := e.clock.Now()
	before := e.store.Len()
	e.store.ClearExpired(now)
	if e.store.Len() < before {
		e.audit(func(a collab.Auditor) error {
			return a.RecordImpressionsCleared(collab.ImpressionClearedRecord{
				Reason: "clear_expired_impressions", OccurredAt: now,
			})
		})
	}
}

// ClearStateInput bundles clearState's parameters.
type ClearStateInput struct {
	Sites        []string
	ForgetVisits bool
}

// ClearState implements clearState.
func (e *Engine) ClearState(in ClearStateInput) error {
	if !in.ForgetVisits && len(in.Sites) == 0 {
		return domain.NewError(domain.OutOfRange, "sites", "forget_visits=false requires a non-empty site list")
	}

	sites := make([]domain.Site, 0, len(in.Sites))
	siteSet := make(map[domain.Site]struct{}, len(in.Sites))
	for _, raw := range in.Sites {
		s, err := e.canonicalize("sites", raw)
		if err != nil {
			return err
		}
		sites = append(sites, s)
		siteSet[s] = struct{}{}
	}

	now := e.clock.Now()

	if !in.ForgetVisits {
		for _, site := range sites {
			start := e.oracle.StartEpoch(site, now, e.cfg.maxLookback(), e.state.LastBrowsingHistoryClear)
			cur := e.oracle.Index(site, now)
			e.ledger.ZeroizeRange(site, start, cur)
		}
		e.log.Info("budget zeroized for sites", zap.Int("site_count", len(sites)))
		return nil
	}

	if len(sites) == 0 {
		e.store.Clear()
		e.ledger.Clear()
		e.oracle.Forget(nil)
		e.state.LastBrowsingHistoryClear = &now
		e.log.Info("forgot all visits")
		e.notify(collab.Notifier.NotifyAllVisitsForgotten)
		e.audit(func(a collab.Auditor) error {
			return a.RecordImpressionsCleared(collab.ImpressionClearedRecord{
				Reason: "forget_all_visits", OccurredAt: now,
			})
		})
		return nil
	}

	e.store.ForgetSites(siteSet)
	e.ledger.ForgetSites(siteSet)
	e.oracle.Forget(siteSet)
	e.state.LastBrowsingHistoryClear = &now
	e.log.Info("forgot visits for sites", zap.Int("site_count", len(sites)))
	for _, site := range sites {
		e.audit(func(a collab.Auditor) error {
			return a.RecordImpressionsCleared(collab.ImpressionClearedRecord{
				Site: string(site), Reason: "forget_visits_for_site", OccurredAt: now,
			})
		})
	}
	return nil
}
