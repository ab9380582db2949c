package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/retry"
)

// minDelta is the smallest balance change treated as movement.
const minDelta = 1e-9

// confirm polls the relayer until Landed/Failed or BundleTimeout.
// Pending, Invalid (not yet known) and lookup errors keep polling.
func (e *Executor) confirm(ctx context.Context, bundleID string) domain.BundleStatus {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BundleTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	last := domain.BundlePending
	for {
		st, err := e.relayer.BundleStatus(ctx, bundleID)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				slog.Debug("executor: bundle status lookup failed", "bundle_id", bundleID, "err", err)
			}
		case st.Final():
			slog.Info("executor: bundle status", "bundle_id", bundleID, "status", st)
			return st
		case st != last:
			slog.Debug("executor: bundle status", "bundle_id", bundleID, "status", st)
			last = st
		}

		select {
		case <-ctx.Done():
			slog.Warn("executor: bundle confirmation timed out", "bundle_id", bundleID, "timeout", e.cfg.BundleTimeout)
			return domain.BundleTimeout
		case <-ticker.C:
		}
	}
}

// settle measures the deltas of a bundle known to have landed. Balances may lag
// the ledger, so they are read up to BalanceChecks times; if they never move, the
// quoted amounts are used.
func (e *Executor) settle(ctx context.Context, att *domain.BundleAttempt, p plan, reconciled bool) *domain.TradeResult {
	if after, da, ds, ok := e.observe(ctx, att, p); ok {
		return e.result(att, after, da, ds, reconciled)
	}

	da, ds := e.quotedDeltas(att.Quote, p)
	after := domain.Balances{Asset: att.Before.Asset + da, Stable: att.Before.Stable + ds}
	slog.Warn("executor: landed bundle not visible in balances yet, using quoted amounts",
		"bundle_id", att.BundleID)
	return e.result(att, after, da, ds, reconciled)
}

// reconcile decides from balances alone whether a bundle with no final status landed.
// Best effort: an unrelated transfer in the same window could be mistaken for the swap.
func (e *Executor) reconcile(ctx context.Context, att *domain.BundleAttempt, p plan) *domain.TradeResult {
	after, da, ds, ok := e.observe(ctx, att, p)
	if !ok {
		slog.Warn("executor: reconciliation found no matching balance change", "bundle_id", att.BundleID)
		return nil
	}
	slog.Info("executor: reconciliation matched balance change", "bundle_id", att.BundleID)
	return e.result(att, after, da, ds, true)
}

// observe reads balances until they show a change matching the trade direction.
func (e *Executor) observe(ctx context.Context, att *domain.BundleAttempt, p plan) (domain.Balances, float64, float64, bool) {
	for i := 0; i < e.cfg.BalanceChecks; i++ {
		if i > 0 {
			if retry.Sleep(ctx, e.cfg.BalanceCheckDelay) != nil {
				break
			}
		}
		after, err := e.balances.Balances(ctx)
		if err != nil {
			slog.Debug("executor: balance check failed", "check", i+1, "err", err)
			continue
		}
		if da, ds, ok := e.matchDeltas(att, p, after); ok {
			return after, da, ds, true
		}
	}
	return domain.Balances{}, 0, 0, false
}

// matchDeltas returns the trade deltas implied by after, or false if they do not
// match the trade direction.
//
// The stable leg only moves with the swap, so it decides the match. The asset
// leg also pays the tip and network fees: the tip is added back, and when fees
// still swamp the asset leg the quoted amount is used for it.
func (e *Executor) matchDeltas(att *domain.BundleAttempt, p plan, after domain.Balances) (float64, float64, bool) {
	da, ds := after.Delta(att.Before)
	da += e.cfg.Asset.FromAtomic(att.TipLamports)
	qa, _ := e.quotedDeltas(att.Quote, p)

	switch p.dir {
	case domain.Buy:
		if ds > -minDelta {
			return 0, 0, false
		}
		if da <= minDelta {
			da = qa
		}
	case domain.Sell:
		if ds < minDelta {
			return 0, 0, false
		}
		if da >= -minDelta {
			da = qa
		}
	default:
		return 0, 0, false
	}
	return da, ds, true
}

// quotedDeltas converts the quote's atomic amounts into signed deltas.
func (e *Executor) quotedDeltas(q domain.Quote, p plan) (assetDelta, stableDelta float64) {
	if p.dir == domain.Buy {
		return e.cfg.Asset.FromAtomic(q.OutAmount), -e.cfg.Stable.FromAtomic(q.InAmount)
	}
	return -e.cfg.Asset.FromAtomic(q.InAmount), e.cfg.Stable.FromAtomic(q.OutAmount)
}
