package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/ports"
	"github.com/alejandrodnm/pulsesurfer/internal/retry"
)

const (
	defaultMaxAttempts       = 3
	defaultTotalBudget       = 300 * time.Second
	defaultRetryDelay        = 5 * time.Second
	defaultPollInterval      = 2 * time.Second
	defaultBundleTimeout     = 90 * time.Second
	defaultBalanceChecks     = 5
	defaultBalanceCheckDelay = 2 * time.Second
	defaultSlippageBps       = 200
)

var (
	errBundleFailed = errors.New("bundle failed")
	errNotLanded    = errors.New("bundle did not land")
	errBadQuote     = errors.New("quote has zero amounts")
	errBadPrice     = errors.New("realized price is not a positive finite number")

	// ErrNoTipAccounts is returned by New when no tip account is configured.
	ErrNoTipAccounts = errors.New("executor: no tip accounts configured")
)

// Config holds the attempt, confirmation and tip parameters of the executor.
type Config struct {
	Asset  domain.Asset // volatile asset, pays the tip
	Stable domain.Asset

	MaxAttempts int
	TotalBudget time.Duration // no new attempt starts after this
	RetryDelay  time.Duration

	PollInterval  time.Duration
	BundleTimeout time.Duration

	BalanceChecks     int
	BalanceCheckDelay time.Duration

	SlippageBps int
	Tip         TipConfig
}

// DefaultConfig returns the production parameters for a SOL/USDC portfolio.
func DefaultConfig() Config {
	return Config{
		Asset:             domain.SOL,
		Stable:            domain.USDC,
		MaxAttempts:       defaultMaxAttempts,
		TotalBudget:       defaultTotalBudget,
		RetryDelay:        defaultRetryDelay,
		PollInterval:      defaultPollInterval,
		BundleTimeout:     defaultBundleTimeout,
		BalanceChecks:     defaultBalanceChecks,
		BalanceCheckDelay: defaultBalanceCheckDelay,
		SlippageBps:       defaultSlippageBps,
		Tip:               DefaultTipConfig(),
	}
}

// Request is everything one trade decision needs. It is a snapshot: the
// executor never reads or writes the live Position.
type Request struct {
	Sentiment         domain.Sentiment
	Balances          domain.Balances
	Price             float64
	AverageEntryPrice float64
	Settings          domain.Settings
}

// Executor runs QUOTE → BUILD → TIP → SUBMIT → CONFIRM for one sentiment-driven swap.
type Executor struct {
	quotes     ports.QuoteService
	builder    ports.BundleBuilder
	relayer    ports.BundleRelayer
	balances   ports.BalanceReader
	tips       *TipEstimator
	signatures ports.SignatureChecker
	cfg        Config

	tipAccounts []string
	now         func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSignatureChecker enables the ledger signature lookup used when the relayer
// gives no final status in time.
func WithSignatureChecker(sc ports.SignatureChecker) Option {
	return func(e *Executor) { e.signatures = sc }
}

// WithTipAccounts sets the accounts a tip may be paid to (one is picked at random).
func WithTipAccounts(accounts []string) Option {
	return func(e *Executor) { e.tipAccounts = accounts }
}

// New creates an Executor. Zero Config fields take their defaults. At least
// one tip account must be given with WithTipAccounts.
func New(
	quotes ports.QuoteService,
	builder ports.BundleBuilder,
	relayer ports.BundleRelayer,
	balances ports.BalanceReader,
	tips ports.TipStream,
	cfg Config,
	opts ...Option,
) (*Executor, error) {
	def := DefaultConfig()
	if cfg.Asset.Mint == "" {
		cfg.Asset = def.Asset
	}
	if cfg.Stable.Mint == "" {
		cfg.Stable = def.Stable
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = def.TotalBudget
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BundleTimeout <= 0 {
		cfg.BundleTimeout = def.BundleTimeout
	}
	if cfg.BalanceChecks <= 0 {
		cfg.BalanceChecks = def.BalanceChecks
	}
	if cfg.BalanceCheckDelay < 0 {
		cfg.BalanceCheckDelay = def.BalanceCheckDelay
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = def.SlippageBps
	}

	e := &Executor{
		quotes:   quotes,
		builder:  builder,
		relayer:  relayer,
		balances: balances,
		tips:     NewTipEstimator(tips, cfg.Tip),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, acc := range e.tipAccounts {
		if acc == "" {
			return nil, fmt.Errorf("%w: empty account", ErrNoTipAccounts)
		}
	}
	if len(e.tipAccounts) == 0 {
		return nil, ErrNoTipAccounts
	}
	return e, nil
}

// plan is the resolved side of a trade.
type plan struct {
	dir       domain.Direction
	sentiment domain.Sentiment
	input     domain.Asset
	output    domain.Asset
	amount    uint64 // atomic units of input
	settings  domain.Settings
}

// Execute attempts the swap the sentiment calls for.
//
// A nil result means no trade happened (precondition not met, or every
// attempt failed) and the caller must leave the Position untouched. An error
// is returned only when ctx is cancelled.
func (e *Executor) Execute(ctx context.Context, req Request) (*domain.TradeResult, error) {
	p, ok := e.prepare(req)
	if !ok {
		return nil, nil
	}

	deadline := e.now().Add(e.cfg.TotalBudget)
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res, err := e.attempt(ctx, attempt, p)
		if res != nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("executor: attempt failed",
			"attempt", attempt,
			"max", e.cfg.MaxAttempts,
			"err", err,
		)

		if attempt == e.cfg.MaxAttempts {
			break
		}
		if !e.now().Add(e.cfg.RetryDelay).Before(deadline) {
			slog.Warn("executor: total budget exhausted", "budget", e.cfg.TotalBudget)
			break
		}
		if err := retry.Sleep(ctx, e.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}

	slog.Warn("executor: no trade, all attempts failed", "direction", p.dir, "sentiment", p.sentiment)
	return nil, nil
}

// prepare checks the preconditions and sizes the trade.
func (e *Executor) prepare(req Request) (plan, bool) {
	p := plan{
		dir:       req.Sentiment.Direction(),
		sentiment: req.Sentiment,
		settings:  req.Settings,
	}
	var balance float64
	switch p.dir {
	case domain.Buy:
		p.input, p.output, balance = e.cfg.Stable, e.cfg.Asset, req.Balances.Stable
	case domain.Sell:
		p.input, p.output, balance = e.cfg.Asset, e.cfg.Stable, req.Balances.Asset
	default:
		slog.Info("executor: neutral sentiment, holding")
		return plan{}, false
	}

	p.amount = domain.TradeSize(balance, req.Sentiment, req.Settings.Multipliers, p.input.Decimals)
	if p.amount == 0 {
		slog.Info("executor: insufficient balance for trade",
			"asset", p.input.Symbol,
			"balance", balance,
			"sentiment", req.Sentiment,
		)
		return plan{}, false
	}

	if p.dir == domain.Sell && !(req.Price > req.AverageEntryPrice || req.AverageEntryPrice == 0) {
		slog.Info("executor: sell skipped, price not above average entry",
			"price", fmt.Sprintf("$%.2f", req.Price),
			"avg_entry", fmt.Sprintf("$%.2f", req.AverageEntryPrice),
		)
		return plan{}, false
	}

	slog.Info("executor: trade planned",
		"direction", p.dir,
		"amount", fmt.Sprintf("%.6f %s", p.input.FromAtomic(p.amount), p.input.Symbol),
		"sentiment", req.Sentiment,
	)
	return p, true
}

// attempt runs one full bundle attempt with a fresh quote.
func (e *Executor) attempt(ctx context.Context, n int, p plan) (*domain.TradeResult, error) {
	before, err := e.balances.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot balances: %w", err)
	}

	quote, err := e.quotes.Quote(ctx, domain.QuoteRequest{
		Input:       p.input,
		Output:      p.output,
		Amount:      p.amount,
		SlippageBps: e.cfg.SlippageBps,
		FeeBps:      p.settings.DeveloperFeeBps,
	})
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	if quote.InAmount == 0 || quote.OutAmount == 0 {
		return nil, errBadQuote
	}

	swap, err := e.quotes.BuildSwap(ctx, quote)
	if err != nil {
		return nil, fmt.Errorf("build swap: %w", err)
	}

	tip := e.tips.Estimate(ctx, p.settings.TipCap)
	bundle, err := e.builder.Build(ctx, swap, tip, e.pickTipAccount())
	if err != nil {
		return nil, fmt.Errorf("build bundle: %w", err)
	}

	bundleID, err := e.relayer.SendBundle(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("send bundle: %w", err)
	}

	att := &domain.BundleAttempt{
		Number:      n,
		Quote:       quote,
		Bundle:      bundle,
		TipLamports: tip,
		BundleID:    bundleID,
		Status:      domain.BundlePending,
		Before:      before,
	}
	slog.Info("executor: bundle submitted",
		"attempt", n,
		"bundle_id", bundleID,
		"tip", fmt.Sprintf("%.9f SOL", e.cfg.Asset.FromAtomic(tip)),
		"swap_sig", bundle.SwapSignature,
	)

	att.Status = e.confirm(ctx, bundleID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	switch att.Status {
	case domain.BundleLanded:
		if res := e.settle(ctx, att, p, false); res != nil {
			return res, nil
		}
		return nil, errBadPrice
	case domain.BundleFailed:
		return nil, errBundleFailed
	}

	// No final status from the relayer: ask the ledger, then fall back to balances.
	if st := e.signatureStatus(ctx, bundle.SwapSignature); st == domain.BundleLanded {
		if res := e.settle(ctx, att, p, true); res != nil {
			return res, nil
		}
		return nil, errBadPrice
	} else if st == domain.BundleFailed {
		return nil, errBundleFailed
	}
	if res := e.reconcile(ctx, att, p); res != nil {
		return res, nil
	}
	return nil, errNotLanded
}

func (e *Executor) signatureStatus(ctx context.Context, sig string) domain.BundleStatus {
	if e.signatures == nil || sig == "" {
		return domain.BundleInvalid
	}
	st, err := e.signatures.SignatureStatus(ctx, sig)
	if err != nil {
		slog.Debug("executor: signature lookup failed", "sig", sig, "err", err)
		return domain.BundleInvalid
	}
	return st
}

func (e *Executor) pickTipAccount() string {
	return e.tipAccounts[rand.IntN(len(e.tipAccounts))]
}

// result builds the TradeResult for a landed bundle. It returns nil when the
// deltas give no usable price; such a trade must never reach the Position.
func (e *Executor) result(att *domain.BundleAttempt, after domain.Balances, assetDelta, stableDelta float64, reconciled bool) *domain.TradeResult {
	price := math.Abs(stableDelta) / math.Abs(assetDelta)
	if !(price > 0) || math.IsInf(price, 0) {
		slog.Warn("executor: discarding swap with unusable price",
			"asset_delta", assetDelta,
			"stable_delta", stableDelta,
			"bundle_id", att.BundleID,
		)
		return nil
	}
	res := &domain.TradeResult{
		BundleID:      att.BundleID,
		SwapSignature: att.Bundle.SwapSignature,
		TipLamports:   att.TipLamports,
		Price:         price,
		AssetDelta:    assetDelta,
		StableDelta:   stableDelta,
		Balances:      after,
		Attempts:      att.Number,
		Reconciled:    reconciled,
	}
	slog.Info("executor: swap landed",
		"direction", res.Direction(),
		"asset_delta", fmt.Sprintf("%+.6f %s", assetDelta, e.cfg.Asset.Symbol),
		"stable_delta", fmt.Sprintf("%+.2f %s", stableDelta, e.cfg.Stable.Symbol),
		"price", fmt.Sprintf("$%.2f", price),
		"bundle_id", att.BundleID,
		"reconciled", reconciled,
	)
	return res
}
