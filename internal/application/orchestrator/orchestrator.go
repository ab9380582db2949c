package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/application/executor"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/ports"
	"github.com/robfig/cron/v3"
)

// ErrQueueFull is returned by Send when the command queue has no room.
var ErrQueueFull = errors.New("orchestrator: command queue full")

const defaultCommandBuffer = 8

// Command is a control message consumed by the orchestrator loop.
type Command int

const (
	// SettingsUpdated signals new settings; they take effect next cycle.
	SettingsUpdated Command = iota
	// Reset cancels the in-flight cycle and starts a fresh session.
	Reset
)

func (c Command) String() string {
	switch c {
	case SettingsUpdated:
		return "settings_updated"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Trader executes the swap a sentiment calls for.
type Trader interface {
	Execute(ctx context.Context, req executor.Request) (*domain.TradeResult, error)
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Price      ports.PriceOracle
	Sentiment  ports.SentimentSource
	Balances   ports.BalanceReader
	Trader     Trader
	Settings   ports.SettingsProvider
	State      ports.StateStore
	Journal    ports.Journal
	Publishers []ports.Publisher
}

// Config holds the orchestrator parameters.
type Config struct {
	Asset         domain.Asset
	Schedule      string // cron expression, seconds field optional
	Version       string
	ResetOnStart  bool // ignore persisted state
	CommandBuffer int
}

// Orchestrator runs the trading cycle on wall-clock boundaries and owns the Position.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	schedule cron.Schedule
	commands chan Command
	now      func() time.Time

	// Touched by the loop only while no cycle is in flight, by the cycle otherwise.
	pos *domain.Position
	// Set by a Reset command, cleared once a reset succeeds.
	resetPending bool

	cancelCycle context.CancelFunc
	cycleDone   chan struct{}
}

// New creates an Orchestrator. It fails only on an invalid schedule.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if cfg.Asset.Mint == "" {
		cfg.Asset = domain.SOL
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = defaultCommandBuffer
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		schedule: sched,
		commands: make(chan Command, cfg.CommandBuffer),
		now:      time.Now,
	}, nil
}

// Send queues a command without blocking.
func (o *Orchestrator) Send(cmd Command) error {
	select {
	case o.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// RequestReset queues a Reset.
func (o *Orchestrator) RequestReset() error { return o.Send(Reset) }

// NotifySettingsUpdated queues a SettingsUpdated.
func (o *Orchestrator) NotifySettingsUpdated() error { return o.Send(SettingsUpdated) }

// Run restores (or resets) the session and loops until ctx is cancelled.
// At most one cycle is in flight at any time.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startup(ctx)

	timer, next := nextTimer(o.schedule, o.now())
	slog.Info("orchestrator: next cycle scheduled", "at", next.Format(time.RFC3339))
	defer func() { timer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			o.stopCycle()
			slog.Info("orchestrator: stopped")
			return nil

		case <-timer.C:
			o.startCycle(ctx)
			timer, next = nextTimer(o.schedule, o.now())
			slog.Info("orchestrator: next cycle scheduled", "at", next.Format(time.RFC3339))

		case <-o.cycleDone:
			o.cycleDone, o.cancelCycle = nil, nil

		case cmd := <-o.commands:
			slog.Info("orchestrator: command received", "command", cmd)
			switch cmd {
			case SettingsUpdated:
				s := o.deps.Settings.Current()
				slog.Info("orchestrator: settings take effect next cycle",
					"monitor_mode", s.MonitorMode,
					"tip_cap", s.TipCap,
					"developer_fee_bps", s.DeveloperFeeBps,
				)
			case Reset:
				o.stopCycle()
				o.resetPending = true
				if err := o.reset(ctx); err != nil {
					slog.Error("orchestrator: reset failed, retrying next cycle", "err", err)
				}
				timer.Stop()
				timer, next = nextTimer(o.schedule, o.now())
				slog.Info("orchestrator: next cycle scheduled", "at", next.Format(time.RFC3339))
			}
		}
	}
}

// startup restores the persisted session or starts a fresh one. Failures leave
// pos nil; the first cycle retries the reset.
func (o *Orchestrator) startup(ctx context.Context) {
	if !o.cfg.ResetOnStart {
		st, err := o.deps.State.Load(ctx)
		switch {
		case err != nil:
			slog.Warn("orchestrator: persisted state unreadable, starting fresh", "err", err)
		case st != nil && st.Position != nil:
			o.pos = st.Position
			slog.Info("orchestrator: session restored",
				"started", st.Position.StartTime.Format(time.RFC3339),
				"cycles", st.Position.Cycles,
				"trades", len(st.Position.Trades),
			)
			st.Summary.Version = o.cfg.Version
			o.publish(ctx, st.Summary)
			return
		}
	}
	if err := o.reset(ctx); err != nil {
		slog.Error("orchestrator: initial reset failed, retrying next cycle", "err", err)
	}
}

// startCycle launches a cycle goroutine unless one is still running.
func (o *Orchestrator) startCycle(parent context.Context) {
	if o.cycleDone != nil {
		slog.Warn("orchestrator: previous cycle still running, skipping boundary")
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	o.cancelCycle, o.cycleDone = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		o.safeCycle(ctx)
	}()
}

// stopCycle cancels the in-flight cycle and waits for it to exit.
func (o *Orchestrator) stopCycle() {
	if o.cycleDone == nil {
		return
	}
	o.cancelCycle()
	<-o.cycleDone
	o.cycleDone, o.cancelCycle = nil, nil
}

func (o *Orchestrator) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: cycle panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := o.cycle(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("orchestrator: cycle cancelled")
			return
		}
		slog.Error("orchestrator: cycle aborted", "err", err)
	}
}

// cycle runs FETCH → TRADE → LEDGER_UPDATE → PERSIST → PUBLISH once.
func (o *Orchestrator) cycle(ctx context.Context) error {
	start := o.now()
	if o.pos == nil || o.resetPending {
		pending := o.resetPending
		if err := o.reset(ctx); err != nil {
			return fmt.Errorf("orchestrator.cycle: %w", err)
		}
		// A requested reset replaces this cycle; no trade on the old session.
		if pending {
			return nil
		}
	}

	settings := o.deps.Settings.Current()

	price, err := o.deps.Price.Price(ctx, o.cfg.Asset)
	if err != nil {
		return fmt.Errorf("orchestrator.cycle: price: %w", err)
	}
	index := o.deps.Sentiment.FetchIndex(ctx)
	sentiment := domain.Classify(float64(index), settings.Boundaries)

	balances, err := o.deps.Balances.Balances(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator.cycle: balances: %w", err)
	}

	slog.Info("orchestrator: cycle start",
		"price", fmt.Sprintf("$%.2f", price),
		"index", index,
		"sentiment", sentiment,
		"asset", fmt.Sprintf("%.6f", balances.Asset),
		"stable", fmt.Sprintf("$%.2f", balances.Stable),
		"monitor", settings.MonitorMode,
	)

	if err := o.deps.Journal.SaveSample(ctx, domain.Sample{
		Timestamp: start,
		Price:     price,
		Index:     index,
		Sentiment: sentiment,
	}); err != nil {
		slog.Warn("orchestrator: sample not journaled", "err", err)
	}

	var res *domain.TradeResult
	if settings.MonitorMode {
		slog.Info("orchestrator: monitor mode, not trading")
	} else if sentiment.Direction() != domain.Hold {
		res, err = o.deps.Trader.Execute(ctx, executor.Request{
			Sentiment:         sentiment,
			Balances:          balances,
			Price:             price,
			AverageEntryPrice: o.pos.AverageEntryPrice(),
			Settings:          settings,
		})
		if err != nil {
			return fmt.Errorf("orchestrator.cycle: execute: %w", err)
		}
	}

	// Nada se muta si el ciclo fue cancelado durante el trade.
	if err := ctx.Err(); err != nil {
		return err
	}

	// LEDGER_UPDATE
	pos := o.pos
	bundleID := ""
	if res != nil {
		trade, err := pos.LogTrade(sentiment, res.Price, res.AssetDelta, res.StableDelta, res.BundleID, o.now())
		if err != nil {
			slog.Error("orchestrator: landed trade not recorded", "bundle_id", res.BundleID, "err", err)
		} else {
			bundleID = trade.BundleID
			if err := o.deps.Journal.SaveTrade(ctx, trade); err != nil {
				slog.Warn("orchestrator: trade not journaled", "id", trade.ID, "err", err)
			}
		}
		pos.UpdateBalances(res.Balances)
	} else {
		pos.UpdateBalances(balances)
	}
	pos.IncrementCycle()

	summary := o.summarize(pos, price, index, sentiment, settings)
	summary.BundleID = bundleID

	// PERSIST
	if err := o.persist(ctx, pos, summary, settings); err != nil {
		slog.Error("orchestrator: state not persisted", "err", err)
	}

	// PUBLISH
	o.publish(ctx, summary)

	slog.Info("orchestrator: cycle done",
		"cycle", pos.Cycles,
		"traded", res != nil,
		"value", fmt.Sprintf("$%.2f", summary.PortfolioValue),
		"pnl", fmt.Sprintf("$%+.2f", summary.TotalPnL),
		"elapsed", o.now().Sub(start).Round(time.Millisecond),
	)
	return nil
}

// reset replaces the Position with a fresh snapshot and clears trade history.
func (o *Orchestrator) reset(ctx context.Context) error {
	balances, err := o.deps.Balances.Balances(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator.reset: balances: %w", err)
	}
	price, err := o.deps.Price.Price(ctx, o.cfg.Asset)
	if err != nil {
		return fmt.Errorf("orchestrator.reset: price: %w", err)
	}
	settings := o.deps.Settings.Current()
	index := o.deps.Sentiment.FetchIndex(ctx)
	sentiment := domain.Classify(float64(index), settings.Boundaries)

	if err := o.deps.Journal.ClearTrades(ctx); err != nil {
		return fmt.Errorf("orchestrator.reset: clear trades: %w", err)
	}
	pos := domain.NewPosition(balances, price, o.now())
	o.pos = pos
	o.resetPending = false

	summary := o.summarize(pos, price, index, sentiment, settings)
	if err := o.persist(ctx, pos, summary, settings); err != nil {
		slog.Error("orchestrator: state not persisted", "err", err)
	}
	o.publish(ctx, summary)

	slog.Info("orchestrator: session reset",
		"asset", fmt.Sprintf("%.6f", balances.Asset),
		"stable", fmt.Sprintf("$%.2f", balances.Stable),
		"price", fmt.Sprintf("$%.2f", price),
		"value", fmt.Sprintf("$%.2f", pos.InitialValue),
	)
	return nil
}

func (o *Orchestrator) summarize(pos *domain.Position, price float64, index int, s domain.Sentiment, settings domain.Settings) domain.Summary {
	summary := domain.Summarize(pos, price, index, s, o.now())
	summary.Version = o.cfg.Version
	summary.MonitorMode = settings.MonitorMode
	return summary
}

func (o *Orchestrator) persist(ctx context.Context, pos *domain.Position, summary domain.Summary, settings domain.Settings) error {
	return o.deps.State.Save(ctx, domain.PersistedState{
		Position: pos.Clone(),
		Summary:  summary,
		Settings: settings,
		SavedAt:  o.now(),
	})
}

func (o *Orchestrator) publish(ctx context.Context, s domain.Summary) {
	for _, p := range o.deps.Publishers {
		if err := p.Publish(ctx, s); err != nil {
			slog.Warn("orchestrator: publish failed", "err", err)
		}
	}
}

// RunCycle runs a single cycle synchronously, outside the schedule. The session
// is restored first if Run has not done it.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if o.pos == nil {
		o.startup(ctx)
	}
	return o.cycle(ctx)
}

// Position returns a copy of the current Position, or nil before the first reset.
// Only safe while Run is not active.
func (o *Orchestrator) Position() *domain.Position {
	if o.pos == nil {
		return nil
	}
	return o.pos.Clone()
}
