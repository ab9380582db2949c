package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/pulsesurfer/config"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/cfgi"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/chain"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/dashboard"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/jito"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/jupiter"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/notify"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/settings"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/storage"
	"github.com/alejandrodnm/pulsesurfer/internal/application/executor"
	"github.com/alejandrodnm/pulsesurfer/internal/application/orchestrator"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/ports"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runFlags struct {
	once    bool
	reset   bool
	table   bool
	monitor bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.once, "once", false, "run one cycle and exit")
	cmd.Flags().BoolVar(&flags.reset, "reset", false, "discard persisted state and start a fresh session")
	cmd.Flags().BoolVar(&flags.table, "table", false, "print full tables every cycle (default: compact 1-line)")
	cmd.Flags().BoolVar(&flags.monitor, "monitor", false, "force monitor mode: collect data without trading")
	return cmd
}

func runBot(parent context.Context, cfg *config.Config, flags *runFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		return err
	}

	wallet, err := chain.LoadWallet(cfg.Wallet.PrivateKey)
	if err != nil {
		slog.Error("invalid private key", "err", err)
		return err
	}

	slog.Info("pulsesurfer starting",
		"version", version,
		"wallet", wallet.Address(),
		"schedule", cfg.Trading.Schedule,
		"once", flags.once,
		"reset", flags.reset || cfg.Trading.ResetOnStart,
		"dashboard", cfg.Dashboard.Enabled,
	)

	ledger, err := chain.NewLedger(cfg.Wallet.RPCURL, wallet.PublicKey(), domain.SOL, domain.USDC)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	relayer, err := jito.NewRelayer(cfg.API.BlockEngine, nil)
	if err != nil {
		return fmt.Errorf("relayer: %w", err)
	}
	defer relayer.Close()

	router := jupiter.NewClient(jupiter.Options{
		QuoteBase:          cfg.API.QuoteBase,
		PriceBase:          cfg.API.PriceBase,
		UserPublicKey:      wallet.Address(),
		ReferralAccount:    cfg.API.ReferralAccount,
		SlippageBps:        cfg.Trading.SlippageBps,
		MaxAutoSlippageBps: cfg.Trading.MaxAutoSlippageBps,
		BaseFeeBps:         cfg.Trading.BaseFeeBps,
	})

	store, err := settings.NewFileStore(cfg.Settings.Path, cfg.DefaultSettings())
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if flags.monitor {
		s := store.Current()
		s.MonitorMode = true
		if err := store.Update(parent, s); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}

	state, err := storage.NewFileStateStore(cfg.Storage.StatePath)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	journal, err := storage.NewSQLiteJournal(cfg.Storage.JournalDSN)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.JournalDSN)
		return err
	}
	defer journal.Close()

	exec, err := executor.New(
		router,
		chain.NewBuilder(wallet, ledger),
		relayer,
		ledger,
		jito.NewTipStream(cfg.API.TipStream, cfg.TipTimeout()),
		executor.Config{
			Asset:         domain.SOL,
			Stable:        domain.USDC,
			MaxAttempts:   cfg.Trading.MaxAttempts,
			TotalBudget:   cfg.TotalBudget(),
			RetryDelay:    cfg.RetryDelay(),
			PollInterval:  cfg.PollInterval(),
			BundleTimeout: cfg.BundleTimeout(),
			SlippageBps:   cfg.Trading.SlippageBps,
			Tip: executor.TipConfig{
				Timeout:         cfg.TipTimeout(),
				DefaultLamports: cfg.Trading.DefaultTipLamports,
			},
		},
		executor.WithSignatureChecker(ledger),
		executor.WithTipAccounts(jito.TipAccounts),
	)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	publishers := []ports.Publisher{notify.NewConsole(!flags.table)}
	deps := orchestrator.Deps{
		Price:     router,
		Sentiment: cfgi.NewSource(cfg.API.SentimentURL, 0),
		Balances:  ledger,
		Trader:    exec,
		Settings:  store,
		State:     state,
		Journal:   journal,
	}

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled && !flags.once {
		dash = dashboard.New(store, journal, nil, dashboard.Config{
			Addr:          cfg.Dashboard.Addr,
			AdminPassword: cfg.Dashboard.AdminPassword,
		})
		publishers = append(publishers, dash)
	}
	deps.Publishers = publishers

	orch, err := orchestrator.New(deps, orchestrator.Config{
		Asset:        domain.SOL,
		Schedule:     cfg.Trading.Schedule,
		Version:      version,
		ResetOnStart: flags.reset || cfg.Trading.ResetOnStart,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.once {
		if err := orch.RunCycle(ctx); err != nil {
			slog.Error("cycle failed", "err", err)
			return err
		}
		slog.Info("pulsesurfer: single cycle done")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if dash != nil {
		dash.SetController(orch)
		g.Go(func() error { return dash.Run(ctx) })
	}

	if err := store.Watch(ctx, func(s domain.Settings) {
		if err := orch.NotifySettingsUpdated(); err != nil {
			slog.Warn("settings change not queued", "err", err)
		}
		if dash != nil {
			dash.BroadcastSettings(s)
		}
	}); err != nil {
		slog.Warn("settings hot reload disabled", "err", err)
	}

	g.Go(func() error { return orch.Run(ctx) })

	if err := g.Wait(); err != nil {
		slog.Error("pulsesurfer exited with error", "err", err)
		return err
	}
	slog.Info("pulsesurfer stopped cleanly")
	return nil
}
