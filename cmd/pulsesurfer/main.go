package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alejandrodnm/pulsesurfer/config"
	"github.com/spf13/cobra"
)

// version se sobreescribe en build con -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	verbose    bool
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	run := newRunCmd(flags)

	root := &cobra.Command{
		Use:           "pulsesurfer",
		Short:         "Sentiment-driven SOL/USDC rebalancing bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		// sin subcomando: run
		RunE: run.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "set log level to debug")
	root.PersistentFlags().StringVar(&flags.logFormat, "format", "", "log format: text|json (overrides config)")
	root.Flags().AddFlagSet(run.Flags())

	root.AddCommand(run)
	root.AddCommand(newReportCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig carga el YAML y configura el logger global.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", flags.configPath)
		return nil, err
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pulsesurfer %s\n", version)
		},
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
