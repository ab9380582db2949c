package main

import (
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/notify"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/storage"
	"github.com/spf13/cobra"
)

func newReportCmd(root *rootFlags) *cobra.Command {
	var samples int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the saved session, recent samples and trade history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			state, err := storage.NewFileStateStore(cfg.Storage.StatePath)
			if err != nil {
				return err
			}
			st, err := state.Load(ctx)
			if err != nil {
				return err
			}

			journal, err := storage.NewSQLiteJournal(cfg.Storage.JournalDSN)
			if err != nil {
				return err
			}
			defer journal.Close()

			recent, err := journal.RecentSamples(ctx, samples)
			if err != nil {
				return err
			}
			trades, err := journal.Trades(ctx)
			if err != nil {
				return err
			}
			notify.WriteReport(cmd.OutOrStdout(), st, recent, trades)
			return nil
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 20, "number of recent samples to show")
	return cmd
}
