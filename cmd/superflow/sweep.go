package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/craftai-co-in/superflow/internal/billing"
	"github.com/craftai-co-in/superflow/internal/logging"
	"github.com/craftai-co-in/superflow/internal/netutil"
	"github.com/craftai-co-in/superflow/internal/server"
	"github.com/craftai-co-in/superflow/internal/store"
)

var notifierFor = server.NewNotifier

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Downgrade every premium user whose plan has expired",
	Long: `Runs one batch expiry sweep against the database and exits.
Expired plans are also downgraded lazily on the user's next request, so this
is only needed for reporting or when SUPERFLOW_SWEEP_SCHEDULE is not used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logging.Init(logging.Config{
			Format:    cfg.LogFormat,
			Level:     cfg.LogLevel,
			Component: "sweep",
			FilePath:  cfg.LogFile,
		})
		defer logging.Shutdown()

		s, err := store.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		// The sweep exits right after, so expiry emails go out synchronously.
		notifier := notifierFor(cfg, netutil.NewDialer())
		sweeper := billing.NewSweeper(s)
		sweeper.OnDowngrade(notifier.PlanExpired)

		count, err := sweeper.SweepAll(cmd.Context())
		if err != nil {
			return err
		}
		log.Info().Int("downgraded", count).Msg("Expiry sweep finished")
		fmt.Fprintf(cmd.OutOrStdout(), "Downgraded %d expired plan(s)\n", count)
		return nil
	},
}
