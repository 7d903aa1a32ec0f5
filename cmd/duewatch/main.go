// duewatch scans a mailbox for credit-card statement emails and sends
// payment reminders ahead of each due date.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/duewatch/duewatch/internal/app"
	"github.com/duewatch/duewatch/internal/config"
	"github.com/duewatch/duewatch/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "duewatch",
		Short:         "Credit card statement scanner and payment reminder daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	root.AddCommand(serveCmd(), scanCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies logging setup. Any failure
// here is fatal before a cycle ever runs.
func loadConfig() (*config.Config, error) {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return nil, errLoad
	}
	if errLogging := logging.Setup(cfg.Logging); errLogging != nil {
		return nil, errLogging
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan loop and the observation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, errLoad := loadConfig()
			if errLoad != nil {
				return errLoad
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.RunServer(ctx, cfg)
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run exactly one scan cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, errLoad := loadConfig()
			if errLoad != nil {
				return errLoad
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, errScan := app.RunScan(ctx, cfg)
			if errScan != nil {
				return errScan
			}
			fmt.Printf("cycle %s: scanned=%d matched=%d parsed=%d parse_failures=%d reminders_sent=%d send_failures=%d\n",
				summary.CycleID, summary.MessagesScanned, summary.ProfileMatches, summary.RecordsParsed,
				summary.ParseFailures, summary.RemindersSent, summary.SendFailures)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, errLoad := loadConfig()
			if errLoad != nil {
				return errLoad
			}
			return app.Migrate(cfg)
		},
	}
}
