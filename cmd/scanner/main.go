package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/radio-scanner/cmd/scanner/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(logger, &logLevel).ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	var configPath string

	loadConfig := func() (*app.Config, error) {
		if configPath == "" {
			return nil, errors.New("no configuration file provided")
		}
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		logLevel.Set(config.Settings.LogLevel)
		return config, nil
	}

	root := &cobra.Command{
		Use:           "scanner",
		Short:         "Software defined radio receiver and scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Receive and scan according to the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), config, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Long:  "List the devices of the configured driver, or of every hardware driver when no configuration is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var config *app.Config
			if configPath != "" {
				var err error
				if config, err = loadConfig(); err != nil {
					return err
				}
			}
			return app.ListDevices(cmd.Context(), config, cmd.OutOrStdout(), logger)
		},
	})

	var (
		sessionID int64
		limit     int
	)
	history := &cobra.Command{
		Use:   "history",
		Short: "Show recorded sessions and their activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return app.History(cmd.Context(), config, sessionID, limit, cmd.OutOrStdout())
		},
	}
	history.Flags().Int64VarP(&sessionID, "session", "s", 0, "session to show, all sessions when omitted")
	history.Flags().IntVarP(&limit, "limit", "n", 20, "number of busiest frequencies to show")
	root.AddCommand(history)

	return root
}
