package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork/internal/config"
	"github.com/afrarahimemadak/stellarwork/internal/logging"
)

const version = "0.1.0"

type rootOptions struct {
	configFile string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "stellarwork",
		Short:         "StellarWork wallet payment service",
		Long:          "Connects wallets, quotes freelancer listings and pays them in the ledger's native asset.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.App.Env, cfg.App.LogLevel)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				logging.Sync(opts.logger)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./config.yaml or ./config/config.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newBalanceCmd(opts),
		newQuoteCmd(opts),
		newPayCmd(opts),
	)
	return cmd
}
