package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/validation"
)

func newBalanceCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the native balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateAddress(args[0]); err != nil {
				return err
			}
			a, err := newApp(root.cfg, root.logger)
			if err != nil {
				return err
			}
			balance := a.ledger.DisplayBalance(cmd.Context(), stellarwork.WalletAddress(args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", balance, a.network.Name)
			return nil
		},
	}
}
