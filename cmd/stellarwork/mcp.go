package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork/mcpserver"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	var (
		addr  string
		stdio bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the balance and quote tools over MCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.cfg, root.logger)
			if err != nil {
				return err
			}
			tools := mcpserver.New("stellarwork", version, mcpserver.Config{
				Accounts: a.ledger,
				Listings: a.identity,
				Rate:     a.rate,
				Logger:   root.logger.Named("mcp"),
			})
			if stdio {
				return tools.ServeStdio()
			}

			root.logger.Info("serving MCP", zap.String("addr", addr))
			err = http.ListenAndServe(addr, tools.Handler())
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8765", "listen address for the streamable HTTP transport")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve over stdin/stdout instead of HTTP")
	return cmd
}
