package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork/api"
	"github.com/afrarahimemadak/stellarwork/internal/logging"
	"github.com/afrarahimemadak/stellarwork/mcpserver"
	"github.com/afrarahimemadak/stellarwork/payment"
	"github.com/afrarahimemadak/stellarwork/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		mountMCP bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = root.cfg.HTTP.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root, addr, mountMCP)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: http.addr)")
	cmd.Flags().BoolVar(&mountMCP, "mcp", false, "also serve the MCP tools at /mcp")
	return cmd
}

func serve(ctx context.Context, root *rootOptions, addr string, mountMCP bool) error {
	logger := root.logger
	a, err := newApp(root.cfg, logger)
	if err != nil {
		return err
	}
	agent, err := a.agent(nil)
	if err != nil {
		return err
	}
	store, closeStore, err := a.sessionStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close session store", zap.Error(err))
		}
	}()

	sessions := session.NewBootstrapper(agent, a.identity, store,
		session.WithBalances(a.ledger),
		session.WithLogger(logger.Named("session")),
	)
	dialogs := payment.NewDialogs(a.orchestrators(agent))

	if root.cfg.App.Env == logging.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.NewServer(sessions, dialogs, a.identity, a.ledger,
		api.WithRate(a.rate),
		api.WithRateLimiter(api.NewRateLimiter(root.cfg.HTTP.RateLimit, root.cfg.HTTP.RateBurst, logger.Named("ratelimit"))),
		api.WithMetrics(a.metrics),
		api.WithLogger(logger.Named("api")),
	)
	router := srv.Router()
	if mountMCP {
		tools := mcpserver.New("stellarwork", version, mcpserver.Config{
			Accounts: a.ledger,
			Listings: a.identity,
			Rate:     a.rate,
			Logger:   logger.Named("mcp"),
		})
		router.Any("/mcp", gin.WrapH(tools.Handler()))
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", addr),
			zap.String("network", a.network.Name),
			zap.String("horizon", a.network.HorizonURL),
			zap.String("agent", root.cfg.Agent.Kind),
			zap.String("session_store", root.cfg.Session.Store),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
