package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/agents/keypair"
	"github.com/afrarahimemadak/stellarwork/agents/remote"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/internal/config"
	"github.com/afrarahimemadak/stellarwork/internal/metrics"
	"github.com/afrarahimemadak/stellarwork/ledger"
	"github.com/afrarahimemadak/stellarwork/payment"
	"github.com/afrarahimemadak/stellarwork/session"
	"github.com/afrarahimemadak/stellarwork/submit"
	"github.com/afrarahimemadak/stellarwork/txbuild"
)

// app is the set of clients shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	network stellarwork.NetworkConfig
	rate    decimal.Decimal
	metrics *metrics.Metrics

	ledger    *ledger.Client
	submitter *submit.Submitter
	identity  *identity.Client
	builder   *txbuild.Builder
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	network, err := cfg.Network()
	if err != nil {
		return nil, err
	}
	rate, err := cfg.Rate()
	if err != nil {
		return nil, err
	}
	strategy, err := identity.ParseStrategy(cfg.Identity.Lookup)
	if err != nil {
		return nil, err
	}
	builder, err := txbuild.NewBuilder(
		txbuild.WithBaseFee(cfg.Tx.BaseFee),
		txbuild.WithLogger(logger.Named("txbuild")),
	)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	timeouts := cfg.Timeouts()

	lc := ledger.NewClient(network.HorizonURL)
	lc.Timeouts = timeouts
	lc.MaxAttempts = cfg.Ledger.MaxAttempts
	lc.RetryDelay = cfg.Ledger.RetryDelay
	lc.Logger = logger.Named("ledger")
	lc.OnAfterFetch = m.OnAfterFetch()

	sub := submit.NewSubmitter(network.HorizonURL)
	sub.Timeouts = timeouts
	sub.Logger = logger.Named("submit")
	sub.OnAfterSubmit = m.OnAfterSubmit()

	ic := identity.NewClient(cfg.Identity.BaseURL, strategy)
	ic.Timeout = cfg.Identity.Timeout
	ic.Logger = logger.Named("identity")

	return &app{
		cfg:       cfg,
		logger:    logger,
		network:   network,
		rate:      rate,
		metrics:   m,
		ledger:    lc,
		submitter: sub,
		identity:  ic,
		builder:   builder,
	}, nil
}

// agent builds the configured signing agent. approver is used by the
// keypair agent only; nil accepts every request.
func (a *app) agent(approver keypair.Approver) (stellarwork.Agent, error) {
	switch a.cfg.Agent.Kind {
	case config.AgentKeypair:
		opts := []keypair.Option{keypair.WithLogger(a.logger.Named("agent"))}
		if approver != nil {
			opts = append(opts, keypair.WithApprover(approver))
		}
		return keypair.New(a.cfg.Agent.Secret, opts...)
	case config.AgentRemote:
		ra := remote.New(a.cfg.Agent.URL)
		if a.cfg.Agent.Token != "" {
			ra.Authorization = "Bearer " + a.cfg.Agent.Token
		}
		ra.Logger = a.logger.Named("agent")
		return ra, nil
	default:
		return nil, fmt.Errorf("%w: unknown agent.kind %q", stellarwork.ErrInvalidInput, a.cfg.Agent.Kind)
	}
}

// sessionStore opens the configured session store. The returned func
// releases it.
func (a *app) sessionStore(ctx context.Context) (session.Store, func() error, error) {
	switch a.cfg.Session.Store {
	case config.StoreRedis:
		client, err := session.ConnectRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(client), client.Close, nil
	case config.StoreMemory:
		return session.NewMemoryStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown session.store %q", stellarwork.ErrInvalidInput, a.cfg.Session.Store)
	}
}

// orchestrators returns a factory of payment orchestrators that share the
// app's clients and sign with agent.
func (a *app) orchestrators(agent stellarwork.Agent) payment.Factory {
	return func() (*payment.Orchestrator, error) {
		return payment.New(agent, a.ledger, a.builder, a.submitter, a.identity,
			payment.WithNetwork(a.network.Passphrase),
			payment.WithRate(a.rate),
			payment.WithTimeouts(a.cfg.Timeouts()),
			payment.WithLogger(a.logger.Named("payment")),
			payment.WithCallback(a.metrics.PaymentCallback()),
		)
	}
}
