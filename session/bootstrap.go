// Package session connects a wallet, reconciles it with the identity service
// and keeps the resulting SessionContext in a Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// Directory is the identity service. Implemented by *identity.Client.
type Directory interface {
	LookupByAddress(ctx context.Context, address stellarwork.WalletAddress) (identity.LookupResult, error)
	CreateUser(ctx context.Context, in identity.UserCreate) (*identity.User, error)
}

// BalanceReader renders the header balance. Implemented by *ledger.Client.
type BalanceReader interface {
	DisplayBalance(ctx context.Context, address stellarwork.WalletAddress) string
}

// Route is where the client goes after connecting.
type Route string

const (
	RouteMarketplace        Route = "marketplace"
	RouteRegisterFreelancer Route = "register_freelancer"
	RouteRegisterEmployer   Route = "register_employer"
)

// NoticeKind classifies the message shown after connecting.
type NoticeKind string

const (
	NoticeWelcome      NoticeKind = "welcome"
	NoticeRoleMismatch NoticeKind = "role_mismatch"
	NoticeRegister     NoticeKind = "register"
)

// Notice is a user-facing message.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	Session stellarwork.SessionContext `json:"session"`
	Route   Route                      `json:"route"`
	Notice  Notice                     `json:"notice"`
	User    *identity.User             `json:"user,omitempty"`

	// Balance is the display balance, empty when no BalanceReader is set.
	Balance string `json:"balance,omitempty"`
}

// Bootstrapper runs the connect flow.
type Bootstrapper struct {
	agent     stellarwork.Agent
	directory Directory
	store     Store
	balances  BalanceReader
	logger    *zap.Logger
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithBalances shows the balance on connect.
func WithBalances(balances BalanceReader) Option {
	return func(b *Bootstrapper) {
		b.balances = balances
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bootstrapper) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(agent stellarwork.Agent, directory Directory, store Store, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		agent:     agent,
		directory: directory,
		store:     store,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect asks the agent for an address, looks up its identity and opens a
// session. A wallet registered under another role keeps its stored role.
func (b *Bootstrapper) Connect(ctx context.Context, role stellarwork.Role) (*ConnectResult, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", stellarwork.ErrInvalidInput, role)
	}
	if !b.agent.Detect(ctx) {
		return nil, fmt.Errorf("%w: no signing agent detected", stellarwork.ErrAgentUnavailable)
	}

	address, err := b.agent.RequestAddress(ctx)
	if err != nil {
		b.logger.Info("wallet connect failed", zap.Error(err))
		return nil, err
	}
	if err := validation.ValidateAddress(string(address)); err != nil {
		return nil, fmt.Errorf("%w: agent returned %v", stellarwork.ErrAgentError, err)
	}

	lookup, err := b.directory.LookupByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}

	res := &ConnectResult{
		Session: stellarwork.SessionContext{
			ID:            uuid.NewString(),
			WalletAddress: address,
			Role:          role,
		},
	}

	switch {
	case !lookup.Exists || lookup.User == nil:
		res.Route = registrationRoute(role)
		res.Notice = Notice{
			Kind:    NoticeRegister,
			Title:   "Complete your profile",
			Message: fmt.Sprintf("Register as %s to continue", role),
		}
	case lookup.User.UserType.Valid() && lookup.User.UserType != role:
		user := lookup.User
		res.Session.Role = user.UserType
		res.Session.UserID = &user.ID
		res.User = user
		res.Route = RouteMarketplace
		res.Notice = Notice{
			Kind:    NoticeRoleMismatch,
			Title:   "Role Mismatch",
			Message: fmt.Sprintf("This wallet is registered as %s", user.UserType),
		}
	default:
		user := lookup.User
		res.Session.UserID = &user.ID
		res.User = user
		res.Route = RouteMarketplace
		res.Notice = Notice{
			Kind:    NoticeWelcome,
			Title:   "Welcome back!",
			Message: fmt.Sprintf("Connected as %s", user.FullName),
		}
	}

	if err := b.store.Create(ctx, res.Session); err != nil {
		return nil, err
	}
	if b.balances != nil {
		res.Balance = b.balances.DisplayBalance(ctx, address)
	}

	b.logger.Info("wallet connected",
		zap.String("session", res.Session.ID),
		zap.String("address", address.Short()),
		zap.String("role", string(res.Session.Role)),
		zap.String("route", string(res.Route)),
		zap.String("notice", string(res.Notice.Kind)),
	)
	return res, nil
}

// Register completes registration for a session that has no identity yet,
// using the session's wallet and role.
func (b *Bootstrapper) Register(ctx context.Context, sessionID, fullName, email string) (*identity.User, error) {
	sc, err := b.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sc.UserID != nil {
		return nil, fmt.Errorf("%w: session already has user %d", stellarwork.ErrInvalidInput, *sc.UserID)
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, fmt.Errorf("%w: full name cannot be empty", stellarwork.ErrInvalidInput)
	}

	user, err := b.directory.CreateUser(ctx, identity.UserCreate{
		FullName:      strings.TrimSpace(fullName),
		WalletAddress: sc.WalletAddress,
		Email:         strings.TrimSpace(email),
		UserType:      sc.Role,
	})
	if err != nil {
		return nil, err
	}
	if err := b.store.SetUserID(ctx, sessionID, user.ID); err != nil {
		return nil, err
	}
	b.logger.Info("user registered", zap.String("session", sessionID), zap.Int64("user", user.ID))
	return user, nil
}

// Session returns the stored session.
func (b *Bootstrapper) Session(ctx context.Context, sessionID string) (*stellarwork.SessionContext, error) {
	return b.store.Get(ctx, sessionID)
}

// Disconnect clears the session.
func (b *Bootstrapper) Disconnect(ctx context.Context, sessionID string) error {
	if _, err := b.store.Get(ctx, sessionID); err != nil {
		if errors.Is(err, stellarwork.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := b.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	b.logger.Info("wallet disconnected", zap.String("session", sessionID))
	return nil
}

func registrationRoute(role stellarwork.Role) Route {
	if role == stellarwork.RoleEmployer {
		return RouteRegisterEmployer
	}
	return RouteRegisterFreelancer
}
