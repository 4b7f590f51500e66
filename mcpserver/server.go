// Package mcpserver exposes read-only payment tools over the Model Context
// Protocol: account balances and job quotes. Paying stays with the signing
// agent and is not offered as a tool.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/convert"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/validation"
)

// Tool names.
const (
	ToolGetBalance   = "get_balance"
	ToolQuotePayment = "quote_payment"
)

// AccountReader reads account snapshots. Implemented by *ledger.Client.
type AccountReader interface {
	FetchAccount(ctx context.Context, address stellarwork.WalletAddress) (*stellarwork.AccountSnapshot, error)
}

// Listings finds freelancer listings. Implemented by *identity.Client.
type Listings interface {
	GetFreelancerJob(ctx context.Context, id int64) (*identity.FreelancerJob, error)
}

// Config holds the server's dependencies.
type Config struct {
	Accounts AccountReader
	Listings Listings

	// Rate is the fiat value of one native unit. Zero means convert.DefaultRate.
	Rate decimal.Decimal

	// Logger is the logger for the server. If nil, logging is disabled.
	Logger *zap.Logger
}

// Server wraps an MCP server with the payment tools registered.
type Server struct {
	mcpServer *server.MCPServer
	config    Config
	logger    *zap.Logger
}

// BalanceResult is the JSON body of get_balance.
type BalanceResult struct {
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	Sequence int64  `json:"sequence,omitempty"`
	Funded   bool   `json:"funded"`
}

// QuoteResult is the JSON body of quote_payment.
type QuoteResult struct {
	JobID        int64  `json:"jobId"`
	Title        string `json:"title"`
	Hours        string `json:"hours"`
	HourlyRate   string `json:"hourlyRate"`
	FiatAmount   string `json:"fiatAmount"`
	LedgerAmount string `json:"ledgerAmount"`
	Payee        string `json:"payee,omitempty"`
}

// New creates a Server.
func New(name, version string, config Config) *Server {
	if config.Rate.IsZero() {
		config.Rate = convert.DefaultRate
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		config:    config,
		logger:    logger,
	}

	s.mcpServer.AddTool(mcp.NewTool(
		ToolGetBalance,
		mcp.WithDescription("Native balance of a ledger account, two decimals"),
		mcp.WithString("address", mcp.Required(), mcp.Description("Account address (G...)")),
	), s.handleGetBalance)

	s.mcpServer.AddTool(mcp.NewTool(
		ToolQuotePayment,
		mcp.WithDescription("Price hours of work on a freelancer listing in fiat and in the native asset"),
		mcp.WithNumber("job_id", mcp.Required(), mcp.Description("Freelancer listing id")),
		mcp.WithString("hours", mcp.Required(), mcp.Description("Hours of work, e.g. \"2.5\"")),
	), s.handleQuotePayment)

	return s
}

// Handler returns the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// ServeStdio serves the tools over stdin/stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) handleGetBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	address, _ := args["address"].(string)
	if err := validation.ValidateAddress(address); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := BalanceResult{Address: address}
	snapshot, err := s.config.Accounts.FetchAccount(ctx, stellarwork.WalletAddress(address))
	switch {
	case errors.Is(err, stellarwork.ErrAccountNotFound):
		res.Balance = "0.00"
	case err != nil:
		s.logger.Warn("get_balance failed", zap.String("address", stellarwork.WalletAddress(address).Short()), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("ledger unavailable: %v", err)), nil
	default:
		res.Balance = convert.FormatDisplay(snapshot.NativeBalance)
		res.Sequence = snapshot.SequenceNumber
		res.Funded = true
	}
	return jsonResult(res)
}

func (s *Server) handleQuotePayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	jobID, err := intArg(args["job_id"])
	if err != nil {
		return mcp.NewToolResultError("job_id: " + err.Error()), nil
	}
	hours, err := decimalArg(args["hours"])
	if err != nil {
		return mcp.NewToolResultError("hours: " + err.Error()), nil
	}

	job, err := s.config.Listings.GetFreelancerJob(ctx, jobID)
	if errors.Is(err, identity.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no freelancer listing with id %d", jobID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marketplace unavailable: %v", err)), nil
	}

	q, err := convert.NewQuote(hours, job.Rate(), s.config.Rate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(QuoteResult{
		JobID:        job.ID,
		Title:        job.Title,
		Hours:        q.Hours.String(),
		HourlyRate:   convert.FormatDisplay(q.HourlyRate),
		FiatAmount:   q.FiatDisplay(),
		LedgerAmount: q.LedgerDisplay(),
		Payee:        string(job.WalletAddress),
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func intArg(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) || n <= 0 {
			return 0, fmt.Errorf("must be a positive integer, got %v", n)
		}
		return int64(n), nil
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("must be a positive integer, got %q", n)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("required")
	}
}

func decimalArg(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case string:
		return convert.Parse(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Zero, fmt.Errorf("required")
	}
}
