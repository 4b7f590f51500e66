package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/convert"
	"github.com/afrarahimemadak/stellarwork/encoding"
	"github.com/afrarahimemadak/stellarwork/identity"
	"github.com/afrarahimemadak/stellarwork/payment"
)

type connectRequest struct {
	Role stellarwork.Role `json:"role" binding:"required"`
}

type registerRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email"`
}

type payRequest struct {
	Hours decimal.Decimal `json:"hours"`
}

// QuoteResponse prices a job.
type QuoteResponse struct {
	JobID        int64  `json:"jobId"`
	Hours        string `json:"hours"`
	HourlyRate   string `json:"hourlyRate"`
	Rate         string `json:"rate"`
	FiatAmount   string `json:"fiatAmount"`
	LedgerAmount string `json:"ledgerAmount"`
}

// BalanceResponse is the header balance.
type BalanceResponse struct {
	Address string `json:"address"`
	Short   string `json:"short"`
	Balance string `json:"balance"`
}

// PayStatusResponse describes a payment dialog.
type PayStatusResponse struct {
	State     payment.State        `json:"state"`
	AttemptID string               `json:"attemptId,omitempty"`
	Receipt   *stellarwork.Receipt `json:"receipt,omitempty"`
	Error     *ErrorResponse       `json:"error,omitempty"`
}

func (s *Server) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", stellarwork.ErrInvalidInput, err))
		return
	}
	res, err := s.sessions.Connect(c.Request.Context(), req.Role)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header(SessionHeader, res.Session.ID)
	c.JSON(http.StatusCreated, res)
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c))
}

func (s *Server) disconnect(c *gin.Context) {
	sc := currentSession(c)
	if err := s.sessions.Disconnect(c.Request.Context(), sc.ID); err != nil {
		abortWithError(c, err)
		return
	}
	if n := s.dialogs.CloseSession(sc.ID); n > 0 {
		s.logger.Debug("closed payment dialogs", zap.String("session", sc.ID), zap.Int("dialogs", n))
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", stellarwork.ErrInvalidInput, err))
		return
	}
	user, err := s.sessions.Register(c.Request.Context(), currentSession(c).ID, req.FullName, req.Email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) balance(c *gin.Context) {
	sc := currentSession(c)
	c.JSON(http.StatusOK, BalanceResponse{
		Address: sc.WalletAddress.String(),
		Short:   sc.WalletAddress.Short(),
		Balance: s.balances.DisplayBalance(c.Request.Context(), sc.WalletAddress),
	})
}

func (s *Server) quote(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	hours, err := convert.Parse(c.Query("hours"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	q, err := convert.NewQuote(hours, job.Rate(), s.rate)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuoteResponse{
		JobID:        job.ID,
		Hours:        q.Hours.String(),
		HourlyRate:   convert.FormatDisplay(q.HourlyRate),
		Rate:         q.Rate.String(),
		FiatAmount:   q.FiatDisplay(),
		LedgerAmount: q.LedgerDisplay(),
	})
}

func (s *Server) pay(c *gin.Context) {
	sc := currentSession(c)
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", stellarwork.ErrInvalidInput, err))
		return
	}

	dialog, err := s.dialogs.Open(payment.DialogKey(sc.ID, job.ID))
	if err != nil {
		abortWithError(c, err)
		return
	}

	receipt, err := dialog.Pay(c.Request.Context(), payment.Request{
		Payer: sc.WalletAddress,
		Job:   *job,
		Hours: req.Hours,
	})
	if receipt != nil {
		if header, encErr := encoding.EncodeReceipt(*receipt); encErr == nil {
			c.Header(ReceiptHeader, header)
		} else {
			s.logger.Warn("could not encode receipt header", zap.Error(encErr))
		}
	}
	if err != nil {
		status, body := errorResponse(err)
		body.Receipt = receipt
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// closePay ends a finished dialog so the next pay starts a fresh one.
func (s *Server) closePay(c *gin.Context) {
	sc := currentSession(c)
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	key := payment.DialogKey(sc.ID, jobID)
	dialog, found := s.dialogs.Lookup(key)
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	if err := dialog.Reset(); err != nil {
		abortWithError(c, err)
		return
	}
	if !s.dialogs.Close(key) {
		abortWithError(c, stellarwork.ErrAttemptInProgress)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) payStatus(c *gin.Context) {
	sc := currentSession(c)
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	dialog, found := s.dialogs.Lookup(payment.DialogKey(sc.ID, jobID))
	if !found {
		c.JSON(http.StatusOK, PayStatusResponse{State: payment.StateIdle})
		return
	}
	c.JSON(http.StatusOK, statusResponse(dialog.Status()))
}

func (s *Server) cancelPay(c *gin.Context) {
	sc := currentSession(c)
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	dialog, found := s.dialogs.Lookup(payment.DialogKey(sc.ID, jobID))
	if !found {
		c.JSON(http.StatusOK, gin.H{"canceled": true, "state": payment.StateIdle})
		return
	}
	canceled := dialog.Cancel()
	c.JSON(http.StatusOK, gin.H{"canceled": canceled, "state": dialog.State()})
}

func (s *Server) loadJob(c *gin.Context) (*identity.FreelancerJob, bool) {
	id, ok := parseJobID(c)
	if !ok {
		return nil, false
	}
	job, err := s.listings.GetFreelancerJob(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return job, true
}

func parseJobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, fmt.Errorf("%w: bad job id %q", stellarwork.ErrInvalidInput, c.Param("id")))
		return 0, false
	}
	return id, true
}

func statusResponse(st payment.Status) PayStatusResponse {
	resp := PayStatusResponse{State: st.State, AttemptID: st.AttemptID, Receipt: st.Receipt}
	if st.Error != nil {
		_, body := errorResponse(st.Error)
		resp.Error = &body
	}
	return resp
}
