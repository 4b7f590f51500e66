package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/identity"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Phase   string                 `json:"phase,omitempty"`
	Message string                 `json:"message"`
	Advice  string                 `json:"advice,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Receipt *stellarwork.Receipt   `json:"receipt,omitempty"`
}

var codeStatus = map[stellarwork.ErrorCode]int{
	stellarwork.ErrCodeInvalidInput:          http.StatusBadRequest,
	stellarwork.ErrCodeInvalidAddress:        http.StatusBadRequest,
	stellarwork.ErrCodeAmountTooSmall:        http.StatusBadRequest,
	stellarwork.ErrCodeInsufficientPrecision: http.StatusBadRequest,
	stellarwork.ErrCodeUserDeclined:          http.StatusForbidden,
	stellarwork.ErrCodeCanceled:              http.StatusConflict,
	stellarwork.ErrCodeAccountNotFound:       http.StatusUnprocessableEntity,
	stellarwork.ErrCodeRejectedByNetwork:     http.StatusUnprocessableEntity,
	stellarwork.ErrCodeAgentUnavailable:      http.StatusServiceUnavailable,
	stellarwork.ErrCodeNetworkError:          http.StatusServiceUnavailable,
	stellarwork.ErrCodeAgentError:            http.StatusBadGateway,
	stellarwork.ErrCodeTimeoutOrUnknown:      http.StatusGatewayTimeout,
}

// errorResponse maps err to a status and body. It is the only place errors
// become HTTP statuses.
func errorResponse(err error) (int, ErrorResponse) {
	var pe *stellarwork.PaymentError
	switch {
	case errors.As(err, &pe):
		status, ok := codeStatus[pe.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, ErrorResponse{
			Error:   string(pe.Code),
			Phase:   string(pe.Phase),
			Message: pe.Message,
			Advice:  pe.RetryAdvice(),
			Details: pe.Details,
		}
	case errors.Is(err, stellarwork.ErrAttemptInProgress):
		return http.StatusConflict, ErrorResponse{Error: "attempt_in_progress", Message: err.Error()}
	case errors.Is(err, stellarwork.ErrSessionNotFound):
		return http.StatusUnauthorized, ErrorResponse{Error: "session_not_found", Message: "connect a wallet first"}
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()}
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusBadGateway, ErrorResponse{Error: "identity_unavailable", Message: "marketplace API unavailable"}
	}

	code := stellarwork.CodeFor(err, "")
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, ErrorResponse{Error: string(code), Message: err.Error()}
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.AbortWithStatusJSON(status, body)
}
