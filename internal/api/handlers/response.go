package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certchain/internal/certs"
	"github.com/adamscao/certchain/internal/ledger"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// GetClientIP gets the client IP address. Forwarding headers only count when
// the request came through one of the router's trusted proxies.
func GetClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// statusFor maps a coordinator error to an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, certs.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, certs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, certs.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, certs.ErrAlreadyRevoked):
		return http.StatusConflict, "already_revoked"
	case errors.Is(err, certs.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, ledger.ErrRejected):
		return http.StatusBadGateway, "ledger_rejected"
	case errors.Is(err, ledger.ErrUnavailable):
		return http.StatusServiceUnavailable, "ledger_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondFailure writes err using statusFor. Internal errors are not echoed
// to the client.
func respondFailure(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	_ = c.Error(err)
	RespondError(c, status, code, message)
}
