package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certchain/internal/certs"
)

const maxLedgerListLimit = 1000

// LedgerHandler exposes the raw certificate stream
type LedgerHandler struct {
	verifier *certs.Verifier
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(verifier *certs.Verifier) *LedgerHandler {
	return &LedgerHandler{verifier: verifier}
}

// ListCertificates returns decoded stream entries in append order
// GET /v1/ledger/certificates?limit=N
func (h *LedgerHandler) ListCertificates(c *gin.Context) {
	limit := maxLedgerListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLedgerListLimit)
	}

	entries, err := h.verifier.ListLedger(c.Request.Context(), limit)
	if err != nil {
		respondFailure(c, err)
		return
	}
	if entries == nil {
		entries = []certs.AnchoredEntry{}
	}

	RespondSuccess(c, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}
