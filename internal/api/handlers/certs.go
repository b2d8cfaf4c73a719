package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certchain/internal/api/middleware"
	"github.com/adamscao/certchain/internal/certs"
	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/models"
)

// CertHandler handles certificate issuance, lookup, verification and
// revocation
type CertHandler struct {
	issuer    *certs.Issuer
	verifier  *certs.Verifier
	revoker   *certs.Revoker
	certRepo  *repository.CertRepository
	auditRepo *repository.AuditRepository
	logger    *slog.Logger
}

// NewCertHandler creates a new certificate handler
func NewCertHandler(
	issuer *certs.Issuer,
	verifier *certs.Verifier,
	revoker *certs.Revoker,
	certRepo *repository.CertRepository,
	auditRepo *repository.AuditRepository,
	logger *slog.Logger,
) *CertHandler {
	return &CertHandler{
		issuer:    issuer,
		verifier:  verifier,
		revoker:   revoker,
		certRepo:  certRepo,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// IssueRequest represents a certificate issue request
type IssueRequest struct {
	Institution  int64           `json:"institution" binding:"required"`
	StudentName  string          `json:"student_name"`
	StudentID    string          `json:"student_id"`
	StudentEmail string          `json:"student_email"`
	Course       string          `json:"course"`
	Grade        string          `json:"grade"`
	IssueDate    models.Date     `json:"issue_date"`
	ExpiryDate   *models.Date    `json:"expiry_date"`
	Metadata     models.Metadata `json:"metadata"`
}

// VerifyRequest represents a verification request
type VerifyRequest struct {
	CertificateID string `json:"certificate_id" binding:"required"`
}

// IssueCertificate handles certificate issuance
// POST /v1/certificates
func (h *CertHandler) IssueCertificate(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	cert, err := h.issuer.Issue(c.Request.Context(), certs.IssueRequest{
		InstitutionID: req.Institution,
		StudentName:   req.StudentName,
		StudentID:     req.StudentID,
		StudentEmail:  req.StudentEmail,
		Course:        req.Course,
		Grade:         req.Grade,
		IssueDate:     req.IssueDate,
		ExpiryDate:    req.ExpiryDate,
		Metadata:      req.Metadata,
	})

	entry := &models.AuditLog{
		Action:  models.ActionCertIssue,
		Actor:   c.GetHeader(middleware.OperatorHeader),
		Success: err == nil,
	}
	if cert != nil {
		entry.CertificateID = cert.CertificateID
	}
	h.audit(c, entry, err)

	if err != nil {
		respondFailure(c, err)
		return
	}

	c.JSON(http.StatusCreated, cert)
}

// GetCertificate returns the local record of a certificate
// GET /v1/certificates/:id
func (h *CertHandler) GetCertificate(c *gin.Context) {
	cert, err := h.certRepo.GetByCertificateID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
		return
	}
	if err != nil {
		respondFailure(c, err)
		return
	}

	RespondSuccess(c, cert)
}

// VerifyCertificate verifies a certificate named in the request body
// POST /v1/certificates/verify
func (h *CertHandler) VerifyCertificate(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "certificate_id is required")
		return
	}
	h.verify(c, req.CertificateID)
}

// VerifyCertificateByID verifies the certificate named in the path
// GET /v1/certificates/:id/verify
func (h *CertHandler) VerifyCertificateByID(c *gin.Context) {
	h.verify(c, c.Param("id"))
}

func (h *CertHandler) verify(c *gin.Context, certificateID string) {
	verdict, err := h.verifier.Verify(c.Request.Context(), certificateID)

	entry := &models.AuditLog{
		Action:        models.ActionCertVerify,
		CertificateID: certificateID,
		Success:       err == nil && verdict.Valid,
	}
	if err == nil && !verdict.Valid {
		entry.Details = string(verdict.Reason)
	}
	h.audit(c, entry, err)

	if err != nil {
		respondFailure(c, err)
		return
	}

	RespondSuccess(c, verdict)
}

// RevokeCertificate revokes a certificate on behalf of the operator
// POST /v1/certificates/:id/revoke
func (h *CertHandler) RevokeCertificate(c *gin.Context) {
	certificateID := c.Param("id")
	operator := middleware.Operator(c)

	cert, err := h.revoker.Revoke(c.Request.Context(), certificateID, operator)
	h.audit(c, &models.AuditLog{
		Action:        models.ActionCertRevoke,
		Actor:         operator,
		CertificateID: certificateID,
		Success:       err == nil,
	}, err)

	if err != nil {
		respondFailure(c, err)
		return
	}

	RespondSuccess(c, cert)
}

// audit records an audit row. Failing to write it never fails the request.
func (h *CertHandler) audit(c *gin.Context, entry *models.AuditLog, cause error) {
	entry.ClientIP = GetClientIP(c)
	entry.UserAgent = c.GetHeader("User-Agent")
	if cause != nil {
		entry.ErrorMsg = cause.Error()
	}
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.auditRepo.Create(ctx, entry); err != nil {
		h.logger.Error("failed to write audit log", "action", entry.Action, "error", err)
	}
}
