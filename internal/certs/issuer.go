package certs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adamscao/certchain/internal/models"
	"github.com/adamscao/certchain/internal/policy"
)

// IssueRequest carries the descriptive fields of a certificate to issue
type IssueRequest struct {
	InstitutionID int64
	StudentName   string
	StudentID     string
	StudentEmail  string
	Course        string
	Grade         string
	IssueDate     models.Date
	ExpiryDate    *models.Date
	Metadata      models.Metadata
}

func (r IssueRequest) draft() *models.CertificateRecord {
	cert := &models.CertificateRecord{
		InstitutionID: r.InstitutionID,
		StudentName:   r.StudentName,
		StudentID:     r.StudentID,
		StudentEmail:  r.StudentEmail,
		Course:        r.Course,
		Grade:         r.Grade,
		IssueDate:     r.IssueDate,
		Status:        models.StatusDraft,
		Metadata:      r.Metadata.Clone(),
	}
	if r.ExpiryDate != nil {
		expiry := *r.ExpiryDate
		cert.ExpiryDate = &expiry
	}
	if cert.Metadata == nil {
		cert.Metadata = models.Metadata{}
	}
	return cert
}

// Issuer drafts certificates locally and anchors them on the ledger
type Issuer struct {
	store        Store
	institutions Institutions
	ledger       Ledger
	validator    *policy.Validator
	stream       string
	logger       *slog.Logger
}

// NewIssuer creates a new issuance coordinator
func NewIssuer(store Store, institutions Institutions, ledger Ledger, validator *policy.Validator, stream string, opts ...Option) *Issuer {
	s := newSettings("issuer", opts)
	return &Issuer{
		store:        store,
		institutions: institutions,
		ledger:       ledger,
		validator:    validator,
		stream:       stream,
		logger:       s.logger,
	}
}

// Issue validates req, stores it as a draft, publishes it to the ledger and
// promotes it to ISSUED. When any step after the draft insert fails the draft
// is removed again, so no local record is left without a ledger anchor.
//
// Issuing a certificate whose fields match an existing record re-anchors an
// ISSUED record, and fails with ErrConflict for a draft still in flight or
// ErrAlreadyRevoked for a revoked one. A re-anchor publishes the stored
// record as it is: the request's Metadata is ignored in that case.
func (s *Issuer) Issue(ctx context.Context, req IssueRequest) (*models.CertificateRecord, error) {
	cert := req.draft()
	if err := s.validator.ValidateCertificate(cert); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	inst, err := s.institutions.GetByID(ctx, req.InstitutionID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("institution %d: %w", req.InstitutionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load institution: %w", err)
	}
	cert.InstitutionName = inst.Name
	cert.InstitutionAddress = inst.Address
	cert.CertificateID = cert.Fingerprint()

	logger := s.logger.With("certificate_id", cert.CertificateID)

	if err := s.store.Insert(ctx, cert); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicate):
			return s.reanchor(ctx, cert.CertificateID)
		case errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("institution %d: %w", req.InstitutionID, ErrNotFound)
		default:
			return nil, fmt.Errorf("failed to store draft: %w", err)
		}
	}

	payload, err := NewPayload(cert, models.StatusIssued, cert.Metadata).Marshal()
	if err != nil {
		s.discardDraft(ctx, cert.CertificateID)
		return nil, err
	}

	txid, err := s.ledger.Publish(ctx, s.stream, cert.CertificateID, payload)
	if err != nil {
		logger.Warn("ledger publish failed, discarding draft", "error", err)
		s.discardDraft(ctx, cert.CertificateID)
		return nil, fmt.Errorf("failed to anchor certificate: %w", err)
	}

	draftRev := cert.Revision()
	cert.Status = models.StatusIssued
	cert.LedgerTx = txid
	if err := s.store.Update(ctx, cert, draftRev); err != nil {
		if errors.Is(err, models.ErrStale) {
			// Drafts are only ever moved by their issuer.
			logger.Error("draft changed during issuance", "ledger_tx", txid, "error", err)
			return nil, fmt.Errorf("certificate %s: %w", cert.CertificateID, ErrConflict)
		}
		logger.Error("failed to promote draft after publish, ledger entry is orphaned",
			"ledger_tx", txid,
			"error", err,
		)
		s.discardDraft(ctx, cert.CertificateID)
		return nil, fmt.Errorf("failed to promote certificate: %w", err)
	}

	logger.Info("certificate issued", "ledger_tx", txid)
	return cert, nil
}

// reanchor handles an issuance whose certificate id is already stored
func (s *Issuer) reanchor(ctx context.Context, certificateID string) (*models.CertificateRecord, error) {
	existing, err := s.store.GetByCertificateID(ctx, certificateID)
	if errors.Is(err, models.ErrNotFound) {
		// The competing draft was rolled back between our insert and this read.
		return nil, fmt.Errorf("certificate %s: %w", certificateID, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load existing certificate: %w", err)
	}

	switch existing.Status {
	case models.StatusDraft:
		return nil, fmt.Errorf("certificate %s: %w", certificateID, ErrConflict)
	case models.StatusRevoked:
		return nil, fmt.Errorf("certificate %s: %w", certificateID, ErrAlreadyRevoked)
	}

	payload, err := NewPayload(existing, models.StatusIssued, existing.Metadata).Marshal()
	if err != nil {
		return nil, err
	}
	txid, err := s.ledger.Publish(ctx, s.stream, certificateID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to re-anchor certificate: %w", err)
	}

	updated := existing.Clone()
	updated.LedgerTx = txid
	if err := s.store.Update(ctx, updated, existing.Revision()); err != nil {
		if errors.Is(err, models.ErrStale) {
			return nil, s.lostReanchor(ctx, certificateID, txid)
		}
		return nil, fmt.Errorf("failed to record re-anchor: %w", err)
	}

	s.logger.Info("certificate re-anchored",
		"certificate_id", certificateID,
		"previous_tx", existing.LedgerTx,
		"ledger_tx", txid,
	)
	return updated, nil
}

// lostReanchor handles a re-anchor whose record changed after it was read.
// When a revocation won the race our ISSUED entry now sits above the REVOKED
// one on the ledger, so the revocation is appended again.
func (s *Issuer) lostReanchor(ctx context.Context, certificateID, txid string) error {
	logger := s.logger.With("certificate_id", certificateID, "ledger_tx", txid)

	current, err := s.store.GetByCertificateID(ctx, certificateID)
	if err != nil {
		return fmt.Errorf("failed to reload certificate: %w", err)
	}
	if current.Status != models.StatusRevoked {
		logger.Warn("certificate re-anchored concurrently")
		return fmt.Errorf("certificate %s: %w", certificateID, ErrConflict)
	}

	payload, err := NewPayload(current, models.StatusRevoked, current.Metadata).Marshal()
	if err != nil {
		return err
	}
	restoreTx, err := s.ledger.Publish(context.WithoutCancel(ctx), s.stream, certificateID, payload)
	if err != nil {
		logger.Error("failed to restore revocation after re-anchor", "error", err)
		return fmt.Errorf("failed to restore revocation: %w", err)
	}

	logger.Warn("certificate revoked during re-anchor, revocation restored", "restore_tx", restoreTx)
	return fmt.Errorf("certificate %s: %w", certificateID, ErrAlreadyRevoked)
}

// discardDraft removes a draft even when ctx has already expired
func (s *Issuer) discardDraft(ctx context.Context, certificateID string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), certificateID); err != nil {
		s.logger.Error("failed to discard draft",
			"certificate_id", certificateID,
			"error", err,
		)
	}
}
