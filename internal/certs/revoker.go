package certs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamscao/certchain/internal/models"
	"github.com/adamscao/certchain/internal/policy"
)

// Metadata keys stamped on revocation
const (
	MetaRevokedAt    = "revokedAt"
	MetaRevokedBy    = "revokedBy"
	MetaRevocationTx = "revocationTx"
)

// Revoker moves issued certificates to REVOKED
type Revoker struct {
	store     Store
	ledger    Ledger
	validator *policy.Validator
	stream    string
	logger    *slog.Logger
	now       func() time.Time
}

// NewRevoker creates a new revocation coordinator
func NewRevoker(store Store, ledger Ledger, validator *policy.Validator, stream string, opts ...Option) *Revoker {
	s := newSettings("revoker", opts)
	return &Revoker{
		store:     store,
		ledger:    ledger,
		validator: validator,
		stream:    stream,
		logger:    s.logger,
		now:       s.now,
	}
}

// maxRevokeAttempts bounds how often Revoke re-reads a record that changed
// under it.
const maxRevokeAttempts = 3

// Revoke appends a REVOKED entry for the certificate and then marks the
// local record revoked. If the append fails the local record is unchanged.
// When the record is re-anchored concurrently the revocation is appended
// again on top, so the latest ledger entry for a revoked certificate is
// always REVOKED.
func (r *Revoker) Revoke(ctx context.Context, certificateID, actor string) (*models.CertificateRecord, error) {
	if err := r.validator.ValidateActor(actor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	for attempt := 1; ; attempt++ {
		revoked, err := r.revokeOnce(ctx, certificateID, actor)
		if !errors.Is(err, models.ErrStale) {
			return revoked, err
		}
		if attempt == maxRevokeAttempts {
			return nil, fmt.Errorf("certificate %s: %w", certificateID, ErrConflict)
		}
		r.logger.Warn("certificate changed during revocation, retrying",
			"certificate_id", certificateID,
			"attempt", attempt,
		)
	}
}

func (r *Revoker) revokeOnce(ctx context.Context, certificateID, actor string) (*models.CertificateRecord, error) {
	cert, err := r.store.GetByCertificateID(ctx, certificateID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("certificate %s: %w", certificateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Status == models.StatusRevoked {
		return nil, fmt.Errorf("certificate %s: %w", certificateID, ErrAlreadyRevoked)
	}
	if !cert.Status.CanTransitionTo(models.StatusRevoked) {
		return nil, fmt.Errorf("certificate %s is %s: %w", certificateID, cert.Status, ErrInvalidTransition)
	}

	metadata := cert.Metadata.Merge(models.Metadata{
		MetaRevokedAt: r.now().UTC().Format(time.RFC3339),
		MetaRevokedBy: actor,
	})
	payload, err := NewPayload(cert, models.StatusRevoked, metadata).Marshal()
	if err != nil {
		return nil, err
	}

	txid, err := r.ledger.Publish(ctx, r.stream, certificateID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to anchor revocation: %w", err)
	}

	revoked := cert.Clone()
	revoked.Status = models.StatusRevoked
	revoked.Metadata = metadata.Merge(models.Metadata{MetaRevocationTx: txid})
	if err := r.store.Update(ctx, revoked, cert.Revision()); err != nil {
		if errors.Is(err, models.ErrStale) {
			return nil, err
		}
		// The ledger already says REVOKED, which verification honours.
		r.logger.Error("failed to record revocation locally",
			"certificate_id", certificateID,
			"ledger_tx", txid,
			"error", err,
		)
		return nil, fmt.Errorf("failed to record revocation: %w", err)
	}

	r.logger.Info("certificate revoked",
		"certificate_id", certificateID,
		"actor", actor,
		"ledger_tx", txid,
	)
	return revoked, nil
}
