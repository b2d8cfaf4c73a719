package certs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamscao/certchain/internal/ledger"
	"github.com/adamscao/certchain/internal/models"
	"github.com/adamscao/certchain/pkg/certhash"
)

// Reason explains a negative verdict
type Reason string

const (
	ReasonNotFound       Reason = "not_found"
	ReasonExpired        Reason = "expired"
	ReasonRevoked        Reason = "revoked"
	ReasonNoLedgerRecord Reason = "no_ledger_record"
	ReasonHashMismatch   Reason = "hash_mismatch"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:       "Certificate not found",
	ReasonExpired:        "Certificate has expired",
	ReasonRevoked:        "Certificate has been revoked",
	ReasonNoLedgerRecord: "Certificate not found on the ledger",
	ReasonHashMismatch:   "Certificate data does not match the ledger record",
}

// Verdict is the outcome of verifying a certificate
type Verdict struct {
	Valid         bool                      `json:"valid"`
	Reason        Reason                    `json:"reason,omitempty"`
	Message       string                    `json:"message"`
	Certificate   *models.CertificateRecord `json:"certificate,omitempty"`
	LedgerPayload json.RawMessage           `json:"ledger_payload,omitempty"`
	LedgerTx      string                    `json:"ledger_tx,omitempty"`
}

func invalid(reason Reason, cert *models.CertificateRecord) *Verdict {
	return &Verdict{
		Reason:      reason,
		Message:     reasonMessages[reason],
		Certificate: cert,
	}
}

// Verifier cross-checks local records against the ledger
type Verifier struct {
	store  Store
	ledger Ledger
	stream string
	logger *slog.Logger
	now    func() time.Time
}

// NewVerifier creates a new verification engine
func NewVerifier(store Store, ledger Ledger, stream string, opts ...Option) *Verifier {
	s := newSettings("verifier", opts)
	return &Verifier{
		store:  store,
		ledger: ledger,
		stream: stream,
		logger: s.logger,
		now:    s.now,
	}
}

// Verify decides whether a certificate can be trusted. Checks run in a fixed
// order and stop at the first failure. Errors are only returned when the
// store or the ledger could not be consulted.
func (v *Verifier) Verify(ctx context.Context, certificateID string) (*Verdict, error) {
	cert, err := v.store.GetByCertificateID(ctx, certificateID)
	if errors.Is(err, models.ErrNotFound) {
		return invalid(ReasonNotFound, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.ExpiredAt(v.now()) {
		return invalid(ReasonExpired, cert), nil
	}
	if cert.Status == models.StatusRevoked {
		return invalid(ReasonRevoked, cert), nil
	}

	entry, err := v.ledger.GetLatest(ctx, v.stream, certificateID)
	if errors.Is(err, ledger.ErrUndecodable) && entry != nil {
		v.logger.Warn("undecodable ledger item", "certificate_id", certificateID, "ledger_tx", entry.TxID, "error", err)
		verdict := invalid(ReasonHashMismatch, cert)
		verdict.LedgerTx = entry.TxID
		return verdict, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if entry == nil {
		return invalid(ReasonNoLedgerRecord, cert), nil
	}

	verdict := invalid(ReasonHashMismatch, cert)
	verdict.LedgerPayload = entry.Payload
	verdict.LedgerTx = entry.TxID

	payload, err := ParsePayload(entry.Payload)
	if err != nil {
		v.logger.Warn("malformed ledger payload", "certificate_id", certificateID, "error", err)
		return verdict, nil
	}
	if !certhash.Matches(cert.Fingerprint(), payload.Fingerprint()) {
		return verdict, nil
	}
	if payload.HasFields() {
		recomputed, err := payload.Recompute()
		if err != nil || !certhash.Matches(recomputed, payload.Fingerprint()) {
			return verdict, nil
		}
	}

	if payload.Status == models.StatusRevoked {
		verdict.Reason = ReasonRevoked
		verdict.Message = reasonMessages[ReasonRevoked]
		return verdict, nil
	}

	verdict.Valid = true
	verdict.Reason = ""
	verdict.Message = "Certificate is valid"
	return verdict, nil
}

// AnchoredEntry is one certificate document found on the ledger stream
type AnchoredEntry struct {
	Key      string          `json:"key"`
	TxID     string          `json:"txid"`
	Position int64           `json:"position"`
	Payload  json.RawMessage `json:"payload"`
}

// ListLedger returns up to limit stream entries in append order. A limit of
// zero or less returns every entry.
func (v *Verifier) ListLedger(ctx context.Context, limit int) ([]AnchoredEntry, error) {
	var entries []AnchoredEntry
	for entry, err := range v.ledger.ListAll(ctx, v.stream) {
		if err != nil {
			return nil, fmt.Errorf("failed to list ledger: %w", err)
		}
		entries = append(entries, AnchoredEntry{
			Key:      entry.Key,
			TxID:     entry.TxID,
			Position: entry.Position,
			Payload:  entry.Payload,
		})
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}
