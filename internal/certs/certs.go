// Package certs coordinates the certificate lifecycle between the local store
// and the ledger stream. The ledger is the source of truth: a local record is
// promoted to ISSUED or REVOKED only after the matching ledger append has
// succeeded, and a failed append never leaves a local state change behind.
package certs

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"time"

	"github.com/adamscao/certchain/internal/ledger"
	"github.com/adamscao/certchain/internal/models"
)

// Store persists certificate records
type Store interface {
	Insert(ctx context.Context, cert *models.CertificateRecord) error
	GetByCertificateID(ctx context.Context, certificateID string) (*models.CertificateRecord, error)
	Update(ctx context.Context, cert *models.CertificateRecord, from models.Revision) error
	Delete(ctx context.Context, certificateID string) error
}

// Institutions resolves the institution a certificate is issued by
type Institutions interface {
	GetByID(ctx context.Context, id int64) (*models.Institution, error)
}

// Ledger is the append-only stream certificates are anchored to
type Ledger interface {
	Publish(ctx context.Context, stream, key string, payload json.RawMessage) (string, error)
	GetLatest(ctx context.Context, stream, key string) (*ledger.Entry, error)
	ListAll(ctx context.Context, stream string) iter.Seq2[ledger.Entry, error]
}

type settings struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a coordinator
type Option func(*settings)

// WithLogger sets the coordinator's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func newSettings(component string, opts []Option) settings {
	s := settings{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With("component", component)
	return s
}
