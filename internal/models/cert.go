package models

import (
	"time"

	"github.com/adamscao/certchain/pkg/certhash"
)

// Status is the lifecycle state of a certificate record
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusIssued  Status = "ISSUED"
	StatusRevoked Status = "REVOKED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusRevoked:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// The only permitted moves are DRAFT -> ISSUED and ISSUED -> REVOKED.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusIssued
	case StatusIssued:
		return next == StatusRevoked
	}
	return false
}

// CertificateRecord represents an academic certificate and its ledger linkage
type CertificateRecord struct {
	ID                 int64     `json:"id"`
	CertificateID      string    `json:"certificate_id"`
	InstitutionID      int64     `json:"institution"`
	InstitutionName    string    `json:"institution_name"`
	InstitutionAddress string    `json:"institution_address"`
	StudentName        string    `json:"student_name"`
	StudentID          string    `json:"student_id"`
	StudentEmail       string    `json:"student_email,omitempty"`
	Course             string    `json:"course"`
	Grade              string    `json:"grade,omitempty"`
	IssueDate          Date      `json:"issue_date"`
	ExpiryDate         *Date     `json:"expiry_date,omitempty"`
	LedgerTx           string    `json:"ledger_tx"`
	Status             Status    `json:"status"`
	Metadata           Metadata  `json:"metadata"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Revision identifies the lifecycle state a record was read in. Updates are
// conditional on the stored row still being at the same revision.
type Revision struct {
	Status   Status
	LedgerTx string
}

// Revision returns the record's current revision
func (c *CertificateRecord) Revision() Revision {
	return Revision{Status: c.Status, LedgerTx: c.LedgerTx}
}

// HashFields returns the descriptive fields the certificate id is derived from
func (c *CertificateRecord) HashFields() certhash.Fields {
	return certhash.Fields{
		StudentName:     c.StudentName,
		StudentID:       c.StudentID,
		StudentEmail:    c.StudentEmail,
		Course:          c.Course,
		Grade:           c.Grade,
		IssueDate:       c.IssueDate.Time,
		InstitutionID:   c.InstitutionID,
		InstitutionName: c.InstitutionName,
	}
}

// Fingerprint recomputes the certificate id from the current field values
func (c *CertificateRecord) Fingerprint() string {
	return certhash.Fingerprint(c.HashFields())
}

// ExpiredAt reports whether the certificate's expiry date lies before the
// calendar date of now. A certificate expiring today is still valid.
func (c *CertificateRecord) ExpiredAt(now time.Time) bool {
	if c.ExpiryDate == nil || c.ExpiryDate.IsZero() {
		return false
	}
	return c.ExpiryDate.Before(DateOf(now).Time)
}

// Clone returns a deep copy of the record
func (c *CertificateRecord) Clone() *CertificateRecord {
	out := *c
	if c.ExpiryDate != nil {
		d := *c.ExpiryDate
		out.ExpiryDate = &d
	}
	out.Metadata = c.Metadata.Clone()
	return &out
}
