package certs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/certchain/internal/models"
	"github.com/adamscao/certchain/pkg/certhash"
)

// InstitutionRef identifies the issuing institution inside a ledger payload
type InstitutionRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Payload is the document appended to the ledger stream under the
// certificate id. Hash carries the fingerprint; entries written before it
// existed only carry CertificateID.
type Payload struct {
	CertificateID string          `json:"certificate_id"`
	Hash          string          `json:"hash,omitempty"`
	StudentName   string          `json:"student_name"`
	StudentID     string          `json:"student_id"`
	StudentEmail  *string         `json:"student_email"`
	Course        string          `json:"course"`
	Grade         string          `json:"grade"`
	IssueDate     string          `json:"issue_date"`
	ExpiryDate    *string         `json:"expiry_date"`
	Institution   InstitutionRef  `json:"institution"`
	Status        models.Status   `json:"status"`
	Metadata      models.Metadata `json:"metadata"`
}

// NewPayload builds the ledger document for cert in the given status
func NewPayload(cert *models.CertificateRecord, status models.Status, metadata models.Metadata) Payload {
	p := Payload{
		CertificateID: cert.CertificateID,
		Hash:          cert.CertificateID,
		StudentName:   cert.StudentName,
		StudentID:     cert.StudentID,
		Course:        cert.Course,
		Grade:         cert.Grade,
		IssueDate:     cert.IssueDate.String(),
		Institution: InstitutionRef{
			ID:      cert.InstitutionID,
			Name:    cert.InstitutionName,
			Address: cert.InstitutionAddress,
		},
		Status:   status,
		Metadata: metadata,
	}
	if cert.StudentEmail != "" {
		email := cert.StudentEmail
		p.StudentEmail = &email
	}
	if cert.ExpiryDate != nil && !cert.ExpiryDate.IsZero() {
		expiry := cert.ExpiryDate.String()
		p.ExpiryDate = &expiry
	}
	if p.Metadata == nil {
		p.Metadata = models.Metadata{}
	}
	return p
}

// ParsePayload decodes a ledger document
func ParsePayload(raw json.RawMessage) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid ledger payload: %w", err)
	}
	return &p, nil
}

// Marshal encodes the payload for publishing
func (p Payload) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger payload: %w", err)
	}
	return data, nil
}

// Fingerprint returns the fingerprint the payload claims
func (p *Payload) Fingerprint() string {
	if p.Hash != "" {
		return p.Hash
	}
	return p.CertificateID
}

// HasFields reports whether the payload carries the descriptive fields
func (p *Payload) HasFields() bool {
	return p.StudentName != "" && p.IssueDate != ""
}

// Recompute hashes the payload's own descriptive fields
func (p *Payload) Recompute() (string, error) {
	if !p.HasFields() {
		return "", errors.New("payload has no descriptive fields")
	}
	issued, err := time.Parse(certhash.DateLayout, p.IssueDate)
	if err != nil {
		return "", fmt.Errorf("invalid issue_date in payload: %w", err)
	}
	fields := certhash.Fields{
		StudentName:     p.StudentName,
		StudentID:       p.StudentID,
		Course:          p.Course,
		Grade:           p.Grade,
		IssueDate:       issued,
		InstitutionID:   p.Institution.ID,
		InstitutionName: p.Institution.Name,
	}
	if p.StudentEmail != nil {
		fields.StudentEmail = *p.StudentEmail
	}
	return certhash.Fingerprint(fields), nil
}
