package policy

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/models"
)

const (
	maxStudentIDLength = 50
	maxGradeLength     = 10
	maxActorLength     = 255
)

// FieldError describes the first field of a request that violates policy
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validator validates certificate fields against policy
type Validator struct {
	config *config.Config
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config) *Validator {
	return &Validator{
		config: cfg,
	}
}

// ValidateCertificate checks the descriptive fields of a certificate before
// it is drafted. Fields are checked in a fixed order and the first violation
// is returned as a *FieldError.
func (v *Validator) ValidateCertificate(c *models.CertificateRecord) error {
	if c.InstitutionID <= 0 {
		return &FieldError{Field: "institution", Message: "is required"}
	}

	maxLen := v.config.Policy.MaxFieldLength
	required := []struct {
		field string
		value string
		max   int
	}{
		{"student_name", c.StudentName, maxLen},
		{"student_id", c.StudentID, min(maxLen, maxStudentIDLength)},
		{"course", c.Course, maxLen},
	}
	for _, r := range required {
		if err := checkText(r.field, r.value, r.max, true); err != nil {
			return err
		}
	}

	if c.StudentEmail != "" {
		if err := checkText("student_email", c.StudentEmail, maxLen, false); err != nil {
			return err
		}
		addr, err := mail.ParseAddress(c.StudentEmail)
		if err != nil || addr.Address != c.StudentEmail {
			return &FieldError{Field: "student_email", Message: "is not a valid email address"}
		}
	}

	if err := checkText("grade", c.Grade, min(maxLen, maxGradeLength), false); err != nil {
		return err
	}
	if c.Grade != "" && len(v.config.Policy.AllowedGrades) > 0 &&
		!slices.Contains(v.config.Policy.AllowedGrades, c.Grade) {
		return &FieldError{
			Field:   "grade",
			Message: fmt.Sprintf("must be one of %s", strings.Join(v.config.Policy.AllowedGrades, ", ")),
		}
	}

	if c.IssueDate.IsZero() {
		return &FieldError{Field: "issue_date", Message: "is required"}
	}
	if c.ExpiryDate != nil && !c.ExpiryDate.IsZero() {
		if c.ExpiryDate.Before(c.IssueDate.Time) {
			return &FieldError{Field: "expiry_date", Message: "must not precede issue_date"}
		}
		if maxValidity := v.GetMaxValidity(); maxValidity > 0 &&
			c.ExpiryDate.Sub(c.IssueDate.Time) > maxValidity {
			return &FieldError{
				Field:   "expiry_date",
				Message: fmt.Sprintf("exceeds the maximum validity of %d days", int(maxValidity/(24*time.Hour))),
			}
		}
	}

	return nil
}

// ValidateActor checks the identity recorded against a revocation
func (v *Validator) ValidateActor(actor string) error {
	return checkText("actor", actor, maxActorLength, true)
}

// GetMaxValidity returns the maximum allowed span between issue and expiry
func (v *Validator) GetMaxValidity() time.Duration {
	return v.config.GetMaxValidityDuration()
}

func checkText(field, value string, maxLen int, required bool) error {
	if required && strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Message: "is required"}
	}
	if value != strings.TrimSpace(value) {
		return &FieldError{Field: field, Message: "must not have leading or trailing whitespace"}
	}
	if !utf8.ValidString(value) {
		return &FieldError{Field: field, Message: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(value); n > maxLen {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxLen)}
	}
	return nil
}
