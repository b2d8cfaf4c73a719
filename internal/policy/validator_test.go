package policy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/models"
)

func validRecord() *models.CertificateRecord {
	expiry := models.DateOf(time.Date(2028, 1, 10, 0, 0, 0, 0, time.UTC))
	return &models.CertificateRecord{
		InstitutionID: 1,
		StudentName:   "Ada Lovelace",
		StudentID:     "S-1815",
		StudentEmail:  "ada@example.edu",
		Course:        "Systems Design",
		Grade:         "A",
		IssueDate:     models.DateOf(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		ExpiryDate:    &expiry,
	}
}

func TestValidateCertificate(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.AllowedGrades = []string{"A", "B", "C", "Pass"}
	v := NewValidator(cfg)

	tests := []struct {
		name   string
		mutate func(c *models.CertificateRecord)
		field  string
	}{
		{"valid", func(c *models.CertificateRecord) {}, ""},
		{"no email or grade", func(c *models.CertificateRecord) { c.StudentEmail = ""; c.Grade = "" }, ""},
		{"no expiry", func(c *models.CertificateRecord) { c.ExpiryDate = nil }, ""},
		{"expires on issue date", func(c *models.CertificateRecord) {
			d := c.IssueDate
			c.ExpiryDate = &d
		}, ""},
		{"missing institution", func(c *models.CertificateRecord) { c.InstitutionID = 0 }, "institution"},
		{"missing name", func(c *models.CertificateRecord) { c.StudentName = "  " }, "student_name"},
		{"padded name", func(c *models.CertificateRecord) { c.StudentName = " Ada" }, "student_name"},
		{"long name", func(c *models.CertificateRecord) { c.StudentName = strings.Repeat("a", 256) }, "student_name"},
		{"missing student id", func(c *models.CertificateRecord) { c.StudentID = "" }, "student_id"},
		{"long student id", func(c *models.CertificateRecord) { c.StudentID = strings.Repeat("1", 51) }, "student_id"},
		{"missing course", func(c *models.CertificateRecord) { c.Course = "" }, "course"},
		{"bad email", func(c *models.CertificateRecord) { c.StudentEmail = "not-an-email" }, "student_email"},
		{"named email", func(c *models.CertificateRecord) { c.StudentEmail = "Ada <ada@example.edu>" }, "student_email"},
		{"long grade", func(c *models.CertificateRecord) { c.Grade = "Distinction" }, "grade"},
		{"unknown grade", func(c *models.CertificateRecord) { c.Grade = "F" }, "grade"},
		{"missing issue date", func(c *models.CertificateRecord) { c.IssueDate = models.Date{} }, "issue_date"},
		{"expiry before issue", func(c *models.CertificateRecord) {
			d := models.DateOf(c.IssueDate.AddDate(0, 0, -1))
			c.ExpiryDate = &d
		}, "expiry_date"},
		{"expiry too far", func(c *models.CertificateRecord) {
			d := models.DateOf(c.IssueDate.AddDate(11, 0, 0))
			c.ExpiryDate = &d
		}, "expiry_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validRecord()
			tt.mutate(c)
			err := v.ValidateCertificate(c)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var fieldErr *FieldError
			require.True(t, errors.As(err, &fieldErr), "expected FieldError, got %v", err)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestValidateCertificateAnyGradeWhenUnrestricted(t *testing.T) {
	v := NewValidator(config.Default())
	c := validRecord()
	c.Grade = "F"
	assert.NoError(t, v.ValidateCertificate(c))
}

func TestValidateActor(t *testing.T) {
	v := NewValidator(config.Default())
	assert.NoError(t, v.ValidateActor("registrar@example.edu"))
	assert.Error(t, v.ValidateActor(""))
	assert.Error(t, v.ValidateActor("   "))
	assert.Error(t, v.ValidateActor(strings.Repeat("x", 256)))
}

func TestGetMaxValidity(t *testing.T) {
	v := NewValidator(config.Default())
	assert.Equal(t, 3650*24*time.Hour, v.GetMaxValidity())
}
