// Package certhash derives the deterministic fingerprint that identifies an
// academic certificate. The same field values always produce the same
// fingerprint, in any process and from any language that follows the same
// canonical JSON rules, so independent verifiers can recompute it.
package certhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 calendar date form used for issue dates.
const DateLayout = "2006-01-02"

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Fields is the canonical field tuple a fingerprint is computed from.
// An empty StudentEmail is hashed as JSON null; an empty Grade as "".
type Fields struct {
	StudentName     string
	StudentID       string
	StudentEmail    string
	Course          string
	Grade           string
	IssueDate       time.Time
	InstitutionID   int64
	InstitutionName string
}

// Map returns the fields keyed by their canonical names.
func (f Fields) Map() map[string]any {
	var email any
	if f.StudentEmail != "" {
		email = f.StudentEmail
	}
	return map[string]any{
		"student_name":     f.StudentName,
		"student_id":       f.StudentID,
		"student_email":    email,
		"course":           f.Course,
		"grade":            f.Grade,
		"issue_date":       f.IssueDate.Format(DateLayout),
		"institution_id":   f.InstitutionID,
		"institution_name": f.InstitutionName,
	}
}

// Fingerprint returns the lowercase hex SHA-256 of the canonical form of f,
// or "" when a field is not valid UTF-8. An empty fingerprint never Matches.
func Fingerprint(f Fields) string {
	fp, err := FingerprintMap(f.Map())
	if err != nil {
		return ""
	}
	return fp
}

// FingerprintMap hashes an arbitrary field mapping. Key order in the input
// never affects the result.
func FingerprintMap(fields map[string]any) (string, error) {
	canonical, err := Canonicalize(fields)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize fields: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Matches reports whether two fingerprints are byte-for-byte equal.
func Matches(a, b string) bool {
	return a != "" && a == b
}
