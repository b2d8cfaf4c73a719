package certhash

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexFingerprint = regexp.MustCompile(`^[0-9a-f]{64}$`)

func adaFields() Fields {
	return Fields{
		StudentName:     "Ada Lovelace",
		StudentID:       "S-1815",
		StudentEmail:    "ada@example.edu",
		Course:          "Systems Design",
		Grade:           "A",
		IssueDate:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		InstitutionID:   1,
		InstitutionName: "Analytical Engine Institute",
	}
}

func TestFingerprintKnownVectors(t *testing.T) {
	f := adaFields()
	assert.Equal(t, "1049a9bce6568580d3b3fd3fab921705c6adb18d09fa6f2827dab3bc4af0bf98", Fingerprint(f))

	f.StudentEmail = ""
	f.Grade = ""
	assert.Equal(t, "58ad3897a8087e3c52a26fab8feb9ab8cffbe995509dcf6385638ae0a5e91334", Fingerprint(f))
}

func TestCanonicalForm(t *testing.T) {
	out, err := Canonicalize(adaFields().Map())
	require.NoError(t, err)
	assert.Equal(t,
		`{"course":"Systems Design","grade":"A","institution_id":1,"institution_name":"Analytical Engine Institute","issue_date":"2024-01-10","student_email":"ada@example.edu","student_id":"S-1815","student_name":"Ada Lovelace"}`,
		string(out),
	)
}

func TestFingerprintDeterministic(t *testing.T) {
	f := adaFields()
	first := Fingerprint(f)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Fingerprint(f))
	}
	assert.Regexp(t, hexFingerprint, first)
	assert.Len(t, first, Size)
}

func TestFingerprintIgnoresOrderAndWhitespace(t *testing.T) {
	a := []byte(`{"student_name":"Ada Lovelace","course":"Systems Design","institution_id":1}`)
	b := []byte(`{
		"institution_id": 1.0,
		"course" : "Systems Design",
		"student_name":   "Ada Lovelace"
	}`)

	var ma, mb map[string]any
	require.NoError(t, json.Unmarshal(a, &ma))
	require.NoError(t, json.Unmarshal(b, &mb))

	fa, err := FingerprintMap(ma)
	require.NoError(t, err)
	fb, err := FingerprintMap(mb)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	ca, err := Canonicalize(json.RawMessage(a))
	require.NoError(t, err)
	cb, err := Canonicalize(json.RawMessage(b))
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestFingerprintMatchesMapForm(t *testing.T) {
	f := adaFields()
	fromMap, err := FingerprintMap(f.Map())
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(f), fromMap)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := adaFields()
	mutators := map[string]func(f *Fields, i int){
		"student_name":     func(f *Fields, i int) { f.StudentName = fmt.Sprintf("Ada Lovelace %d", i) },
		"student_id":       func(f *Fields, i int) { f.StudentID = fmt.Sprintf("S-%d", 1816+i) },
		"student_email":    func(f *Fields, i int) { f.StudentEmail = fmt.Sprintf("ada%d@example.edu", i) },
		"course":           func(f *Fields, i int) { f.Course = fmt.Sprintf("Systems Design %d", i) },
		"grade":            func(f *Fields, i int) { f.Grade = fmt.Sprintf("B%d", i) },
		"issue_date":       func(f *Fields, i int) { f.IssueDate = f.IssueDate.AddDate(0, 0, i+1) },
		"institution_id":   func(f *Fields, i int) { f.InstitutionID = int64(i + 2) },
		"institution_name": func(f *Fields, i int) { f.InstitutionName = fmt.Sprintf("Institute %d", i) },
	}

	const rounds = 200
	seen := map[string]string{Fingerprint(base): "base"}
	for name, mutate := range mutators {
		for i := 0; i < rounds; i++ {
			f := base
			mutate(&f, i)
			fp := Fingerprint(f)
			label := fmt.Sprintf("%s#%d", name, i)
			if prev, dup := seen[fp]; dup {
				t.Fatalf("fingerprint collision between %s and %s", prev, label)
			}
			seen[fp] = label
		}
	}
	assert.Len(t, seen, len(mutators)*rounds+1)
}

func TestEmailNullVersusEmpty(t *testing.T) {
	f := adaFields()
	f.StudentEmail = ""
	m := f.Map()
	assert.Nil(t, m["student_email"])

	withEmpty := f.Map()
	withEmpty["student_email"] = ""
	fp, err := FingerprintMap(withEmpty)
	require.NoError(t, err)
	assert.NotEqual(t, Fingerprint(f), fp)
}

func TestCanonicalizeRejectsInvalid(t *testing.T) {
	_, err := Canonicalize(json.RawMessage(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = Canonicalize(json.RawMessage(`{"a":`))
	assert.Error(t, err)
}

func TestCanonicalizeRejectsInvalidUTF8(t *testing.T) {
	// both would collapse to U+FFFD if replaced instead of rejected
	for _, s := range []string{"Ada \xff", "Ada \xfe"} {
		_, err := Canonicalize(map[string]any{"student_name": s})
		assert.Error(t, err)
		_, err = Canonicalize(map[string]any{s: "x"})
		assert.Error(t, err)
		_, err = FingerprintMap(map[string]any{"student_name": s})
		assert.Error(t, err)
	}

	f := adaFields()
	f.StudentName = "Ada \xff"
	assert.Empty(t, Fingerprint(f))
}

func TestCanonicalNumbers(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{7, "7"},
		{math.Copysign(0, -1), "0"},
		{-0.5, "-0.5"},
		{123.456, "123.456"},
		{0.000001, "0.000001"},
		{1e-7, "1e-7"},
		{-2.5e-8, "-2.5e-8"},
		{1e21, "1e+21"},
		{1.5e300, "1.5e+300"},
		{999999999999999900000, "999999999999999900000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			out, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))

			raw, err := Canonicalize(json.RawMessage(tt.want))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
		})
	}
}

func TestCanonicalizeEscapes(t *testing.T) {
	out, err := Canonicalize(map[string]any{"s": "line\nbreak \"quoted\" \x01"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"line\nbreak \"quoted\" \u0001"}`, string(out))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("abc", "abc"))
	assert.False(t, Matches("abc", "abd"))
	assert.False(t, Matches("", ""))
}
