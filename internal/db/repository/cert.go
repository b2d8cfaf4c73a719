package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/certchain/internal/db"
	"github.com/adamscao/certchain/internal/models"
)

// CertRepository handles certificate record data access
type CertRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db, now: time.Now}
}

const certColumns = `
	c.id, c.certificate_id, c.institution_id, i.name, i.address,
	c.student_name, c.student_id, c.student_email, c.course, c.grade,
	c.issue_date, c.expiry_date, c.ledger_tx, c.status, c.metadata,
	c.created_at, c.updated_at`

// Insert creates a new certificate record. A record with the same
// certificate_id already present yields models.ErrDuplicate.
func (r *CertRepository) Insert(ctx context.Context, cert *models.CertificateRecord) error {
	query := `
		INSERT INTO certificates (
			certificate_id, institution_id, student_name, student_id, student_email,
			course, grade, issue_date, expiry_date, ledger_tx, status, metadata,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := r.now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		cert.CertificateID,
		cert.InstitutionID,
		cert.StudentName,
		cert.StudentID,
		nullString(cert.StudentEmail),
		cert.Course,
		cert.Grade,
		cert.IssueDate,
		cert.ExpiryDate,
		cert.LedgerTx,
		string(cert.Status),
		cert.Metadata,
		now,
		now,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("certificate %s: %w", cert.CertificateID, models.ErrDuplicate)
		}
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("institution %d: %w", cert.InstitutionID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cert.ID = id
	cert.CreatedAt = now
	cert.UpdatedAt = now

	return nil
}

// GetByCertificateID retrieves a certificate by its fingerprint
func (r *CertRepository) GetByCertificateID(ctx context.Context, certificateID string) (*models.CertificateRecord, error) {
	query := `
		SELECT ` + certColumns + `
		FROM certificates c
		JOIN institutions i ON i.id = c.institution_id
		WHERE c.certificate_id = ?
	`

	cert, err := scanCertificate(r.db.QueryRowContext(ctx, query, certificateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate %s: %w", certificateID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// Update persists every mutable column of cert and refreshes updated_at. The
// write only applies while the stored row is still at revision from;
// otherwise it fails with models.ErrStale and leaves the row untouched.
func (r *CertRepository) Update(ctx context.Context, cert *models.CertificateRecord, from models.Revision) error {
	query := `
		UPDATE certificates SET
			student_name = ?, student_id = ?, student_email = ?, course = ?, grade = ?,
			issue_date = ?, expiry_date = ?, ledger_tx = ?, status = ?, metadata = ?,
			updated_at = ?
		WHERE certificate_id = ? AND status = ? AND ledger_tx = ?
	`

	now := r.now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		cert.StudentName,
		cert.StudentID,
		nullString(cert.StudentEmail),
		cert.Course,
		cert.Grade,
		cert.IssueDate,
		cert.ExpiryDate,
		cert.LedgerTx,
		string(cert.Status),
		cert.Metadata,
		now,
		cert.CertificateID,
		string(from.Status),
		from.LedgerTx,
	)
	if err != nil {
		return fmt.Errorf("failed to update certificate: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if count == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM certificates WHERE certificate_id = ?`, cert.CertificateID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("certificate %s: %w", cert.CertificateID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check certificate: %w", err)
		}
		return fmt.Errorf("certificate %s changed since it was read as %s: %w", cert.CertificateID, from.Status, models.ErrStale)
	}

	cert.UpdatedAt = now
	return nil
}

// Delete removes a certificate record
func (r *CertRepository) Delete(ctx context.Context, certificateID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM certificates WHERE certificate_id = ?`, certificateID)
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("certificate %s: %w", certificateID, models.ErrNotFound)
	}

	return nil
}

// CountByStatus returns the number of certificates in each lifecycle state
func (r *CertRepository) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM certificates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count certificates: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan certificate count: %w", err)
		}
		counts[models.Status(status)] = count
	}

	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.CertificateRecord, error) {
	cert := &models.CertificateRecord{}
	var email sql.NullString
	var status string

	err := row.Scan(
		&cert.ID,
		&cert.CertificateID,
		&cert.InstitutionID,
		&cert.InstitutionName,
		&cert.InstitutionAddress,
		&cert.StudentName,
		&cert.StudentID,
		&email,
		&cert.Course,
		&cert.Grade,
		&cert.IssueDate,
		&cert.ExpiryDate,
		&cert.LedgerTx,
		&status,
		&cert.Metadata,
		&cert.CreatedAt,
		&cert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cert.StudentEmail = email.String
	cert.Status = models.Status(status)

	return cert, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
