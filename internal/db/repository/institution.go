package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/certchain/internal/models"
)

// InstitutionRepository handles institution data access
type InstitutionRepository struct {
	db *sql.DB
}

// NewInstitutionRepository creates a new institution repository
func NewInstitutionRepository(db *sql.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// Create creates a new institution
func (r *InstitutionRepository) Create(ctx context.Context, inst *models.Institution) error {
	query := `
		INSERT INTO institutions (name, address, email, website, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if inst.Email == "" {
		inst.Email = "admin@example.com"
	}
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		inst.Name,
		inst.Address,
		inst.Email,
		nullString(inst.Website),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create institution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	inst.ID = id
	inst.CreatedAt = now

	return nil
}

// GetByID retrieves an institution by ID
func (r *InstitutionRepository) GetByID(ctx context.Context, id int64) (*models.Institution, error) {
	query := `
		SELECT id, name, address, email, website, created_at
		FROM institutions
		WHERE id = ?
	`

	inst, err := scanInstitution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("institution %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}

	return inst, nil
}

// List lists all institutions ordered by ID
func (r *InstitutionRepository) List(ctx context.Context) ([]*models.Institution, error) {
	query := `
		SELECT id, name, address, email, website, created_at
		FROM institutions
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []*models.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, inst)
	}

	return institutions, rows.Err()
}

func scanInstitution(row rowScanner) (*models.Institution, error) {
	inst := &models.Institution{}
	var website sql.NullString

	if err := row.Scan(
		&inst.ID,
		&inst.Name,
		&inst.Address,
		&inst.Email,
		&website,
		&inst.CreatedAt,
	); err != nil {
		return nil, err
	}

	inst.Website = website.String
	return inst, nil
}
