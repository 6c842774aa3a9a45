package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// FacultyRepository handles persistence of faculties.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository constructs the repository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// FindByID returns a faculty by its ID.
func (r *FacultyRepository) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	const query = `SELECT id, code, name, created_at, updated_at FROM faculties WHERE id = $1`
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, query, id); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// List returns all faculties ordered by name.
func (r *FacultyRepository) List(ctx context.Context) ([]models.Faculty, error) {
	const query = `SELECT id, code, name, created_at, updated_at FROM faculties ORDER BY name ASC`
	var faculties []models.Faculty
	if err := r.db.SelectContext(ctx, &faculties, query); err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return faculties, nil
}
