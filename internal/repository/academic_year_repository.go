package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// AcademicYearRepository handles persistence of academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository constructs the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// FindByID returns an academic year by its ID.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	const query = `SELECT id, year, start_date, end_date, is_current, created_at FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindByLabel returns an academic year by its display label (e.g. "2025-2026").
func (r *AcademicYearRepository) FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error) {
	const query = `SELECT id, year, start_date, end_date, is_current, created_at FROM academic_years WHERE year = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, label); err != nil {
		return nil, err
	}
	return &year, nil
}

// List returns all academic years, most recent first.
func (r *AcademicYearRepository) List(ctx context.Context) ([]models.AcademicYear, error) {
	const query = `SELECT id, year, start_date, end_date, is_current, created_at FROM academic_years ORDER BY start_date DESC`
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}
