package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// TeachingUnitRepository handles persistence of teaching units.
type TeachingUnitRepository struct {
	db *sqlx.DB
}

// NewTeachingUnitRepository constructs the repository.
func NewTeachingUnitRepository(db *sqlx.DB) *TeachingUnitRepository {
	return &TeachingUnitRepository{db: db}
}

// FindByID returns a teaching unit by its ID.
func (r *TeachingUnitRepository) FindByID(ctx context.Context, id string) (*models.TeachingUnit, error) {
	const query = `SELECT id, code, name, credits, type, passing_grade, created_at, updated_at FROM teaching_units WHERE id = $1`
	var unit models.TeachingUnit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// FindByIDs returns the teaching units for the given IDs keyed by ID.
func (r *TeachingUnitRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.TeachingUnit, error) {
	if len(ids) == 0 {
		return map[string]models.TeachingUnit{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, code, name, credits, type, passing_grade, created_at, updated_at FROM teaching_units WHERE id IN (%s)`, strings.Join(placeholders, ","))
	var units []models.TeachingUnit
	if err := r.db.SelectContext(ctx, &units, query, args...); err != nil {
		return nil, fmt.Errorf("fetch teaching units: %w", err)
	}
	byID := make(map[string]models.TeachingUnit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}
	return byID, nil
}

// List returns all teaching units ordered by code.
func (r *TeachingUnitRepository) List(ctx context.Context) ([]models.TeachingUnit, error) {
	const query = `SELECT id, code, name, credits, type, passing_grade, created_at, updated_at FROM teaching_units ORDER BY code ASC`
	var units []models.TeachingUnit
	if err := r.db.SelectContext(ctx, &units, query); err != nil {
		return nil, fmt.Errorf("list teaching units: %w", err)
	}
	return units, nil
}
