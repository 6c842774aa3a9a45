package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// GradeRepository handles the append-only grade ledger. Attempts are never
// updated in place: a retake inserts a new row and flips the active flag of
// the prior one inside a transaction.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeDetailSelect = `SELECT g.id, g.student_id, g.unit_id, g.academic_year_id, g.semester, g.score, g.status, g.session, g.is_active, g.created_at,
        u.code AS unit_code, u.name AS unit_name, u.credits AS unit_credits
        FROM grades g
        JOIN teaching_units u ON u.id = g.unit_id`

// List returns grade rows matching the filter.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error) {
	query := gradeDetailSelect + " WHERE 1=1"
	var args []interface{}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND g.student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.UnitID != "" {
		query += fmt.Sprintf(" AND g.unit_id = $%d", len(args)+1)
		args = append(args, filter.UnitID)
	}
	if filter.AcademicYearID != "" {
		query += fmt.Sprintf(" AND g.academic_year_id = $%d", len(args)+1)
		args = append(args, filter.AcademicYearID)
	}
	if filter.Semester != "" {
		query += fmt.Sprintf(" AND g.semester = $%d", len(args)+1)
		args = append(args, filter.Semester)
	}
	if filter.Session != "" {
		query += fmt.Sprintf(" AND g.session = $%d", len(args)+1)
		args = append(args, filter.Session)
	}
	if filter.ActiveOnly {
		query += " AND g.is_active = TRUE"
	}
	query += " ORDER BY g.created_at DESC"
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// FindByID returns a grade row by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, student_id, unit_id, academic_year_id, semester, score, status, session, is_active, created_at FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindDetailByID returns a grade row with unit context.
func (r *GradeRepository) FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error) {
	query := gradeDetailSelect + ` WHERE g.id = $1`
	var detail models.GradeDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByKey returns the single active attempt for a ledger key, or
// sql.ErrNoRows when the key has no attempts yet.
func (r *GradeRepository) FindActiveByKey(ctx context.Context, key models.GradeKey) (*models.Grade, error) {
	const query = `SELECT id, student_id, unit_id, academic_year_id, semester, score, status, session, is_active, created_at
        FROM grades WHERE student_id = $1 AND unit_id = $2 AND academic_year_id = $3 AND semester = $4 AND is_active = TRUE`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, key.StudentID, key.UnitID, key.AcademicYearID, key.Semester); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByKey returns every attempt for a ledger key, most recent first.
func (r *GradeRepository) ListByKey(ctx context.Context, key models.GradeKey) ([]models.GradeDetail, error) {
	query := gradeDetailSelect + ` WHERE g.student_id = $1 AND g.unit_id = $2 AND g.academic_year_id = $3 AND g.semester = $4 ORDER BY g.created_at DESC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, key.StudentID, key.UnitID, key.AcademicYearID, key.Semester); err != nil {
		return nil, fmt.Errorf("list grade history: %w", err)
	}
	return grades, nil
}

// ListActiveByStudentAndYear returns a student's active grade rows for a year.
func (r *GradeRepository) ListActiveByStudentAndYear(ctx context.Context, studentID, academicYearID string) ([]models.GradeDetail, error) {
	query := gradeDetailSelect + ` WHERE g.student_id = $1 AND g.academic_year_id = $2 AND g.is_active = TRUE ORDER BY u.code ASC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, studentID, academicYearID); err != nil {
		return nil, fmt.Errorf("list active grades: %w", err)
	}
	return grades, nil
}

// Create persists a new active grade row. Concurrent submissions for the
// same ledger key serialize on a key-scoped advisory lock; when the re-check
// under the lock finds an active row the raced row is returned and nothing
// is inserted.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) (*models.Grade, error) {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = time.Now().UTC()
	}
	grade.IsActive = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade tx: %w", err)
	}

	lockQuery := `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2 || ':' || $3 || ':' || $4))`
	if _, err := tx.ExecContext(ctx, lockQuery, grade.StudentID, grade.UnitID, grade.AcademicYearID, grade.Semester); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("lock grade key: %w", err)
	}

	const recheckQuery = `SELECT id, student_id, unit_id, academic_year_id, semester, score, status, session, is_active, created_at
        FROM grades WHERE student_id = $1 AND unit_id = $2 AND academic_year_id = $3 AND semester = $4 AND is_active = TRUE`
	var existing models.Grade
	err = tx.GetContext(ctx, &existing, recheckQuery, grade.StudentID, grade.UnitID, grade.AcademicYearID, grade.Semester)
	if err == nil {
		tx.Rollback() //nolint:errcheck
		return &existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("recheck grade key: %w", err)
	}

	const insertQuery = `INSERT INTO grades (id, student_id, unit_id, academic_year_id, semester, score, status, session, is_active, created_at)
        VALUES (:id, :student_id, :unit_id, :academic_year_id, :semester, :score, :status, :session, :is_active, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, grade); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("create grade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grade: %w", err)
	}
	return nil, nil
}

// InsertRetake deactivates the prior attempt and inserts the retake row in a
// single transaction so readers never observe zero or two active rows.
func (r *GradeRepository) InsertRetake(ctx context.Context, priorID string, retake *models.Grade) error {
	if retake.ID == "" {
		retake.ID = uuid.NewString()
	}
	if retake.CreatedAt.IsZero() {
		retake.CreatedAt = time.Now().UTC()
	}
	retake.Session = models.GradeSessionRetake
	retake.IsActive = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin retake tx: %w", err)
	}

	lockQuery := `SELECT id FROM grades WHERE id = $1 AND is_active = TRUE FOR UPDATE`
	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, lockQuery, priorID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("lock prior grade: %w", err)
	}

	deactivateQuery := `UPDATE grades SET is_active = FALSE WHERE id = $1`
	if _, err := tx.ExecContext(ctx, deactivateQuery, priorID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("deactivate prior grade: %w", err)
	}

	const insertQuery = `INSERT INTO grades (id, student_id, unit_id, academic_year_id, semester, score, status, session, is_active, created_at)
        VALUES (:id, :student_id, :unit_id, :academic_year_id, :semester, :score, :status, :session, :is_active, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, retake); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert retake: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit retake: %w", err)
	}
	return nil
}

// CollectUnitIDs returns the distinct unit IDs present in a grade set.
func CollectUnitIDs(grades []models.GradeDetail) []string {
	seen := make(map[string]bool, len(grades))
	ids := make([]string, 0, len(grades))
	for _, grade := range grades {
		if !seen[grade.UnitID] {
			ids = append(ids, grade.UnitID)
			seen[grade.UnitID] = true
		}
	}
	return ids
}
