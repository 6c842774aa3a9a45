package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, faculty_id, level, academic_year_id, status, enrollment_date, created_at, updated_at`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.faculty_id, e.level, e.academic_year_id, e.status, e.enrollment_date, e.created_at, e.updated_at,
        s.full_name AS student_name, s.matric_no AS student_matric, f.name AS faculty_name, y.year AS academic_year
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN faculties f ON f.id = e.faculty_id
        LEFT JOIN academic_years y ON y.id = e.academic_year_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN faculties f ON f.id = e.faculty_id
LEFT JOIN academic_years y ON y.id = e.academic_year_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("e.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("e.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("e.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrollment_date": "e.enrollment_date",
		"student_name":    "s.full_name",
		"faculty_name":    "f.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrollment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.faculty_id, e.level, e.academic_year_id, e.status, e.enrollment_date, e.created_at, e.updated_at,
        s.full_name AS student_name, s.matric_no AS student_matric, f.name AS faculty_name, y.year AS academic_year
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByStudentAndYear returns every enrollment for a student in one academic
// year, regardless of status. Used for cross-level conflict and duplicate
// detection before creation.
func (r *EnrollmentRepository) FindByStudentAndYear(ctx context.Context, studentID, academicYearID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND academic_year_id = $2`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, academicYearID); err != nil {
		return nil, fmt.Errorf("find enrollments for year: %w", err)
	}
	return enrollments, nil
}

// ListActiveByStudent returns the student's ACTIVE enrollments across all years.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY enrollment_date DESC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// CreateCompletingActive inserts a new ACTIVE enrollment after completing all
// of the student's prior ACTIVE enrollments, in a single transaction. A
// per-student advisory lock serializes concurrent enrolls; row locks cannot,
// the lock set is empty on the student's first enrollment. Conflicts are
// re-checked under the lock and returned instead of inserting.
func (r *EnrollmentRepository) CreateCompletingActive(ctx context.Context, enrollment *models.Enrollment) (*models.EnrollmentConflict, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	enrollment.Status = models.EnrollmentStatusActive
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enrollment tx: %w", err)
	}

	lockQuery := `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := tx.ExecContext(ctx, lockQuery, enrollment.StudentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("lock student enrollments: %w", err)
	}

	recheckQuery := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND academic_year_id = $2`, enrollmentColumns)
	var sameYear []models.Enrollment
	if err := tx.SelectContext(ctx, &sameYear, recheckQuery, enrollment.StudentID, enrollment.AcademicYearID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("recheck enrollments: %w", err)
	}
	if conflict := models.FindEnrollmentConflict(sameYear, *enrollment); conflict != nil {
		tx.Rollback() //nolint:errcheck
		return conflict, nil
	}

	completeQuery := `UPDATE enrollments SET status = $2, updated_at = $3 WHERE student_id = $1 AND status = $4`
	if _, err := tx.ExecContext(ctx, completeQuery, enrollment.StudentID, models.EnrollmentStatusCompleted, now, models.EnrollmentStatusActive); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("complete active enrollments: %w", err)
	}

	const insertQuery = `INSERT INTO enrollments (id, student_id, faculty_id, level, academic_year_id, status, enrollment_date, created_at, updated_at)
        VALUES (:id, :student_id, :faculty_id, :level, :academic_year_id, :status, :enrollment_date, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}
	return nil, nil
}

// Update applies field changes to an enrollment.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET faculty_id = :faculty_id, level = :level, academic_year_id = :academic_year_id,
        status = :status, enrollment_date = :enrollment_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment record.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// CompleteAllButLatest marks every ACTIVE enrollment except the most recent as
// COMPLETED, returning how many rows changed. Safe to call repeatedly: once a
// single active row remains it changes nothing.
func (r *EnrollmentRepository) CompleteAllButLatest(ctx context.Context, studentID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin repair tx: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY enrollment_date DESC FOR UPDATE`, enrollmentColumns)
	var active []models.Enrollment
	if err := tx.SelectContext(ctx, &active, query, studentID, models.EnrollmentStatusActive); err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("list active for repair: %w", err)
	}
	if len(active) <= 1 {
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit repair: %w", err)
		}
		return 0, nil
	}

	now := time.Now().UTC()
	corrected := 0
	const completeQuery = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	for _, enrollment := range active[1:] {
		if _, err := tx.ExecContext(ctx, completeQuery, enrollment.ID, models.EnrollmentStatusCompleted, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return 0, fmt.Errorf("complete stale enrollment: %w", err)
		}
		corrected++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit repair: %w", err)
	}
	return corrected, nil
}

// ListStudentsWithMultipleActive returns the IDs of students violating the
// single-active invariant.
func (r *EnrollmentRepository) ListStudentsWithMultipleActive(ctx context.Context) ([]string, error) {
	const query = `SELECT student_id FROM enrollments WHERE status = $1 GROUP BY student_id HAVING COUNT(*) > 1`
	var studentIDs []string
	if err := r.db.SelectContext(ctx, &studentIDs, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list students with multiple active: %w", err)
	}
	return studentIDs, nil
}
