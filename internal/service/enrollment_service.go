package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-academic-api/internal/audit"
	"github.com/noah-isme/uni-academic-api/internal/models"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByStudentAndYear(ctx context.Context, studentID, academicYearID string) ([]models.Enrollment, error)
	CreateCompletingActive(ctx context.Context, enrollment *models.Enrollment) (*models.EnrollmentConflict, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	CompleteAllButLatest(ctx context.Context, studentID string) (int, error)
	ListStudentsWithMultipleActive(ctx context.Context) ([]string, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type facultyReader interface {
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

type academicYearReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

type academicYearResolver interface {
	academicYearReader
	FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error)
}

// EnrollRequest describes enrollment creation payload. AcademicYearID also
// accepts the year's display label ("2025-2026").
type EnrollRequest struct {
	StudentID      string     `json:"studentId" validate:"required"`
	FacultyID      string     `json:"facultyId" validate:"required"`
	Level          string     `json:"level" validate:"required"`
	AcademicYearID string     `json:"academicYearId" validate:"required"`
	EnrollmentDate *time.Time `json:"enrollmentDate"`
}

// UpdateEnrollmentRequest describes a partial enrollment update.
type UpdateEnrollmentRequest struct {
	FacultyID      *string                  `json:"facultyId"`
	Level          *string                  `json:"level"`
	AcademicYearID *string                  `json:"academicYearId"`
	Status         *models.EnrollmentStatus `json:"status"`
	EnrollmentDate *time.Time               `json:"enrollmentDate"`
}

// EnrollmentService enforces the single-active-enrollment-per-year invariant
// and the completion of prior active enrollments on re-enrollment.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	faculties facultyReader
	years     academicYearResolver
	auditor   audit.Recorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, faculties facultyReader, years academicYearResolver, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &EnrollmentService{repo: repo, students: students, faculties: faculties, years: years, auditor: auditor, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Enroll registers a student into a faculty and level for an academic year.
// All of the student's prior ACTIVE enrollments are completed in the same
// storage transaction that inserts the new one.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	detail, err := s.enroll(ctx, req)
	meta := map[string]interface{}{"studentId": req.StudentID, "facultyId": req.FacultyID, "level": req.Level, "academicYearId": req.AcademicYearID}
	if err != nil {
		meta["error"] = err.Error()
		s.auditor.Record(ctx, models.AuditActionEnrollmentCreate, "enrollment", "", models.AuditStatusError, meta)
		return nil, err
	}
	s.auditor.Record(ctx, models.AuditActionEnrollmentCreate, "enrollment", detail.ID, models.AuditStatusSuccess, meta)
	return detail, nil
}

func (s *EnrollmentService) enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		return nil, referenceError(err, "student", req.StudentID)
	}
	if _, err := s.faculties.FindByID(ctx, req.FacultyID); err != nil {
		return nil, referenceError(err, "faculty", req.FacultyID)
	}
	year, err := s.resolveYear(ctx, req.AcademicYearID)
	if err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID:      req.StudentID,
		FacultyID:      req.FacultyID,
		Level:          req.Level,
		AcademicYearID: year.ID,
	}
	if req.EnrollmentDate != nil {
		enrollment.EnrollmentDate = req.EnrollmentDate.UTC()
	}

	sameYear, err := s.repo.FindByStudentAndYear(ctx, req.StudentID, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if conflict := models.FindEnrollmentConflict(sameYear, *enrollment); conflict != nil {
		return nil, enrollmentConflictError(conflict)
	}

	// The repository re-checks under a per-student lock; a row committed
	// since the read above surfaces here instead of being inserted twice.
	conflict, err := s.repo.CreateCompletingActive(ctx, enrollment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if conflict != nil {
		return nil, enrollmentConflictError(conflict)
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Update applies a partial update, resolving any referenced faculty or year.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	detail, err := s.update(ctx, id, req)
	if err != nil {
		s.auditor.Record(ctx, models.AuditActionEnrollmentUpdate, "enrollment", id, models.AuditStatusError, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	s.auditor.Record(ctx, models.AuditActionEnrollmentUpdate, "enrollment", id, models.AuditStatusSuccess, nil)
	return detail, nil
}

func (s *EnrollmentService) update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if req.FacultyID != nil {
		if _, err := s.faculties.FindByID(ctx, *req.FacultyID); err != nil {
			return nil, referenceError(err, "faculty", *req.FacultyID)
		}
		enrollment.FacultyID = *req.FacultyID
	}
	if req.AcademicYearID != nil {
		year, err := s.resolveYear(ctx, *req.AcademicYearID)
		if err != nil {
			return nil, err
		}
		enrollment.AcademicYearID = year.ID
	}
	if req.Level != nil {
		enrollment.Level = *req.Level
	}
	if req.Status != nil {
		enrollment.Status = *req.Status
	}
	if req.EnrollmentDate != nil {
		enrollment.EnrollmentDate = req.EnrollmentDate.UTC()
	}
	if err := s.repo.Update(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Delete removes an enrollment.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		} else {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		s.auditor.Record(ctx, models.AuditActionEnrollmentDelete, "enrollment", id, models.AuditStatusError, map[string]interface{}{"error": err.Error()})
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		wrapped := appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
		s.auditor.Record(ctx, models.AuditActionEnrollmentDelete, "enrollment", id, models.AuditStatusError, map[string]interface{}{"error": wrapped.Error()})
		return wrapped
	}
	s.auditor.Record(ctx, models.AuditActionEnrollmentDelete, "enrollment", id, models.AuditStatusSuccess, nil)
	return nil
}

// EnsureSingleActive repairs the invariant for one student: every ACTIVE
// enrollment except the most recent is completed. Idempotent; returns the
// number of enrollments corrected.
func (s *EnrollmentService) EnsureSingleActive(ctx context.Context, studentID string) (int, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return 0, referenceError(err, "student", studentID)
	}
	corrected, err := s.repo.CompleteAllButLatest(ctx, studentID)
	if err != nil {
		wrapped := appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to repair enrollments")
		s.auditor.Record(ctx, models.AuditActionEnrollmentRepair, "enrollment", studentID, models.AuditStatusError, map[string]interface{}{"error": wrapped.Error()})
		return 0, wrapped
	}
	if corrected > 0 {
		s.auditor.Record(ctx, models.AuditActionEnrollmentRepair, "enrollment", studentID, models.AuditStatusSuccess, map[string]interface{}{"completed": corrected})
	}
	return corrected, nil
}

// RepairAllStudents applies EnsureSingleActive to every student currently
// violating the invariant. Per-student failures are isolated and reported.
func (s *EnrollmentService) RepairAllStudents(ctx context.Context) (*models.RepairResult, error) {
	studentIDs, err := s.repo.ListStudentsWithMultipleActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan enrollments")
	}
	result := &models.RepairResult{StudentsChecked: len(studentIDs)}
	for _, studentID := range studentIDs {
		corrected, err := s.repo.CompleteAllButLatest(ctx, studentID)
		if err != nil {
			s.logger.Warn("enrollment repair failed", zap.String("student_id", studentID), zap.Error(err))
			result.FailedStudents = append(result.FailedStudents, studentID)
			continue
		}
		if corrected > 0 {
			result.StudentsCorrected++
			result.EnrollmentsCompleted += corrected
		}
	}
	s.auditor.Record(ctx, models.AuditActionEnrollmentRepair, "enrollment", "", models.AuditStatusSuccess, map[string]interface{}{
		"studentsChecked":   result.StudentsChecked,
		"studentsCorrected": result.StudentsCorrected,
	})
	return result, nil
}

// resolveYear accepts either an academic year ID or its display label
// (e.g. "2025-2026") and returns the stored year.
func (s *EnrollmentService) resolveYear(ctx context.Context, ref string) (*models.AcademicYear, error) {
	year, err := s.years.FindByID(ctx, ref)
	if err == nil {
		return year, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academicYear")
	}
	year, err = s.years.FindByLabel(ctx, ref)
	if err != nil {
		return nil, referenceError(err, "academicYear", ref)
	}
	return year, nil
}

func enrollmentConflictError(conflict *models.EnrollmentConflict) error {
	details := map[string]interface{}{
		"enrollmentId":   conflict.Existing.ID,
		"facultyId":      conflict.Existing.FacultyID,
		"level":          conflict.Existing.Level,
		"academicYearId": conflict.Existing.AcademicYearID,
	}
	if conflict.CrossLevel {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrMultipleEnrollments, ""), details)
	}
	details["status"] = conflict.Existing.Status
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrDuplicateEnrollment, ""), details)
}

func referenceError(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrReferenceNotFound, entity+" not found"),
			map[string]interface{}{"entity": entity, "id": id},
		)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+entity)
}
