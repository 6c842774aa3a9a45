package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-academic-api/internal/audit"
	"github.com/noah-isme/uni-academic-api/internal/models"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error)
	FindActiveByKey(ctx context.Context, key models.GradeKey) (*models.Grade, error)
	ListByKey(ctx context.Context, key models.GradeKey) ([]models.GradeDetail, error)
	Create(ctx context.Context, grade *models.Grade) (*models.Grade, error)
	InsertRetake(ctx context.Context, priorID string, retake *models.Grade) error
}

type unitReader interface {
	FindByID(ctx context.Context, id string) (*models.TeachingUnit, error)
}

type transcriptInvalidator interface {
	Invalidate(ctx context.Context, studentID, academicYearID string)
}

// SubmitGradeRequest is a normal-session grade submission.
type SubmitGradeRequest struct {
	StudentID      string  `json:"studentId" validate:"required"`
	UnitID         string  `json:"unitId" validate:"required"`
	AcademicYearID string  `json:"academicYearId" validate:"required"`
	Semester       string  `json:"semester" validate:"required,oneof=S1 S2"`
	Score          float64 `json:"grade" validate:"min=0,max=100"`
}

// BulkGradeFailure reports one rejected entry of a bulk submission.
type BulkGradeFailure struct {
	Input  SubmitGradeRequest `json:"input"`
	Code   string             `json:"code"`
	Reason string             `json:"reason"`
}

// BulkSubmitResult separates per-item outcomes of a bulk submission.
type BulkSubmitResult struct {
	Succeeded []models.GradeDetail `json:"succeeded"`
	Failed    []BulkGradeFailure   `json:"failed"`
}

// GradeService manages the append-only grade ledger: one NORMAL attempt per
// (student, unit, year, semester) key, retakes as new rows, full history kept.
type GradeService struct {
	repo        gradeRepository
	students    studentReader
	units       unitReader
	years       academicYearReader
	policy      GradePolicy
	transcripts transcriptInvalidator
	auditor     audit.Recorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService. transcripts may be nil when no
// cache invalidation is wanted.
func NewGradeService(repo gradeRepository, students studentReader, units unitReader, years academicYearReader, policy GradePolicy, transcripts transcriptInvalidator, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &GradeService{repo: repo, students: students, units: units, years: years, policy: policy, transcripts: transcripts, auditor: auditor, validator: validate, logger: logger}
}

// List returns grade rows matching the filter.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error) {
	grades, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// Submit records a normal-session grade. A key that already carries an active
// grade rejects the submission; corrections go through RecordRetake.
func (s *GradeService) Submit(ctx context.Context, req SubmitGradeRequest) (*models.GradeDetail, error) {
	detail, err := s.submit(ctx, req)
	meta := map[string]interface{}{"studentId": req.StudentID, "unitId": req.UnitID, "academicYearId": req.AcademicYearID, "semester": req.Semester, "grade": req.Score}
	if err != nil {
		meta["error"] = err.Error()
		s.auditor.Record(ctx, models.AuditActionGradeSubmit, "grade", "", models.AuditStatusError, meta)
		return nil, err
	}
	s.auditor.Record(ctx, models.AuditActionGradeSubmit, "grade", detail.ID, models.AuditStatusSuccess, meta)
	s.invalidate(ctx, req.StudentID, req.AcademicYearID)
	return detail, nil
}

func (s *GradeService) submit(ctx context.Context, req SubmitGradeRequest) (*models.GradeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		return nil, referenceError(err, "student", req.StudentID)
	}
	unit, err := s.units.FindByID(ctx, req.UnitID)
	if err != nil {
		return nil, referenceError(err, "teachingUnit", req.UnitID)
	}
	if _, err := s.years.FindByID(ctx, req.AcademicYearID); err != nil {
		return nil, referenceError(err, "academicYear", req.AcademicYearID)
	}

	status, err := s.policy.Classify(req.Score, s.policy.PassingGradeFor(unit))
	if err != nil {
		return nil, err
	}

	key := models.GradeKey{StudentID: req.StudentID, UnitID: req.UnitID, AcademicYearID: req.AcademicYearID, Semester: req.Semester}
	existing, err := s.repo.FindActiveByKey(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing grade")
	}
	if existing != nil {
		return nil, gradeExistsError(existing)
	}

	grade := &models.Grade{
		StudentID:      req.StudentID,
		UnitID:         req.UnitID,
		AcademicYearID: req.AcademicYearID,
		Semester:       req.Semester,
		Score:          req.Score,
		Status:         status,
		Session:        models.GradeSessionNormal,
	}
	// The repository re-checks the key under a lock; a submission that
	// raced past the read above is rejected here, not inserted twice.
	raced, err := s.repo.Create(ctx, grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}
	if raced != nil {
		return nil, gradeExistsError(raced)
	}
	detail, err := s.repo.FindDetailByID(ctx, grade.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return detail, nil
}

// RecordRetake supersedes a RETAKE-classified attempt with a new scored row.
// The prior row is kept for history with its active flag cleared; VALID and
// NON_VALID attempts are terminal for their key.
func (s *GradeService) RecordRetake(ctx context.Context, gradeID string, newScore float64) (*models.GradeDetail, error) {
	detail, err := s.recordRetake(ctx, gradeID, newScore)
	meta := map[string]interface{}{"priorGradeId": gradeID, "grade": newScore}
	if err != nil {
		meta["error"] = err.Error()
		s.auditor.Record(ctx, models.AuditActionGradeRetake, "grade", gradeID, models.AuditStatusError, meta)
		return nil, err
	}
	s.auditor.Record(ctx, models.AuditActionGradeRetake, "grade", detail.ID, models.AuditStatusSuccess, meta)
	s.invalidate(ctx, detail.StudentID, detail.AcademicYearID)
	return detail, nil
}

func (s *GradeService) recordRetake(ctx context.Context, gradeID string, newScore float64) (*models.GradeDetail, error) {
	prior, err := s.repo.FindByID(ctx, gradeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if !prior.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade already superseded by a later attempt")
	}
	if prior.Status != models.GradeStatusRetake {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "only retake-eligible grades accept a retake submission"),
			map[string]interface{}{"gradeId": prior.ID, "status": prior.Status},
		)
	}

	unit, err := s.units.FindByID(ctx, prior.UnitID)
	if err != nil {
		return nil, referenceError(err, "teachingUnit", prior.UnitID)
	}
	status, err := s.policy.Classify(newScore, s.policy.PassingGradeFor(unit))
	if err != nil {
		return nil, err
	}

	retake := &models.Grade{
		StudentID:      prior.StudentID,
		UnitID:         prior.UnitID,
		AcademicYearID: prior.AcademicYearID,
		Semester:       prior.Semester,
		Score:          newScore,
		Status:         status,
		Session:        models.GradeSessionRetake,
	}
	if err := s.repo.InsertRetake(ctx, prior.ID, retake); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record retake")
	}
	detail, err := s.repo.FindDetailByID(ctx, retake.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return detail, nil
}

// BulkSubmit applies Submit to each entry independently. One invalid entry
// never aborts the batch; the result reports both outcomes.
func (s *GradeService) BulkSubmit(ctx context.Context, items []SubmitGradeRequest) (*BulkSubmitResult, error) {
	result := &BulkSubmitResult{}
	for _, item := range items {
		detail, err := s.submit(ctx, item)
		if err != nil {
			appErr := appErrors.FromError(err)
			result.Failed = append(result.Failed, BulkGradeFailure{Input: item, Code: appErr.Code, Reason: appErr.Message})
			continue
		}
		result.Succeeded = append(result.Succeeded, *detail)
		s.invalidate(ctx, item.StudentID, item.AcademicYearID)
	}
	s.auditor.Record(ctx, models.AuditActionGradeBulkSubmit, "grade", "", models.AuditStatusSuccess, map[string]interface{}{
		"submitted": len(items),
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	return result, nil
}

// History returns every attempt for a ledger key, most recent first.
func (s *GradeService) History(ctx context.Context, key models.GradeKey) ([]models.GradeDetail, error) {
	grades, err := s.repo.ListByKey(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade history")
	}
	return grades, nil
}

// ActiveGrade returns the authoritative attempt for a key, or nil when the
// key has no attempts.
func (s *GradeService) ActiveGrade(ctx context.Context, key models.GradeKey) (*models.GradeDetail, error) {
	grade, err := s.repo.FindActiveByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active grade")
	}
	detail, err := s.repo.FindDetailByID(ctx, grade.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return detail, nil
}

func gradeExistsError(existing *models.Grade) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrGradeExists, ""), map[string]interface{}{
		"gradeId": existing.ID,
		"grade":   existing.Score,
		"status":  existing.Status,
		"session": existing.Session,
	})
}

func (s *GradeService) invalidate(ctx context.Context, studentID, academicYearID string) {
	if s.transcripts == nil {
		return
	}
	s.transcripts.Invalidate(ctx, studentID, academicYearID)
}
