package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-academic-api/internal/models"
	"github.com/noah-isme/uni-academic-api/internal/repository"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

type activeGradeLister interface {
	ListActiveByStudentAndYear(ctx context.Context, studentID, academicYearID string) ([]models.GradeDetail, error)
}

type activeEnrollmentLister interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type unitBatchReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.TeachingUnit, error)
}

// TranscriptService derives GPA, credit and success-rate aggregates from a
// student's active grades. The aggregate is recomputed from the grade set on
// every read; redis only shortcuts repeated reads and is invalidated after
// each grade mutation.
type TranscriptService struct {
	grades      activeGradeLister
	enrollments activeEnrollmentLister
	units       unitBatchReader
	students    studentReader
	years       academicYearReader
	cache       *redis.Client
	cacheTTL    time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewTranscriptService constructs TranscriptService. cache may be nil to
// disable caching entirely.
func NewTranscriptService(grades activeGradeLister, enrollments activeEnrollmentLister, units unitBatchReader, students studentReader, years academicYearReader, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TranscriptService{grades: grades, enrollments: enrollments, units: units, students: students, years: years, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// WithMetrics attaches cache hit/miss instrumentation.
func (s *TranscriptService) WithMetrics(metrics *MetricsService) *TranscriptService {
	s.metrics = metrics
	return s
}

// ComputeStatistics derives the aggregate from a grade set. Pure: identical
// input always yields identical output, and empty input is safe.
func ComputeStatistics(grades []models.GradeDetail) models.Statistics {
	var stats models.Statistics
	validCount := 0
	scoreSum := 0.0
	for _, grade := range grades {
		stats.TotalCredits += grade.UnitCredits
		if grade.Status == models.GradeStatusValid {
			stats.CreditsEarned += grade.UnitCredits
			scoreSum += grade.Score
			validCount++
		}
	}
	if validCount > 0 {
		stats.GPA = scoreSum / float64(validCount)
	}
	if stats.TotalCredits > 0 {
		rate := float64(stats.CreditsEarned) / float64(stats.TotalCredits) * 100
		stats.SuccessRate = math.Round(rate*10) / 10
	}
	return stats
}

// GetTranscript assembles the transcript snapshot for a student and year.
func (s *TranscriptService) GetTranscript(ctx context.Context, studentID, academicYearID string) (*models.Transcript, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return nil, referenceError(err, "student", studentID)
	}
	if _, err := s.years.FindByID(ctx, academicYearID); err != nil {
		return nil, referenceError(err, "academicYear", academicYearID)
	}

	if cached := s.fromCache(ctx, studentID, academicYearID); cached != nil {
		return cached, nil
	}

	grades, err := s.grades.ListActiveByStudentAndYear(ctx, studentID, academicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	units, err := s.units.FindByIDs(ctx, repository.CollectUnitIDs(grades))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching units")
	}

	transcript := &models.Transcript{
		StudentID:      studentID,
		AcademicYearID: academicYearID,
		Statistics:     ComputeStatistics(grades),
		Units:          make([]models.TranscriptLine, 0, len(grades)),
	}
	for _, grade := range grades {
		transcript.Units = append(transcript.Units, models.TranscriptLine{
			UnitID:   grade.UnitID,
			UnitCode: grade.UnitCode,
			UnitName: grade.UnitName,
			UnitType: units[grade.UnitID].Type,
			Credits:  grade.UnitCredits,
			Score:    grade.Score,
			Status:   grade.Status,
			Session:  grade.Session,
			Semester: grade.Semester,
		})
	}

	active, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	for _, enrollment := range active {
		if enrollment.AcademicYearID == academicYearID {
			transcript.Enrollment = &models.TranscriptEnrollment{
				EnrollmentID: enrollment.ID,
				FacultyID:    enrollment.FacultyID,
				Level:        enrollment.Level,
				Status:       enrollment.Status,
			}
			break
		}
	}

	s.toCache(ctx, transcript)
	return transcript, nil
}

// Invalidate drops the cached transcript for a student and year. Called by
// the grade ledger after every successful mutation.
func (s *TranscriptService) Invalidate(ctx context.Context, studentID, academicYearID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, transcriptKey(studentID, academicYearID)).Err(); err != nil {
		s.logger.Warn("transcript cache invalidation failed",
			zap.String("student_id", studentID),
			zap.String("academic_year_id", academicYearID),
			zap.Error(err),
		)
	}
}

func (s *TranscriptService) fromCache(ctx context.Context, studentID, academicYearID string) *models.Transcript {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, transcriptKey(studentID, academicYearID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("transcript cache read failed", zap.Error(err))
		}
		s.observeCache(false)
		return nil
	}
	var transcript models.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		s.logger.Warn("transcript cache entry corrupt", zap.Error(err))
		s.observeCache(false)
		return nil
	}
	s.observeCache(true)
	return &transcript
}

func (s *TranscriptService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCacheLookup(hit)
	}
}

func (s *TranscriptService) toCache(ctx context.Context, transcript *models.Transcript) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(transcript)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, transcriptKey(transcript.StudentID, transcript.AcademicYearID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("transcript cache write failed", zap.Error(err))
	}
}

func transcriptKey(studentID, academicYearID string) string {
	return fmt.Sprintf("transcript:%s:%s", studentID, academicYearID)
}
