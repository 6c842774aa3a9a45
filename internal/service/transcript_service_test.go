package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-academic-api/internal/models"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

type mockActiveGradeLister struct {
	grades []models.GradeDetail
	calls  int
}

func (m *mockActiveGradeLister) ListActiveByStudentAndYear(ctx context.Context, studentID, academicYearID string) ([]models.GradeDetail, error) {
	m.calls++
	return m.grades, nil
}

type mockEnrollmentLister struct {
	enrollments []models.Enrollment
}

func (m *mockEnrollmentLister) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	return m.enrollments, nil
}

type mockUnitBatchReader struct {
	units map[string]models.TeachingUnit
}

func (m *mockUnitBatchReader) FindByIDs(ctx context.Context, ids []string) (map[string]models.TeachingUnit, error) {
	out := make(map[string]models.TeachingUnit, len(ids))
	for _, id := range ids {
		if unit, ok := m.units[id]; ok {
			out[id] = unit
		}
	}
	return out, nil
}

func newTranscriptService(lister *mockActiveGradeLister, enrollments *mockEnrollmentLister, units *mockUnitBatchReader, students *mockStudentReader) *TranscriptService {
	if enrollments == nil {
		enrollments = &mockEnrollmentLister{}
	}
	if units == nil {
		units = &mockUnitBatchReader{}
	}
	if students == nil {
		students = &mockStudentReader{}
	}
	return NewTranscriptService(lister, enrollments, units, students, &mockYearReader{}, nil, 0, nil)
}

func gradeLine(unitID string, credits int, score float64, status models.GradeStatus) models.GradeDetail {
	return models.GradeDetail{
		Grade: models.Grade{
			StudentID:      "stu-1",
			UnitID:         unitID,
			AcademicYearID: "year-1",
			Semester:       models.SemesterOne,
			Score:          score,
			Status:         status,
			Session:        models.GradeSessionNormal,
			IsActive:       true,
		},
		UnitCredits: credits,
	}
}

func TestComputeStatistics(t *testing.T) {
	grades := []models.GradeDetail{
		gradeLine("unit-1", 3, 80, models.GradeStatusValid),
		gradeLine("unit-2", 2, 50, models.GradeStatusRetake),
		gradeLine("unit-3", 2, 30, models.GradeStatusNonValid),
	}

	stats := ComputeStatistics(grades)
	assert.Equal(t, 7, stats.TotalCredits)
	assert.Equal(t, 3, stats.CreditsEarned)
	assert.Equal(t, 80.0, stats.GPA)
	assert.Equal(t, 42.9, stats.SuccessRate)
}

func TestComputeStatisticsAveragesValidScoresOnly(t *testing.T) {
	grades := []models.GradeDetail{
		gradeLine("unit-1", 3, 90, models.GradeStatusValid),
		gradeLine("unit-2", 3, 70, models.GradeStatusValid),
		gradeLine("unit-3", 2, 10, models.GradeStatusNonValid),
	}

	stats := ComputeStatistics(grades)
	assert.Equal(t, 80.0, stats.GPA)
	assert.Equal(t, 8, stats.TotalCredits)
	assert.Equal(t, 6, stats.CreditsEarned)
	assert.Equal(t, 75.0, stats.SuccessRate)
}

func TestComputeStatisticsEmptyInput(t *testing.T) {
	stats := ComputeStatistics(nil)
	assert.Equal(t, 0.0, stats.GPA)
	assert.Equal(t, 0, stats.TotalCredits)
	assert.Equal(t, 0, stats.CreditsEarned)
	assert.Equal(t, 0.0, stats.SuccessRate)
}

func TestComputeStatisticsDeterministic(t *testing.T) {
	grades := []models.GradeDetail{
		gradeLine("unit-1", 3, 80, models.GradeStatusValid),
		gradeLine("unit-2", 2, 50, models.GradeStatusRetake),
	}
	first := ComputeStatistics(grades)
	second := ComputeStatistics(grades)
	assert.Equal(t, first, second)
}

func TestGetTranscriptAssemblesSnapshot(t *testing.T) {
	lister := &mockActiveGradeLister{grades: []models.GradeDetail{
		gradeLine("unit-1", 3, 80, models.GradeStatusValid),
		gradeLine("unit-2", 2, 50, models.GradeStatusRetake),
	}}
	enrollments := &mockEnrollmentLister{enrollments: []models.Enrollment{
		{ID: "enr-1", StudentID: "stu-1", FacultyID: "fac-1", Level: "L2", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
	}}
	units := &mockUnitBatchReader{units: map[string]models.TeachingUnit{
		"unit-1": {ID: "unit-1", Type: models.UnitTypeMandatory},
		"unit-2": {ID: "unit-2", Type: models.UnitTypeElective},
	}}
	svc := newTranscriptService(lister, enrollments, units, nil)

	transcript, err := svc.GetTranscript(context.Background(), "stu-1", "year-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", transcript.StudentID)
	assert.Equal(t, "year-1", transcript.AcademicYearID)
	require.Len(t, transcript.Units, 2)
	assert.Equal(t, models.UnitTypeMandatory, transcript.Units[0].UnitType)
	assert.Equal(t, models.UnitTypeElective, transcript.Units[1].UnitType)
	assert.Equal(t, 5, transcript.Statistics.TotalCredits)
	assert.Equal(t, 3, transcript.Statistics.CreditsEarned)
	assert.Equal(t, 80.0, transcript.Statistics.GPA)
	assert.Equal(t, 60.0, transcript.Statistics.SuccessRate)

	require.NotNil(t, transcript.Enrollment)
	assert.Equal(t, "enr-1", transcript.Enrollment.EnrollmentID)
	assert.Equal(t, "fac-1", transcript.Enrollment.FacultyID)
	assert.Equal(t, "L2", transcript.Enrollment.Level)
}

func TestGetTranscriptOmitsEnrollmentForOtherYears(t *testing.T) {
	lister := &mockActiveGradeLister{grades: []models.GradeDetail{
		gradeLine("unit-1", 3, 80, models.GradeStatusValid),
	}}
	enrollments := &mockEnrollmentLister{enrollments: []models.Enrollment{
		{ID: "enr-2", StudentID: "stu-1", FacultyID: "fac-1", Level: "L3", AcademicYearID: "year-2", Status: models.EnrollmentStatusActive},
	}}
	svc := newTranscriptService(lister, enrollments, nil, nil)

	transcript, err := svc.GetTranscript(context.Background(), "stu-1", "year-1")
	require.NoError(t, err)
	assert.Nil(t, transcript.Enrollment)
}

func TestGetTranscriptRejectsUnknownStudent(t *testing.T) {
	lister := &mockActiveGradeLister{}
	students := &mockStudentReader{missing: map[string]bool{"ghost": true}}
	svc := newTranscriptService(lister, nil, nil, students)

	_, err := svc.GetTranscript(context.Background(), "ghost", "year-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReferenceNotFound))
	assert.Equal(t, 0, lister.calls)
}

func TestGetTranscriptRecomputesWithoutCache(t *testing.T) {
	lister := &mockActiveGradeLister{grades: []models.GradeDetail{
		gradeLine("unit-1", 3, 80, models.GradeStatusValid),
	}}
	svc := newTranscriptService(lister, nil, nil, nil)

	_, err := svc.GetTranscript(context.Background(), "stu-1", "year-1")
	require.NoError(t, err)
	_, err = svc.GetTranscript(context.Background(), "stu-1", "year-1")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}
