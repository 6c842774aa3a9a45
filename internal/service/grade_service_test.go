package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-academic-api/internal/audit"
	"github.com/noah-isme/uni-academic-api/internal/models"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

type mockGradeRepo struct {
	grades map[string]models.Grade
	seq    int

	// raceExisting simulates a row committed by a concurrent submission
	// between the service's pre-check and the locked insert.
	raceExisting *models.Grade
}

func (m *mockGradeRepo) nextID() string {
	m.seq++
	return fmt.Sprintf("grade-%d", m.seq)
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error) {
	var list []models.GradeDetail
	for _, g := range m.grades {
		if filter.ActiveOnly && !g.IsActive {
			continue
		}
		list = append(list, models.GradeDetail{Grade: g})
	}
	return list, nil
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := m.grades[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error) {
	if g, ok := m.grades[id]; ok {
		return &models.GradeDetail{Grade: g, UnitCredits: 3}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) FindActiveByKey(ctx context.Context, key models.GradeKey) (*models.Grade, error) {
	for _, g := range m.grades {
		if g.StudentID == key.StudentID && g.UnitID == key.UnitID && g.AcademicYearID == key.AcademicYearID && g.Semester == key.Semester && g.IsActive {
			return &g, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) ListByKey(ctx context.Context, key models.GradeKey) ([]models.GradeDetail, error) {
	var list []models.GradeDetail
	for _, g := range m.grades {
		if g.StudentID == key.StudentID && g.UnitID == key.UnitID && g.AcademicYearID == key.AcademicYearID && g.Semester == key.Semester {
			list = append(list, models.GradeDetail{Grade: g})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) (*models.Grade, error) {
	if m.raceExisting != nil {
		existing := m.raceExisting
		m.raceExisting = nil
		return existing, nil
	}
	if m.grades == nil {
		m.grades = make(map[string]models.Grade)
	}
	if grade.ID == "" {
		grade.ID = m.nextID()
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = time.Now().UTC()
	}
	grade.IsActive = true
	m.grades[grade.ID] = *grade
	return nil, nil
}

func (m *mockGradeRepo) InsertRetake(ctx context.Context, priorID string, retake *models.Grade) error {
	prior, ok := m.grades[priorID]
	if !ok || !prior.IsActive {
		return sql.ErrNoRows
	}
	prior.IsActive = false
	m.grades[priorID] = prior

	if retake.ID == "" {
		retake.ID = m.nextID()
	}
	if retake.CreatedAt.IsZero() {
		retake.CreatedAt = time.Now().UTC()
	}
	retake.IsActive = true
	retake.Session = models.GradeSessionRetake
	m.grades[retake.ID] = *retake
	return nil
}

type mockUnitReader struct {
	missing map[string]bool
	passing map[string]float64
	credits map[string]int
}

func (m *mockUnitReader) FindByID(ctx context.Context, id string) (*models.TeachingUnit, error) {
	if m.missing[id] {
		return nil, sql.ErrNoRows
	}
	unit := &models.TeachingUnit{ID: id, Credits: 3}
	if c, ok := m.credits[id]; ok {
		unit.Credits = c
	}
	if p, ok := m.passing[id]; ok {
		threshold := p
		unit.PassingGrade = &threshold
	}
	return unit, nil
}

type mockInvalidator struct {
	calls []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, studentID, academicYearID string) {
	m.calls = append(m.calls, studentID+":"+academicYearID)
}

func newGradeService(repo *mockGradeRepo, units *mockUnitReader, invalidator *mockInvalidator, auditor *mockAuditRecorder) *GradeService {
	if units == nil {
		units = &mockUnitReader{}
	}
	policy := NewGradePolicy(60, 0.7)
	var inv transcriptInvalidator
	if invalidator != nil {
		inv = invalidator
	}
	var rec audit.Recorder
	if auditor != nil {
		rec = auditor
	}
	return NewGradeService(repo, &mockStudentReader{}, units, &mockYearReader{}, policy, inv, rec, nil, nil)
}

func submitRequest(score float64) SubmitGradeRequest {
	return SubmitGradeRequest{
		StudentID:      "stu-1",
		UnitID:         "unit-1",
		AcademicYearID: "year-1",
		Semester:       models.SemesterOne,
		Score:          score,
	}
}

func TestSubmitClassifiesAndStoresGrade(t *testing.T) {
	repo := &mockGradeRepo{}
	invalidator := &mockInvalidator{}
	svc := newGradeService(repo, nil, invalidator, nil)

	detail, err := svc.Submit(context.Background(), submitRequest(75))
	require.NoError(t, err)
	assert.Equal(t, models.GradeStatusValid, detail.Status)
	assert.Equal(t, models.GradeSessionNormal, detail.Session)
	assert.True(t, detail.IsActive)
	assert.Equal(t, []string{"stu-1:year-1"}, invalidator.calls)
}

func TestSubmitUsesUnitPassingGradeOverride(t *testing.T) {
	repo := &mockGradeRepo{}
	units := &mockUnitReader{passing: map[string]float64{"unit-1": 80}}
	svc := newGradeService(repo, units, nil, nil)

	detail, err := svc.Submit(context.Background(), submitRequest(75))
	require.NoError(t, err)
	assert.Equal(t, models.GradeStatusRetake, detail.Status)
}

func TestSubmitRejectsDuplicateForSameKey(t *testing.T) {
	repo := &mockGradeRepo{}
	auditor := &mockAuditRecorder{}
	svc := newGradeService(repo, nil, nil, auditor)

	_, err := svc.Submit(context.Background(), submitRequest(75))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), submitRequest(80))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrGradeExists))

	appErr := appErrors.FromError(err)
	assert.Equal(t, 75.0, appErr.Details["grade"])

	require.Len(t, auditor.entries, 2)
	assert.Equal(t, models.AuditStatusError, auditor.entries[1].Status)
}

func TestSubmitAllowsSameUnitInOtherSemester(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, nil, nil, nil)

	_, err := svc.Submit(context.Background(), submitRequest(75))
	require.NoError(t, err)

	other := submitRequest(70)
	other.Semester = models.SemesterTwo
	_, err = svc.Submit(context.Background(), other)
	require.NoError(t, err)
}

func TestRecordRetakePreservesHistory(t *testing.T) {
	repo := &mockGradeRepo{}
	invalidator := &mockInvalidator{}
	svc := newGradeService(repo, nil, invalidator, nil)

	prior, err := svc.Submit(context.Background(), submitRequest(50))
	require.NoError(t, err)
	require.Equal(t, models.GradeStatusRetake, prior.Status)

	retake, err := svc.RecordRetake(context.Background(), prior.ID, 70)
	require.NoError(t, err)
	assert.Equal(t, models.GradeStatusValid, retake.Status)
	assert.Equal(t, models.GradeSessionRetake, retake.Session)
	assert.True(t, retake.IsActive)
	assert.NotEqual(t, prior.ID, retake.ID)

	stored := repo.grades[prior.ID]
	assert.False(t, stored.IsActive)
	assert.Equal(t, 50.0, stored.Score)

	key := models.GradeKey{StudentID: "stu-1", UnitID: "unit-1", AcademicYearID: "year-1", Semester: models.SemesterOne}
	history, err := svc.History(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	active, err := svc.ActiveGrade(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, retake.ID, active.ID)

	assert.Len(t, invalidator.calls, 2)
}

func TestRecordRetakeRejectsValidGrade(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, nil, nil, nil)

	prior, err := svc.Submit(context.Background(), submitRequest(80))
	require.NoError(t, err)

	_, err = svc.RecordRetake(context.Background(), prior.ID, 90)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRecordRetakeRejectsSupersededGrade(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, nil, nil, nil)

	prior, err := svc.Submit(context.Background(), submitRequest(50))
	require.NoError(t, err)
	_, err = svc.RecordRetake(context.Background(), prior.ID, 55)
	require.NoError(t, err)

	_, err = svc.RecordRetake(context.Background(), prior.ID, 65)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRecordRetakeUnknownGrade(t *testing.T) {
	svc := newGradeService(&mockGradeRepo{}, nil, nil, nil)

	_, err := svc.RecordRetake(context.Background(), "missing", 70)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestBulkSubmitIsolatesFailures(t *testing.T) {
	repo := &mockGradeRepo{}
	auditor := &mockAuditRecorder{}
	svc := newGradeService(repo, nil, nil, auditor)

	good := submitRequest(75)
	duplicate := submitRequest(80)
	invalid := submitRequest(75)
	invalid.Semester = "S3"

	result, err := svc.BulkSubmit(context.Background(), []SubmitGradeRequest{good, duplicate, invalid})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, appErrors.ErrGradeExists.Code, result.Failed[0].Code)
	assert.Equal(t, appErrors.ErrValidation.Code, result.Failed[1].Code)

	summary := auditor.entries[len(auditor.entries)-1]
	assert.Equal(t, models.AuditActionGradeBulkSubmit, summary.Action)
	assert.Equal(t, 1, summary.Metadata["succeeded"])
	assert.Equal(t, 2, summary.Metadata["failed"])
}

func TestActiveGradeReturnsNilWhenNoAttempts(t *testing.T) {
	svc := newGradeService(&mockGradeRepo{}, nil, nil, nil)

	key := models.GradeKey{StudentID: "stu-1", UnitID: "unit-1", AcademicYearID: "year-1", Semester: models.SemesterOne}
	grade, err := svc.ActiveGrade(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, grade)
}

func TestSubmitReportsGradeInsertedConcurrently(t *testing.T) {
	repo := &mockGradeRepo{raceExisting: &models.Grade{
		ID:             "grade-raced",
		StudentID:      "stu-1",
		UnitID:         "unit-1",
		AcademicYearID: "year-1",
		Semester:       models.SemesterOne,
		Score:          62,
		Status:         models.GradeStatusValid,
		Session:        models.GradeSessionNormal,
		IsActive:       true,
	}}
	invalidator := &mockInvalidator{}
	svc := newGradeService(repo, nil, invalidator, nil)

	_, err := svc.Submit(context.Background(), submitRequest(75))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrGradeExists))

	appErr := appErrors.FromError(err)
	assert.Equal(t, "grade-raced", appErr.Details["gradeId"])
	assert.Equal(t, 62.0, appErr.Details["grade"])
	assert.Empty(t, repo.grades)
	assert.Empty(t, invalidator.calls)
}

func TestSubmitRejectsUnknownUnit(t *testing.T) {
	units := &mockUnitReader{missing: map[string]bool{"unit-1": true}}
	svc := newGradeService(&mockGradeRepo{}, units, nil, nil)

	_, err := svc.Submit(context.Background(), submitRequest(75))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReferenceNotFound))
}
