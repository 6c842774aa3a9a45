package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-academic-api/internal/models"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	created     *models.Enrollment
	repairErr   map[string]error
	corrected   map[string]int
	violators   []string

	// raceConflict simulates a row committed by a concurrent enroll between
	// the service's pre-check and the locked transaction.
	raceConflict *models.EnrollmentConflict
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByStudentAndYear(ctx context.Context, studentID, academicYearID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.AcademicYearID == academicYearID {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *mockEnrollmentRepo) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusActive {
			list = append(list, e)
		}
	}
	return list, nil
}

func (m *mockEnrollmentRepo) CreateCompletingActive(ctx context.Context, enrollment *models.Enrollment) (*models.EnrollmentConflict, error) {
	if m.raceConflict != nil {
		conflict := m.raceConflict
		m.raceConflict = nil
		return conflict, nil
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	for id, e := range m.enrollments {
		if e.StudentID == enrollment.StudentID && e.Status == models.EnrollmentStatusActive {
			e.Status = models.EnrollmentStatusCompleted
			m.enrollments[id] = e
		}
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	enrollment.Status = models.EnrollmentStatusActive
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = time.Now().UTC()
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil, nil
}

func (m *mockEnrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.enrollments, id)
	return nil
}

func (m *mockEnrollmentRepo) CompleteAllButLatest(ctx context.Context, studentID string) (int, error) {
	if err, ok := m.repairErr[studentID]; ok {
		return 0, err
	}
	active, _ := m.ListActiveByStudent(ctx, studentID)
	if len(active) <= 1 {
		return 0, nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].EnrollmentDate.After(active[j].EnrollmentDate) })
	corrected := 0
	for _, e := range active[1:] {
		e.Status = models.EnrollmentStatusCompleted
		m.enrollments[e.ID] = e
		corrected++
	}
	if m.corrected == nil {
		m.corrected = make(map[string]int)
	}
	m.corrected[studentID] += corrected
	return corrected, nil
}

func (m *mockEnrollmentRepo) ListStudentsWithMultipleActive(ctx context.Context) ([]string, error) {
	return m.violators, nil
}

type mockStudentReader struct {
	missing map[string]bool
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if m.missing[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Student{ID: id, Status: models.StudentStatusActive}, nil
}

type mockFacultyReader struct {
	missing map[string]bool
}

func (m *mockFacultyReader) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	if m.missing[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Faculty{ID: id}, nil
}

type mockYearReader struct {
	missing map[string]bool
	labels  map[string]string
}

func (m *mockYearReader) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if m.missing[id] {
		return nil, sql.ErrNoRows
	}
	return &models.AcademicYear{ID: id}, nil
}

func (m *mockYearReader) FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error) {
	if id, ok := m.labels[label]; ok {
		return &models.AcademicYear{ID: id, Year: label}, nil
	}
	return nil, sql.ErrNoRows
}

type auditEntry struct {
	Action   string
	EntityID string
	Status   models.AuditStatus
	Metadata map[string]interface{}
}

type mockAuditRecorder struct {
	entries []auditEntry
}

func (m *mockAuditRecorder) Record(ctx context.Context, action, entity, entityID string, status models.AuditStatus, metadata map[string]interface{}) {
	m.entries = append(m.entries, auditEntry{Action: action, EntityID: entityID, Status: status, Metadata: metadata})
}

func newEnrollmentService(repo *mockEnrollmentRepo, auditor *mockAuditRecorder) *EnrollmentService {
	return NewEnrollmentService(repo, &mockStudentReader{}, &mockFacultyReader{}, &mockYearReader{}, auditor, nil, nil)
}

func TestEnrollCompletesPriorActiveEnrollments(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", FacultyID: "fac-1", Level: "L1", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
	}}
	auditor := &mockAuditRecorder{}
	svc := newEnrollmentService(repo, auditor)

	detail, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-1",
		Level:          "L2",
		AcademicYearID: "year-2",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Equal(t, models.EnrollmentStatusCompleted, repo.enrollments["enr-1"].Status)

	active, _ := repo.ListActiveByStudent(context.Background(), "stu-1")
	assert.Len(t, active, 1)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, models.AuditActionEnrollmentCreate, auditor.entries[0].Action)
	assert.Equal(t, models.AuditStatusSuccess, auditor.entries[0].Status)
}

func TestEnrollRejectsActiveEnrollmentAtDifferentLevel(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", FacultyID: "fac-1", Level: "L1", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
	}}
	auditor := &mockAuditRecorder{}
	svc := newEnrollmentService(repo, auditor)

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-2",
		Level:          "L2",
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMultipleEnrollments))

	appErr := appErrors.FromError(err)
	assert.Equal(t, "enr-1", appErr.Details["enrollmentId"])

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, models.AuditStatusError, auditor.entries[0].Status)
}

func TestEnrollRejectsDuplicateForSameFacultyAndLevel(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", FacultyID: "fac-1", Level: "L1", AcademicYearID: "year-1", Status: models.EnrollmentStatusCompleted},
	}}
	svc := newEnrollmentService(repo, &mockAuditRecorder{})

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-1",
		Level:          "L1",
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateEnrollment))
}

func TestEnrollRejectsUnknownReferences(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := NewEnrollmentService(repo, &mockStudentReader{missing: map[string]bool{"ghost": true}}, &mockFacultyReader{}, &mockYearReader{}, nil, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "ghost",
		FacultyID:      "fac-1",
		Level:          "L1",
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReferenceNotFound))

	appErr := appErrors.FromError(err)
	assert.Equal(t, 422, appErr.Status)
	assert.Equal(t, "student", appErr.Details["entity"])
}

func TestEnrollRejectsMissingFields(t *testing.T) {
	svc := newEnrollmentService(&mockEnrollmentRepo{}, &mockAuditRecorder{})

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEnsureSingleActiveIsIdempotent(t *testing.T) {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive, EnrollmentDate: base},
		"enr-2": {ID: "enr-2", StudentID: "stu-1", Status: models.EnrollmentStatusActive, EnrollmentDate: base.AddDate(0, 1, 0)},
		"enr-3": {ID: "enr-3", StudentID: "stu-1", Status: models.EnrollmentStatusActive, EnrollmentDate: base.AddDate(0, 2, 0)},
	}}
	auditor := &mockAuditRecorder{}
	svc := newEnrollmentService(repo, auditor)

	corrected, err := svc.EnsureSingleActive(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, corrected)
	assert.Equal(t, models.EnrollmentStatusActive, repo.enrollments["enr-3"].Status)
	assert.Equal(t, models.EnrollmentStatusCompleted, repo.enrollments["enr-1"].Status)
	assert.Equal(t, models.EnrollmentStatusCompleted, repo.enrollments["enr-2"].Status)

	corrected, err = svc.EnsureSingleActive(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)

	// Only the correcting run leaves an audit trail.
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, models.AuditActionEnrollmentRepair, auditor.entries[0].Action)
}

func TestRepairAllStudentsIsolatesFailures(t *testing.T) {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive, EnrollmentDate: base},
			"enr-2": {ID: "enr-2", StudentID: "stu-1", Status: models.EnrollmentStatusActive, EnrollmentDate: base.AddDate(0, 1, 0)},
		},
		violators: []string{"stu-broken", "stu-1"},
		repairErr: map[string]error{"stu-broken": errors.New("deadlock")},
	}
	svc := newEnrollmentService(repo, &mockAuditRecorder{})

	result, err := svc.RepairAllStudents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.StudentsChecked)
	assert.Equal(t, 1, result.StudentsCorrected)
	assert.Equal(t, 1, result.EnrollmentsCompleted)
	assert.Equal(t, []string{"stu-broken"}, result.FailedStudents)
}

func TestDeleteEnrollmentNotFound(t *testing.T) {
	svc := newEnrollmentService(&mockEnrollmentRepo{}, &mockAuditRecorder{})

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestUpdateEnrollmentResolvesReferences(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", FacultyID: "fac-1", Level: "L1", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
	}}
	svc := NewEnrollmentService(repo, &mockStudentReader{}, &mockFacultyReader{missing: map[string]bool{"ghost": true}}, &mockYearReader{}, nil, nil, nil)

	ghost := "ghost"
	_, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{FacultyID: &ghost})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReferenceNotFound))

	level := "L2"
	detail, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{Level: &level})
	require.NoError(t, err)
	assert.Equal(t, "L2", detail.Level)
}

func TestEnrollReportsConflictDetectedInsideTransaction(t *testing.T) {
	repo := &mockEnrollmentRepo{raceConflict: &models.EnrollmentConflict{
		Existing: models.Enrollment{ID: "enr-raced", StudentID: "stu-1", FacultyID: "fac-1", Level: "L1", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
	}}
	auditor := &mockAuditRecorder{}
	svc := newEnrollmentService(repo, auditor)

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-1",
		Level:          "L1",
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateEnrollment))

	appErr := appErrors.FromError(err)
	assert.Equal(t, "enr-raced", appErr.Details["enrollmentId"])
	assert.Empty(t, repo.enrollments)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, models.AuditStatusError, auditor.entries[0].Status)
}

func TestEnrollReportsCrossLevelConflictDetectedInsideTransaction(t *testing.T) {
	repo := &mockEnrollmentRepo{raceConflict: &models.EnrollmentConflict{
		Existing:   models.Enrollment{ID: "enr-raced", StudentID: "stu-1", FacultyID: "fac-2", Level: "L2", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
		CrossLevel: true,
	}}
	svc := newEnrollmentService(repo, &mockAuditRecorder{})

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-1",
		Level:          "L1",
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMultipleEnrollments))
}

func TestUpdateEnrollmentAcceptsYearLabel(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", FacultyID: "fac-1", Level: "L1", AcademicYearID: "year-1", Status: models.EnrollmentStatusActive},
	}}
	years := &mockYearReader{
		missing: map[string]bool{"2026-2027": true},
		labels:  map[string]string{"2026-2027": "year-2"},
	}
	svc := NewEnrollmentService(repo, &mockStudentReader{}, &mockFacultyReader{}, years, nil, nil, nil)

	label := "2026-2027"
	detail, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{AcademicYearID: &label})
	require.NoError(t, err)
	assert.Equal(t, "year-2", detail.AcademicYearID)
}

func TestEnrollResolvesYearLabel(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	years := &mockYearReader{
		missing: map[string]bool{"2025-2026": true},
		labels:  map[string]string{"2025-2026": "year-1"},
	}
	svc := NewEnrollmentService(repo, &mockStudentReader{}, &mockFacultyReader{}, years, nil, nil, nil)

	detail, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-1",
		Level:          "L1",
		AcademicYearID: "2025-2026",
	})
	require.NoError(t, err)
	assert.Equal(t, "year-1", detail.AcademicYearID)
}

func TestEnrollRejectsYearUnknownByIDAndLabel(t *testing.T) {
	years := &mockYearReader{missing: map[string]bool{"nope": true}}
	svc := NewEnrollmentService(&mockEnrollmentRepo{}, &mockStudentReader{}, &mockFacultyReader{}, years, nil, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID:      "stu-1",
		FacultyID:      "fac-1",
		Level:          "L1",
		AcademicYearID: "nope",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReferenceNotFound))
}
