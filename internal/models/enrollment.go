package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment links a student to a faculty and level for one academic year.
// A student holds at most one ACTIVE enrollment per academic year; creating a
// new active enrollment completes all prior active ones in the same operation.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"studentId"`
	FacultyID      string           `db:"faculty_id" json:"facultyId"`
	Level          string           `db:"level" json:"level"`
	AcademicYearID string           `db:"academic_year_id" json:"academicYearId"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollmentDate"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// EnrollmentDetail enriches Enrollment with display fields.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"studentName"`
	StudentMatric string `db:"student_matric" json:"studentMatric"`
	FacultyName   string `db:"faculty_name" json:"facultyName"`
	AcademicYear  string `db:"academic_year" json:"academicYear"`
}

// EnrollmentConflict reports the existing row that blocks a candidate
// enrollment. CrossLevel marks an ACTIVE row at another level; otherwise the
// candidate duplicates a prior row for the same faculty and level.
type EnrollmentConflict struct {
	Existing   Enrollment
	CrossLevel bool
}

// FindEnrollmentConflict scans the student's same-year rows for one that
// blocks the candidate. Cross-level active rows take precedence over
// duplicates. Returns nil when the candidate is admissible.
func FindEnrollmentConflict(sameYear []Enrollment, candidate Enrollment) *EnrollmentConflict {
	for _, existing := range sameYear {
		if existing.Status == EnrollmentStatusActive && existing.Level != candidate.Level {
			return &EnrollmentConflict{Existing: existing, CrossLevel: true}
		}
	}
	for _, existing := range sameYear {
		if existing.FacultyID == candidate.FacultyID && existing.Level == candidate.Level {
			return &EnrollmentConflict{Existing: existing}
		}
	}
	return nil
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID      string
	FacultyID      string
	AcademicYearID string
	Level          string
	Status         EnrollmentStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// RepairResult summarises a single-active-enrollment repair sweep.
type RepairResult struct {
	StudentsChecked      int      `json:"studentsChecked"`
	StudentsCorrected    int      `json:"studentsCorrected"`
	EnrollmentsCompleted int      `json:"enrollmentsCompleted"`
	FailedStudents       []string `json:"failedStudents,omitempty"`
}
