package models

import "time"

// GradeStatus is the classification of a score against the unit's threshold.
type GradeStatus string

const (
	GradeStatusValid    GradeStatus = "VALID"
	GradeStatusRetake   GradeStatus = "RETAKE"
	GradeStatusNonValid GradeStatus = "NON_VALID"
)

// GradeSession distinguishes the normal evaluation from a retake sitting.
type GradeSession string

const (
	GradeSessionNormal GradeSession = "NORMAL"
	GradeSessionRetake GradeSession = "RETAKE"
)

// Semester labels accepted by the ledger.
const (
	SemesterOne = "S1"
	SemesterTwo = "S2"
)

// Grade is one scored attempt for a (student, unit, year, semester) key.
// Attempts are append-only: a retake adds a new row and flips the active flag,
// the prior row is kept for history. Exactly one row per key is active.
type Grade struct {
	ID             string       `db:"id" json:"id"`
	StudentID      string       `db:"student_id" json:"studentId"`
	UnitID         string       `db:"unit_id" json:"unitId"`
	AcademicYearID string       `db:"academic_year_id" json:"academicYearId"`
	Semester       string       `db:"semester" json:"semester"`
	Score          float64      `db:"score" json:"grade"`
	Status         GradeStatus  `db:"status" json:"status"`
	Session        GradeSession `db:"session" json:"session"`
	IsActive       bool         `db:"is_active" json:"isActive"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
}

// GradeDetail enriches Grade with unit display and credit information.
type GradeDetail struct {
	Grade
	UnitCode    string `db:"unit_code" json:"unitCode"`
	UnitName    string `db:"unit_name" json:"unitName"`
	UnitCredits int    `db:"unit_credits" json:"unitCredits"`
}

// GradeKey identifies the ledger entry a set of attempts belongs to.
type GradeKey struct {
	StudentID      string
	UnitID         string
	AcademicYearID string
	Semester       string
}

// GradeFilter provides filters for listing grades.
type GradeFilter struct {
	StudentID      string
	UnitID         string
	AcademicYearID string
	Semester       string
	Session        GradeSession
	ActiveOnly     bool
	Page           int
	PageSize       int
}
