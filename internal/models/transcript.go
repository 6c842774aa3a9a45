package models

// Statistics is the derived aggregate over a student's active grades.
// It is recomputed on demand and never stored.
type Statistics struct {
	GPA           float64 `json:"gpa"`
	TotalCredits  int     `json:"totalCredits"`
	CreditsEarned int     `json:"creditsEarned"`
	SuccessRate   float64 `json:"successRate"`
}

// TranscriptLine is one unit row on a transcript.
type TranscriptLine struct {
	UnitID   string       `json:"unitId"`
	UnitCode string       `json:"unitCode"`
	UnitName string       `json:"unitName"`
	UnitType UnitType     `json:"unitType,omitempty"`
	Credits  int          `json:"credits"`
	Score    float64      `json:"grade"`
	Status   GradeStatus  `json:"status"`
	Session  GradeSession `json:"session"`
	Semester string       `json:"semester"`
}

// TranscriptEnrollment names the enrollment context printed on the document.
type TranscriptEnrollment struct {
	EnrollmentID string           `json:"enrollmentId"`
	FacultyID    string           `json:"facultyId"`
	Level        string           `json:"level"`
	Status       EnrollmentStatus `json:"status"`
}

// Transcript is the point-in-time snapshot handed to document generation.
// Enrollment is nil when the student holds no active enrollment for the year.
type Transcript struct {
	StudentID      string                `json:"studentId"`
	AcademicYearID string                `json:"academicYearId"`
	Enrollment     *TranscriptEnrollment `json:"enrollment,omitempty"`
	Statistics     Statistics            `json:"statistics"`
	Units          []TranscriptLine      `json:"units"`
}
