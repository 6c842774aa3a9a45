package models

import "time"

// AcademicYear models one named academic period (e.g. "2025-2026").
// At most one year is flagged current; that invariant is maintained by the
// administrative tooling, not by this service.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	Year      string    `db:"year" json:"year"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`
	IsCurrent bool      `db:"is_current" json:"isCurrent"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
