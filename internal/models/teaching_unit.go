package models

import "time"

// UnitType distinguishes mandatory from elective teaching units.
type UnitType string

const (
	UnitTypeMandatory UnitType = "MANDATORY"
	UnitTypeElective  UnitType = "ELECTIVE"
)

// TeachingUnit is a course unit carrying a credit weight and an optional
// passing-grade threshold. A nil PassingGrade falls back to the configured
// institutional default.
type TeachingUnit struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Credits      int       `db:"credits" json:"credits"`
	Type         UnitType  `db:"type" json:"type"`
	PassingGrade *float64  `db:"passing_grade" json:"passingGrade,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}
