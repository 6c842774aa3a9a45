package models

import "time"

// StudentStatus represents the administrative standing of a student.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusSuspended StudentStatus = "SUSPENDED"
)

// Student represents a learner registered with the university.
type Student struct {
	ID        string        `db:"id" json:"id"`
	MatricNo  string        `db:"matric_no" json:"matricNo"`
	FullName  string        `db:"full_name" json:"fullName"`
	Email     string        `db:"email" json:"email"`
	Status    StudentStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
