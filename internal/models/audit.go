package models

import "time"

// AuditStatus marks whether the audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusError   AuditStatus = "ERROR"
)

// Audit action constants for the enrollment and grade workflows.
const (
	AuditActionEnrollmentCreate = "ENROLLMENT_CREATE"
	AuditActionEnrollmentUpdate = "ENROLLMENT_UPDATE"
	AuditActionEnrollmentDelete = "ENROLLMENT_DELETE"
	AuditActionEnrollmentRepair = "ENROLLMENT_REPAIR"
	AuditActionGradeSubmit      = "GRADE_SUBMIT"
	AuditActionGradeRetake      = "GRADE_RETAKE"
	AuditActionGradeBulkSubmit  = "GRADE_BULK_SUBMIT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string      `db:"id" json:"id"`
	Action    string      `db:"action" json:"action"`
	Entity    string      `db:"entity" json:"entity"`
	EntityID  *string     `db:"entity_id" json:"entityId,omitempty"`
	Status    AuditStatus `db:"status" json:"status"`
	Metadata  []byte      `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}
