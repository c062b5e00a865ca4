package models

import "time"

type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionRestore AuditAction = "restore"
	AuditActionLogin   AuditAction = "login"
	AuditActionLogout  AuditAction = "logout"
	AuditActionLock    AuditAction = "lock"
)

// ActivityLog is an append only audit entry.
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	BranchID *uint `json:"branch_id"`

	// Acting user; zero for anonymous actions such as failed logins.
	UserID   uint   `gorm:"index" json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"`

	// e.g. "user", "credential", "reporting", "branch", "role"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	// Before and after state as JSON text, "null" when absent.
	BeforeData string `gorm:"type:text" json:"before_data"`
	AfterData  string `gorm:"type:text" json:"after_data"`
}

type BranchAssignmentAction string

const (
	BranchAssign BranchAssignmentAction = "assign"
	BranchRemove BranchAssignmentAction = "remove"
)

type BranchAssignmentLog struct {
	ID          uint                   `gorm:"primaryKey" json:"id"`
	UserID      uint                   `gorm:"index;not null" json:"user_id"`
	BranchID    uint                   `gorm:"index;not null" json:"branch_id"`
	Action      BranchAssignmentAction `gorm:"size:10;not null" json:"action"`
	PerformedBy uint                   `json:"performed_by"`
	CreatedAt   time.Time              `json:"created_at"`
}
