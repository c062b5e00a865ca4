package models

import "time"

// PermissionGrant is the single stored shape of a role permission.
type PermissionGrant struct {
	Action     string    `json:"action"`
	Granted    bool      `json:"granted"`
	ModifiedBy *uint     `json:"modified_by,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Role bundles permissions and carries the seniority rank. Lower rank means
// more senior.
type Role struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"size:100;not null;uniqueIndex:idx_role_scope_name" json:"name"`
	EnterpriseID *uint             `gorm:"uniqueIndex:idx_role_scope_name" json:"enterprise_id"`
	Rank         int               `gorm:"not null" json:"rank"`
	Permissions  []PermissionGrant `gorm:"serializer:json;type:text" json:"permissions"`
	IsActive     bool              `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Allows reports whether the role explicitly grants action.
func (r *Role) Allows(action string) bool {
	if r == nil || !r.IsActive {
		return false
	}
	for _, p := range r.Permissions {
		if p.Action == action {
			return p.Granted
		}
	}
	return false
}

// SeniorTo reports whether r strictly outranks other.
func (r *Role) SeniorTo(other *Role) bool {
	return r.Rank < other.Rank
}
