package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ExternalID string  `gorm:"size:36;uniqueIndex;not null" json:"external_id"`
	Name       string  `gorm:"size:100;not null" json:"name"`
	Username   *string `gorm:"size:100;uniqueIndex" json:"username"`
	Email      string  `gorm:"size:100" json:"email"`
	Phone      string  `gorm:"size:50" json:"phone"`

	RoleID uint  `gorm:"not null;index" json:"role_id"`
	Role   *Role `json:"role,omitempty"`

	BranchID         uint     `gorm:"not null;index" json:"branch_id"`
	Branch           *Branch  `json:"branch,omitempty"`
	AssignedBranches []Branch `gorm:"many2many:user_assigned_branches" json:"assigned_branches,omitempty"`

	// Direct manager. The relation across all users is kept a forest by the
	// hierarchy engine.
	ReportingToID *uint `gorm:"index" json:"reporting_to_id"`

	CanLogin bool `gorm:"default:false" json:"can_login"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	IsDeleted bool           `gorm:"default:false" json:"is_deleted"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	DeletedBy *uint          `json:"deleted_by"`

	CreatedBy *uint     `json:"created_by"`
	UpdatedBy *uint     `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BranchScope returns the primary branch plus every assigned branch.
func (u *User) BranchScope() map[uint]struct{} {
	scope := map[uint]struct{}{u.BranchID: {}}
	for _, b := range u.AssignedBranches {
		scope[b.ID] = struct{}{}
	}
	return scope
}

// CanActOnBranch reports whether branchID falls inside the user's branch
// scope.
func (u *User) CanActOnBranch(branchID uint) bool {
	_, ok := u.BranchScope()[branchID]
	return ok
}

// UserProjection is the public view of a user returned by the services.
type UserProjection struct {
	ID            uint    `json:"id"`
	ExternalID    string  `json:"external_id"`
	Name          string  `json:"name"`
	Username      *string `json:"username,omitempty"`
	RoleID        uint    `json:"role_id"`
	RoleName      string  `json:"role"`
	RoleRank      int     `json:"role_rank"`
	BranchID      uint    `json:"branch_id"`
	ReportingToID *uint   `json:"reporting_to_id"`
	IsActive      bool    `json:"is_active"`
}

func (u *User) Projection() UserProjection {
	p := UserProjection{
		ID:            u.ID,
		ExternalID:    u.ExternalID,
		Name:          u.Name,
		Username:      u.Username,
		RoleID:        u.RoleID,
		BranchID:      u.BranchID,
		ReportingToID: u.ReportingToID,
		IsActive:      u.IsActive,
	}
	if u.Role != nil {
		p.RoleName = u.Role.Name
		p.RoleRank = u.Role.Rank
	}
	return p
}
