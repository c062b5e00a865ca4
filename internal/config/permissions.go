package config

import "sort"

// Permission action strings understood by the HTTP gates.
const (
	PermDirectoryManage   = "directory.manage"
	PermHierarchyView     = "hierarchy.view"
	PermHierarchyManage   = "hierarchy.manage"
	PermBranchAssign      = "branches.assign"
	PermSessionsTerminate = "sessions.terminate"
	PermAuditView         = "audit.view"
)

var DefaultPermissions = []string{
	PermDirectoryManage,
	PermHierarchyView,
	PermHierarchyManage,
	PermBranchAssign,
	PermSessionsTerminate,
	PermAuditView,
}

// PermissionCatalog is the fixed set of permission actions a role may be
// granted. It is built once at startup and never mutated afterwards.
type PermissionCatalog struct {
	actions map[string]struct{}
}

func NewPermissionCatalog(actions ...string) PermissionCatalog {
	m := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		m[a] = struct{}{}
	}
	return PermissionCatalog{actions: m}
}

func (p PermissionCatalog) Contains(action string) bool {
	_, ok := p.actions[action]
	return ok
}

// Actions returns the catalog sorted, as a fresh slice.
func (p PermissionCatalog) Actions() []string {
	out := make([]string, 0, len(p.actions))
	for a := range p.actions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
