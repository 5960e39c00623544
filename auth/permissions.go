package auth

// CanTransitionCases reports whether the role may move a case between
// workflow stages. Viewers are read-only.
func CanTransitionCases(role Role) bool {
	switch role {
	case RoleAdmin, RoleServiceAdvisor, RoleTechnician:
		return true
	default:
		return false
	}
}

// CanManageStages reports whether the role may edit the tenant's stage catalog.
func CanManageStages(role Role) bool {
	return role == RoleAdmin
}
