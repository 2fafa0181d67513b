// Package access holds the authorization rules: which role may manage which,
// who may act on a content node or a managed user, and which courses a learner
// can see. Everything here is pure; callers load the rows and pass them in.
package access

import "github.com/lumen-lms/apiserver/types"

// ManageableRoles returns the roles that manager may create and manage.
func ManageableRoles(manager types.Role) []types.Role {
	switch manager {
	case types.RoleAdmin:
		return []types.Role{types.RoleTrainer, types.RoleCRM}
	case types.RoleTrainer:
		return []types.Role{types.RoleCandidate}
	case types.RoleCRM:
		return []types.Role{types.RoleOther}
	case types.RoleCandidate, types.RoleOther:
		return nil
	default:
		return nil
	}
}

// CanManage reports whether a user with role manager may create or manage a
// user with role target.
func CanManage(manager, target types.Role) bool {
	for _, role := range ManageableRoles(manager) {
		if role == target {
			return true
		}
	}
	return false
}
