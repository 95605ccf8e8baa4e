package rbac

// Permissions for the brokerage surface.
const (
	PermissionCreateProject    = "project:create"
	PermissionSubmitProject    = "project:submit"
	PermissionReviewProject    = "project:review"
	PermissionCreateBid        = "bid:create"
	PermissionReviewBid        = "bid:review"
	PermissionSelectBid        = "match:select"
	PermissionManageMatch      = "match:manage"
	PermissionManageEscrow     = "escrow:manage"
	PermissionManageFee        = "fee:manage"
	PermissionRequestMilestone = "milestone:request"
	PermissionReviewMilestone  = "milestone:review"
)

// Roles.
const (
	RoleHomeowner  = "homeowner"
	RoleContractor = "contractor"
	RoleAdmin      = "admin"
)

var rolePermissions = map[string][]string{
	RoleHomeowner: {
		PermissionCreateProject,
		PermissionSubmitProject,
		PermissionSelectBid,
		PermissionReviewMilestone,
	},
	RoleContractor: {
		PermissionCreateBid,
		PermissionRequestMilestone,
	},
	RoleAdmin: {
		PermissionReviewProject,
		PermissionReviewBid,
		PermissionManageMatch,
		PermissionManageEscrow,
		PermissionManageFee,
	},
}

// ValidRole reports whether the role is one the platform knows.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission reports whether a role grants the given permission.
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission returns an error when the role lacks the permission.
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError signals insufficient permissions.
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
