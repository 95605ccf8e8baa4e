package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleGrants(t *testing.T) {
	assert.True(t, HasPermission(RoleHomeowner, PermissionCreateProject))
	assert.True(t, HasPermission(RoleHomeowner, PermissionSelectBid))
	assert.True(t, HasPermission(RoleContractor, PermissionCreateBid))
	assert.True(t, HasPermission(RoleContractor, PermissionRequestMilestone))
	assert.True(t, HasPermission(RoleAdmin, PermissionManageEscrow))
	assert.True(t, HasPermission(RoleAdmin, PermissionReviewBid))

	assert.False(t, HasPermission(RoleContractor, PermissionSelectBid))
	assert.False(t, HasPermission(RoleHomeowner, PermissionCreateBid))
	assert.False(t, HasPermission(RoleHomeowner, PermissionManageEscrow))
	assert.False(t, HasPermission(RoleContractor, PermissionReviewProject))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleHomeowner))
	assert.True(t, ValidRole(RoleContractor))
	assert.True(t, ValidRole(RoleAdmin))
	assert.False(t, ValidRole("superuser"))
	assert.False(t, ValidRole(""))
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(RoleAdmin, PermissionManageFee))

	err := CheckPermission(RoleContractor, PermissionManageFee)
	require.Error(t, err)

	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, RoleContractor, denied.Role)
	assert.Equal(t, PermissionManageFee, denied.Permission)
}

func TestUnknownRoleHasNothing(t *testing.T) {
	assert.False(t, HasPermission("ghost", PermissionCreateProject))
	assert.Error(t, CheckPermission("ghost", PermissionCreateProject))
}
