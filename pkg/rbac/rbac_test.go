package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleUser, PermissionGenerate))
	assert.False(t, HasPermission(RoleUser, PermissionManageTraining))
	assert.True(t, HasPermission(RoleOperator, PermissionReplayOutbox))
	assert.False(t, HasPermission("guest", PermissionReadCatalog))
}

func TestCheckPermission(t *testing.T) {
	err := CheckPermission("alice", RoleUser, PermissionReplayOutbox)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, "alice", denied.Subject)
	assert.NoError(t, CheckPermission("bob", RoleOperator, PermissionReplayOutbox))
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleOperator))
	assert.False(t, IsValidRole(""))
}
