package rbac

// 权限常量
const (
	PermissionGenerate       = "email:generate"
	PermissionReadCatalog    = "catalog:read"
	PermissionSubmitFeedback = "feedback:submit"

	// 运维权限
	PermissionManageTraining = "training:manage"
	PermissionReplayOutbox   = "outbox:replay"
)

// 角色常量
const (
	RoleUser     = "user"
	RoleOperator = "operator"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionGenerate,
		PermissionReadCatalog,
		PermissionSubmitFeedback,
	},
	RoleOperator: {
		PermissionGenerate,
		PermissionReadCatalog,
		PermissionSubmitFeedback,
		PermissionManageTraining,
		PermissionReplayOutbox,
	},
}

// IsValidRole 角色是否已定义
func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 未知角色没有任何权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(subject, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Subject:    subject,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Subject    string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
