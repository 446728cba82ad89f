package model

// Session 当前登录会话（来自外部认证协作方）
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Role 团队角色，仅用于决定是否尝试写操作
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanWrite viewer 以外的角色都会尝试写入；真正的权限校验在服务端
func (r Role) CanWrite() bool {
	return r != RoleViewer
}
