package identity

import (
	"context"
	"strings"
)

// Role は認証済み呼び出し元のロールです。
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Identity は外部の認証基盤が発行したトークンから取り出した呼び出し元情報です。
// このサービス自身は資格情報の検証を行いません。
type Identity struct {
	Subject    string
	EmployeeID string
	Role       Role
}

// ParseRole は文字列をロールへ変換します。未知の値は false を返します。
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleEmployee:
		return RoleEmployee, true
	default:
		return "", false
	}
}

// IsAdmin は管理者権限を持つかを返します。
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanActFor は employeeID の勤怠を操作できるかを返します。
func (i Identity) CanActFor(employeeID string) bool {
	if i.IsAdmin() {
		return true
	}
	return i.Role == RoleEmployee && i.EmployeeID != "" && i.EmployeeID == employeeID
}

type contextKey struct{}

// WithIdentity は ctx に Identity を格納します。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext は ctx から Identity を取り出します。
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
