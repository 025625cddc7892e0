// Package models re-exports eve/auth types for phoenix.
// This keeps the panel's user handling on the centralized auth package.
package models

import (
	"eve.evalgo.org/auth"
)

// Re-export auth types
type (
	// User is an alias for eve/auth.User
	User = auth.User

	// UserResponse is an alias for eve/auth.UserResponse
	UserResponse = auth.UserResponse

	// RefreshToken is an alias for eve/auth.RefreshToken
	RefreshToken = auth.RefreshToken

	// AuditLog is an alias for eve/auth.AuditLog
	AuditLog = auth.AuditLog

	// CreateUserRequest is an alias for eve/auth.CreateUserRequest
	CreateUserRequest = auth.CreateUserRequest

	// UpdateUserRequest is an alias for eve/auth.UpdateUserRequest
	UpdateUserRequest = auth.UpdateUserRequest
)

// Re-export role constants
const (
	RoleAdmin  = auth.RoleAdmin
	RoleUser   = auth.RoleUser
	RoleViewer = auth.RoleViewer
	RoleAgent  = auth.RoleAgent
)

// Role is a string alias for role names
// EVE auth uses []string for roles, but we maintain the Role type alias
type Role = string

// AssignableRole reports whether a role may be granted to a panel user.
// The agent role is a service credential minted under its own secret and
// is never assignable through user management.
func AssignableRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}
