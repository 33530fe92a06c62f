package models

// UserRole is the app-level role carried in the token's app_metadata.
// Accounts are managed by the identity provider; the API only sees the
// bearer token subject and this role.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)
