package model

import "github.com/nexe/nexe-backend/pkg/access"

// Identity types live in pkg/access so client packages can share them without
// depending on the persistence models.
type (
	UserRole = access.Role
	Identity = access.Identity
)

const (
	RoleNone  = access.RoleNone
	RoleUser  = access.RoleUser
	RoleAdmin = access.RoleAdmin
)

var Anonymous = access.Anonymous
