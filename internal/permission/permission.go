// Package permission implements the access checks of the model repository as
// pure predicates over already-loaded permission sets. It performs no I/O;
// callers translate a false result into an unauthorized error.
package permission

import (
	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/database/models"
)

// Level is a requested access level.
type Level int

const (
	Read Level = iota + 1
	Write
	Admin
)

func (l Level) String() string {
	switch l {
	case Read:
		return "read"
	case Write:
		return "write"
	case Admin:
		return "admin"
	}
	return "unknown"
}

// Role is a grantable permission role. RoleNone revokes all access.
type Role string

const (
	RoleNone  Role = "none"
	RoleRead  Role = "read"
	RoleWrite Role = "write"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleRead, RoleWrite, RoleAdmin:
		return true
	}
	return false
}

// Principal is an already-authenticated caller identity.
type Principal struct {
	UserID uuid.UUID
	// SiteAdmin passes every check regardless of resource sets.
	SiteAdmin bool
}

// Authorize reports whether p holds at least level on the resource's sets.
// It checks only the requested level's array; Grant keeps the arrays
// transitively populated so weaker levels need no separate lookup.
func Authorize(p Principal, sets models.PermissionSet, level Level) bool {
	if p.SiteAdmin {
		return true
	}
	if p.UserID == uuid.Nil {
		return false
	}
	switch level {
	case Read:
		return sets.ReadUsers.Contains(p.UserID)
	case Write:
		return sets.WriteUsers.Contains(p.UserID)
	case Admin:
		return sets.AdminUsers.Contains(p.UserID)
	}
	return false
}

// Grant rewrites target's membership across all three arrays for the given
// role: the target is first removed everywhere, then added to the requested
// set and every weaker one (admin implies write implies read). RoleNone
// leaves the target removed.
func Grant(sets *models.PermissionSet, target uuid.UUID, role Role) {
	sets.ReadUsers = sets.ReadUsers.Remove(target)
	sets.WriteUsers = sets.WriteUsers.Remove(target)
	sets.AdminUsers = sets.AdminUsers.Remove(target)

	switch role {
	case RoleAdmin:
		sets.AdminUsers = sets.AdminUsers.Add(target)
		fallthrough
	case RoleWrite:
		sets.WriteUsers = sets.WriteUsers.Add(target)
		fallthrough
	case RoleRead:
		sets.ReadUsers = sets.ReadUsers.Add(target)
	}
}

// Seed grants the creator full access on a freshly created resource.
func Seed(sets *models.PermissionSet, creator uuid.UUID) {
	if creator == uuid.Nil {
		return
	}
	Grant(sets, creator, RoleAdmin)
}

// RoleOf returns the strongest role target currently holds on the sets.
func RoleOf(sets models.PermissionSet, target uuid.UUID) Role {
	switch {
	case sets.AdminUsers.Contains(target):
		return RoleAdmin
	case sets.WriteUsers.Contains(target):
		return RoleWrite
	case sets.ReadUsers.Contains(target):
		return RoleRead
	}
	return RoleNone
}
