package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/permission"
	"gorm.io/gorm"
)

// RoleFlags is one user's entry in a resource permission map.
type RoleFlags struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
	Admin bool `json:"admin"`
}

// PermissionMap maps usernames (emails) to their access flags on a resource.
type PermissionMap map[string]RoleFlags

// applyGrant validates and performs a permission change on a resource's sets.
// The caller has already verified that principal holds admin on the resource;
// this enforces the remaining rules: the target must be a live directory
// user, and principals may not change their own access (self-lockout guard).
func applyGrant(ctx context.Context, db *gorm.DB, principal permission.Principal, sets *models.PermissionSet, target uuid.UUID, role permission.Role) error {
	if !role.Valid() {
		return BadRequestf("invalid permission role %q", role)
	}
	if target == uuid.Nil {
		return BadRequestf("permission target user is required")
	}
	if target == principal.UserID {
		return Forbiddenf("principals cannot change their own permissions")
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", target).Error; err != nil {
		return wrapDB(err, "user")
	}
	if !user.IsActive {
		return BadRequestf("user %s is inactive", user.Email)
	}

	permission.Grant(sets, target, role)
	return nil
}

// permissionMap resolves every member of the three sets to a username and
// returns the username → flags view exposed by the permission endpoints.
func permissionMap(ctx context.Context, db *gorm.DB, sets models.PermissionSet) (PermissionMap, error) {
	ids := make(map[uuid.UUID]struct{})
	for _, arr := range []models.UUIDArray{sets.ReadUsers, sets.WriteUsers, sets.AdminUsers} {
		for _, id := range arr {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return PermissionMap{}, nil
	}

	idList := make([]uuid.UUID, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	var users []models.User
	if err := db.WithContext(ctx).Where("id IN ?", idList).Find(&users).Error; err != nil {
		return nil, wrapDB(err, "users")
	}

	result := make(PermissionMap, len(users))
	for _, u := range users {
		result[u.Email] = RoleFlags{
			Read:  sets.ReadUsers.Contains(u.ID),
			Write: sets.WriteUsers.Contains(u.ID),
			Admin: sets.AdminUsers.Contains(u.ID),
		}
	}
	return result, nil
}
