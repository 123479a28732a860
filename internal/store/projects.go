package store

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/identifier"
	"github.com/modelry/modelry/internal/permission"
	"gorm.io/gorm"
)

// ProjectStore owns projects scoped to an organization. It resolves and
// authorizes the org → project chain before delegating element-scoped work
// to the ElementStore, which never re-derives permissions itself.
type ProjectStore struct {
	db       *gorm.DB
	logger   *slog.Logger
	elements *ElementStore
}

func NewProjectStore(db *gorm.DB, logger *slog.Logger, elements *ElementStore) *ProjectStore {
	return &ProjectStore{db: db, logger: logger, elements: elements}
}

// Elements exposes the element store behind the already-authorized chain.
func (s *ProjectStore) Elements() *ElementStore {
	return s.elements
}

type CreateProjectInput struct {
	ID     string
	Name   string
	Custom string
}

// Create inserts a project under an organization. The principal needs write
// on the owning organization; the creator is seeded into all three sets.
func (s *ProjectStore) Create(ctx context.Context, principal permission.Principal, orgID string, input CreateProjectInput) (*models.Project, error) {
	org, err := s.resolveOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !permission.Authorize(principal, org.PermissionSet, permission.Write) {
		return nil, Unauthorizedf("creating projects in organization %q requires write access", orgID)
	}

	id := identifier.Sanitize(input.ID)
	name := identifier.Sanitize(input.Name)
	if err := identifier.Validate(id); err != nil {
		return nil, BadRequestf("invalid project id %q: %v", id, err)
	}
	if name == "" {
		return nil, BadRequestf("project name is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Project{}).
		Where("org_id = ? AND id = ?", org.ID, id).Count(&count).Error; err != nil {
		return nil, wrapDB(err, "project")
	}
	if count > 0 {
		return nil, Conflictf("project %q already exists", identifier.Join(org.ID, id))
	}

	custom, err := normalizeCustom(input.Custom)
	if err != nil {
		return nil, err
	}

	proj := models.Project{
		OrgID:  org.ID,
		ID:     id,
		Name:   name,
		Custom: custom,
	}
	permission.Seed(&proj.PermissionSet, principal.UserID)

	if err := s.db.WithContext(ctx).Create(&proj).Error; err != nil {
		return nil, wrapDB(err, "project")
	}

	s.logger.Info("created project", "id", proj.QualifiedID(), "by", principal.UserID)
	return &proj, nil
}

// Get returns a project the principal can read. Read may fall back to the
// owning organization's sets when the project explicitly grants that.
func (s *ProjectStore) Get(ctx context.Context, principal permission.Principal, orgID, id string, includeDeleted bool) (*models.Project, error) {
	level := permission.Read
	if includeDeleted {
		level = permission.Admin
	}
	return s.ResolveAuthorized(ctx, principal, orgID, id, level, includeDeleted)
}

// List returns the projects of an organization visible to the principal.
func (s *ProjectStore) List(ctx context.Context, principal permission.Principal, orgID string, includeDeleted bool) ([]models.Project, error) {
	org, err := s.resolveOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("org_id = ?", org.ID).Order("id")
	if includeDeleted {
		if !principal.SiteAdmin && !permission.Authorize(principal, org.PermissionSet, permission.Admin) {
			return nil, Unauthorizedf("listing deleted projects requires admin access")
		}
		query = query.Unscoped()
	}

	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		return nil, wrapDB(err, "projects")
	}

	orgRead := permission.Authorize(principal, org.PermissionSet, permission.Read)
	visible := projects[:0]
	for _, proj := range projects {
		if permission.Authorize(principal, proj.PermissionSet, permission.Read) ||
			(proj.OrgReadAccess && orgRead) {
			visible = append(visible, proj)
		}
	}
	return visible, nil
}

// Update applies an allow-listed patch; the principal needs admin on the
// project.
func (s *ProjectStore) Update(ctx context.Context, principal permission.Principal, orgID, id string, patch map[string]interface{}) (*models.Project, error) {
	proj, err := s.resolve(ctx, orgID, id, false)
	if err != nil {
		return nil, err
	}
	if !permission.Authorize(principal, proj.PermissionSet, permission.Admin) {
		return nil, Unauthorizedf("updating project %q requires admin access", proj.QualifiedID())
	}

	for field, value := range patch {
		switch field {
		case "id", "org_id":
			return nil, Forbiddenf("project ids are immutable")
		case "name":
			name, ok := value.(string)
			if !ok {
				return nil, BadRequestf("name must be a string")
			}
			name = identifier.Sanitize(name)
			if name == "" {
				return nil, BadRequestf("project name is required")
			}
			proj.Name = name
		case "custom":
			custom, ok := value.(string)
			if !ok {
				return nil, BadRequestf("custom must be a JSON string")
			}
			normalized, err := normalizeCustom(custom)
			if err != nil {
				return nil, err
			}
			proj.Custom = normalized
		case "org_read_access":
			flag, ok := value.(bool)
			if !ok {
				return nil, BadRequestf("org_read_access must be a boolean")
			}
			proj.OrgReadAccess = flag
		default:
			return nil, BadRequestf("field %q is not updatable on projects", field)
		}
	}

	if err := s.db.WithContext(ctx).Save(proj).Error; err != nil {
		return nil, wrapDB(err, "project")
	}
	return proj, nil
}

// Remove soft-deletes (default) or hard-deletes a project. Soft deletion
// cascades soft deletion to the project's elements; hard deletion requires a
// site administrator and permanently removes the elements as well.
func (s *ProjectStore) Remove(ctx context.Context, principal permission.Principal, orgID, id string, hard bool) error {
	proj, err := s.resolve(ctx, orgID, id, true)
	if err != nil {
		return err
	}
	if !permission.Authorize(principal, proj.PermissionSet, permission.Admin) {
		return Unauthorizedf("removing project %q requires admin access", proj.QualifiedID())
	}

	if !hard {
		if proj.Deleted() {
			return nil
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.elements.removeByProject(tx, proj.OrgID, proj.ID, false); err != nil {
				return err
			}
			return tx.Delete(proj).Error
		})
		if err != nil {
			return Internalf(err, "soft-deleting project %q", proj.QualifiedID())
		}
		s.logger.Info("soft-deleted project", "id", proj.QualifiedID(), "by", principal.UserID)
		return nil
	}

	if !principal.SiteAdmin {
		return Unauthorizedf("hard deletion requires site administrator access")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.elements.removeByProject(tx, proj.OrgID, proj.ID, true); err != nil {
			return err
		}
		return tx.Unscoped().Delete(proj).Error
	})
	if err != nil {
		return Internalf(err, "hard-deleting project %q", proj.QualifiedID())
	}

	s.logger.Info("hard-deleted project", "id", proj.QualifiedID(), "by", principal.UserID)
	return nil
}

// Restore clears the project's soft-delete flag. Elements soft-deleted by
// the project cascade stay deleted and are restored individually.
func (s *ProjectStore) Restore(ctx context.Context, principal permission.Principal, orgID, id string) (*models.Project, error) {
	proj, err := s.resolve(ctx, orgID, id, true)
	if err != nil {
		return nil, err
	}
	if !permission.Authorize(principal, proj.PermissionSet, permission.Admin) {
		return nil, Unauthorizedf("restoring project %q requires admin access", proj.QualifiedID())
	}
	if !proj.Deleted() {
		return proj, nil
	}

	if err := s.db.WithContext(ctx).Unscoped().Model(proj).Update("deleted_at", nil).Error; err != nil {
		return nil, wrapDB(err, "project")
	}
	proj.DeletedAt = gorm.DeletedAt{}
	return proj, nil
}

// SetPermission grants target the given role on the project.
func (s *ProjectStore) SetPermission(ctx context.Context, principal permission.Principal, orgID, id string, target uuid.UUID, role permission.Role) error {
	proj, err := s.resolve(ctx, orgID, id, false)
	if err != nil {
		return err
	}
	if !permission.Authorize(principal, proj.PermissionSet, permission.Admin) {
		return Unauthorizedf("changing permissions on project %q requires admin access", proj.QualifiedID())
	}
	if err := applyGrant(ctx, s.db, principal, &proj.PermissionSet, target, role); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(proj).Error; err != nil {
		return wrapDB(err, "project")
	}

	s.logger.Info("set project permission",
		"project", proj.QualifiedID(),
		"target", target,
		"role", role,
		"by", principal.UserID,
	)
	return nil
}

// Permissions returns the username → access-flags view of the project.
func (s *ProjectStore) Permissions(ctx context.Context, principal permission.Principal, orgID, id string) (PermissionMap, error) {
	proj, err := s.ResolveAuthorized(ctx, principal, orgID, id, permission.Read, false)
	if err != nil {
		return nil, err
	}
	return permissionMap(ctx, s.db, proj.PermissionSet)
}

// ResolveAuthorized loads a project and verifies the principal holds the
// requested level on it. Element operations go through here first, so the
// element store always receives an already-authorized resource chain. Read
// checks fall back to the owning organization when OrgReadAccess is set.
func (s *ProjectStore) ResolveAuthorized(ctx context.Context, principal permission.Principal, orgID, id string, level permission.Level, includeDeleted bool) (*models.Project, error) {
	if _, err := s.resolveOrg(ctx, orgID); err != nil {
		return nil, err
	}

	proj, err := s.resolve(ctx, orgID, id, includeDeleted)
	if err != nil {
		return nil, err
	}

	if permission.Authorize(principal, proj.PermissionSet, level) {
		return proj, nil
	}

	if level == permission.Read && proj.OrgReadAccess {
		var org models.Organization
		if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err == nil &&
			permission.Authorize(principal, org.PermissionSet, permission.Read) {
			return proj, nil
		}
	}

	return nil, Unauthorizedf("no %s access on project %q", level, proj.QualifiedID())
}

func (s *ProjectStore) resolve(ctx context.Context, orgID, id string, includeDeleted bool) (*models.Project, error) {
	query := s.db.WithContext(ctx)
	if includeDeleted {
		query = query.Unscoped()
	}
	var proj models.Project
	if err := query.First(&proj, "org_id = ? AND id = ?", orgID, id).Error; err != nil {
		return nil, wrapDB(err, "project")
	}
	return &proj, nil
}

// resolveOrg requires a live owning organization; a soft-deleted org makes
// its projects unreachable.
func (s *ProjectStore) resolveOrg(ctx context.Context, orgID string) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}
	return &org, nil
}
