package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/identifier"
	"github.com/modelry/modelry/internal/permission"
	"gorm.io/gorm"
)

// OrganizationStore owns the top tier of the repository. It guards the
// reserved default organization and cascades removals down to projects and
// their elements.
type OrganizationStore struct {
	db           *gorm.DB
	logger       *slog.Logger
	projects     *ProjectStore
	defaultOrgID string
}

func NewOrganizationStore(db *gorm.DB, logger *slog.Logger, projects *ProjectStore, defaultOrgID string) *OrganizationStore {
	return &OrganizationStore{
		db:           db,
		logger:       logger,
		projects:     projects,
		defaultOrgID: defaultOrgID,
	}
}

// DefaultOrgID returns the reserved default organization id.
func (s *OrganizationStore) DefaultOrgID() string {
	return s.defaultOrgID
}

// EnsureDefault creates the reserved default organization if it does not
// exist yet. Called once at startup; it bypasses the reserved-word check
// that blocks callers from claiming the id.
func (s *OrganizationStore) EnsureDefault(ctx context.Context) (*models.Organization, error) {
	var org models.Organization
	err := s.db.WithContext(ctx).Unscoped().First(&org, "id = ?", s.defaultOrgID).Error
	if err == nil {
		return &org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrapDB(err, "organization")
	}

	org = models.Organization{
		ID:     s.defaultOrgID,
		Name:   "Default Organization",
		Custom: "{}",
	}
	if err := s.db.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}

	s.logger.Info("created default organization", "id", org.ID)
	return &org, nil
}

type CreateOrganizationInput struct {
	ID     string
	Name   string
	Custom string
}

// Create inserts a new organization. Only site administrators may create
// organizations; the creator is seeded into all three permission sets.
func (s *OrganizationStore) Create(ctx context.Context, principal permission.Principal, input CreateOrganizationInput) (*models.Organization, error) {
	if !principal.SiteAdmin {
		return nil, Unauthorizedf("creating organizations requires site administrator access")
	}

	id := identifier.Sanitize(input.ID)
	name := identifier.Sanitize(input.Name)
	if err := identifier.Validate(id); err != nil {
		return nil, BadRequestf("invalid organization id %q: %v", id, err)
	}
	if name == "" {
		return nil, BadRequestf("organization name is required")
	}

	// Soft-deleted rows still hold their id.
	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Organization{}).
		Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}
	if count > 0 {
		return nil, Conflictf("organization %q already exists", id)
	}

	custom, err := normalizeCustom(input.Custom)
	if err != nil {
		return nil, err
	}

	org := models.Organization{
		ID:     id,
		Name:   name,
		Custom: custom,
	}
	permission.Seed(&org.PermissionSet, principal.UserID)

	if err := s.db.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}

	s.logger.Info("created organization", "id", org.ID, "by", principal.UserID)
	return &org, nil
}

// Get returns an organization the principal can read. includeDeleted is
// honored only for admin-level callers.
func (s *OrganizationStore) Get(ctx context.Context, principal permission.Principal, id string, includeDeleted bool) (*models.Organization, error) {
	org, err := s.resolve(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if !permission.Authorize(principal, org.PermissionSet, permission.Read) {
		return nil, Unauthorizedf("no read access on organization %q", id)
	}
	if includeDeleted && !s.isAdmin(principal, org) {
		return nil, Unauthorizedf("viewing deleted organizations requires admin access")
	}
	return org, nil
}

// List returns the organizations visible to the principal. Soft-deleted rows
// are included only for site administrators asking for them.
func (s *OrganizationStore) List(ctx context.Context, principal permission.Principal, includeDeleted bool) ([]models.Organization, error) {
	query := s.db.WithContext(ctx).Order("id")
	if includeDeleted {
		if !principal.SiteAdmin {
			return nil, Unauthorizedf("listing deleted organizations requires site administrator access")
		}
		query = query.Unscoped()
	}

	var orgs []models.Organization
	if err := query.Find(&orgs).Error; err != nil {
		return nil, wrapDB(err, "organizations")
	}

	// Permission sets are small arrays on each row, so visibility is
	// filtered in memory instead of with a dialect-specific array query.
	visible := orgs[:0]
	for _, org := range orgs {
		if permission.Authorize(principal, org.PermissionSet, permission.Read) {
			visible = append(visible, org)
		}
	}
	return visible, nil
}

// Update applies an allow-listed patch. Attempts to change the id are
// Forbidden; unknown or mistyped fields are BadRequest.
func (s *OrganizationStore) Update(ctx context.Context, principal permission.Principal, id string, patch map[string]interface{}) (*models.Organization, error) {
	org, err := s.resolve(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !s.isAdmin(principal, org) {
		return nil, Unauthorizedf("updating organization %q requires admin access", id)
	}

	for field, value := range patch {
		switch field {
		case "id":
			return nil, Forbiddenf("organization id is immutable")
		case "name":
			name, ok := value.(string)
			if !ok {
				return nil, BadRequestf("name must be a string")
			}
			name = identifier.Sanitize(name)
			if name == "" {
				return nil, BadRequestf("organization name is required")
			}
			if org.ID == s.defaultOrgID {
				return nil, Forbiddenf("the default organization cannot be renamed")
			}
			org.Name = name
		case "custom":
			custom, ok := value.(string)
			if !ok {
				return nil, BadRequestf("custom must be a JSON string")
			}
			normalized, err := normalizeCustom(custom)
			if err != nil {
				return nil, err
			}
			org.Custom = normalized
		default:
			return nil, BadRequestf("field %q is not updatable on organizations", field)
		}
	}

	if err := s.db.WithContext(ctx).Save(org).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}
	return org, nil
}

// Remove soft-deletes (default) or hard-deletes an organization. Hard
// deletion requires a site administrator and cascades to every project and
// element beneath it. The default organization can never be removed.
func (s *OrganizationStore) Remove(ctx context.Context, principal permission.Principal, id string, hard bool) error {
	org, err := s.resolve(ctx, id, true)
	if err != nil {
		return err
	}
	if org.ID == s.defaultOrgID {
		return Forbiddenf("the default organization cannot be removed")
	}
	if !s.isAdmin(principal, org) {
		return Unauthorizedf("removing organization %q requires admin access", id)
	}

	if !hard {
		if org.Deleted() {
			return nil
		}
		if err := s.db.WithContext(ctx).Delete(org).Error; err != nil {
			return wrapDB(err, "organization")
		}
		s.logger.Info("soft-deleted organization", "id", id, "by", principal.UserID)
		return nil
	}

	if !principal.SiteAdmin {
		return Unauthorizedf("hard deletion requires site administrator access")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("org_id = ?", id).Delete(&models.Element{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("org_id = ?", id).Delete(&models.Project{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(org).Error
	})
	if err != nil {
		return Internalf(err, "hard-deleting organization %q", id)
	}

	s.logger.Info("hard-deleted organization", "id", id, "by", principal.UserID)
	return nil
}

// Restore clears the soft-delete flag, returning the organization to default
// visibility with all fields unchanged.
func (s *OrganizationStore) Restore(ctx context.Context, principal permission.Principal, id string) (*models.Organization, error) {
	org, err := s.resolve(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !s.isAdmin(principal, org) {
		return nil, Unauthorizedf("restoring organization %q requires admin access", id)
	}
	if !org.Deleted() {
		return org, nil
	}

	if err := s.db.WithContext(ctx).Unscoped().Model(org).Update("deleted_at", nil).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}
	org.DeletedAt = gorm.DeletedAt{}
	return org, nil
}

// SetPermission grants target the given role on the organization. Only admin
// holders (or site administrators) may call this.
func (s *OrganizationStore) SetPermission(ctx context.Context, principal permission.Principal, id string, target uuid.UUID, role permission.Role) error {
	org, err := s.resolve(ctx, id, false)
	if err != nil {
		return err
	}
	if !s.isAdmin(principal, org) {
		return Unauthorizedf("changing permissions on organization %q requires admin access", id)
	}
	if err := applyGrant(ctx, s.db, principal, &org.PermissionSet, target, role); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(org).Error; err != nil {
		return wrapDB(err, "organization")
	}

	s.logger.Info("set organization permission",
		"org", id,
		"target", target,
		"role", role,
		"by", principal.UserID,
	)
	return nil
}

// Permissions returns the username → access-flags view of the organization's
// three sets.
func (s *OrganizationStore) Permissions(ctx context.Context, principal permission.Principal, id string) (PermissionMap, error) {
	org, err := s.resolve(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !permission.Authorize(principal, org.PermissionSet, permission.Read) {
		return nil, Unauthorizedf("no read access on organization %q", id)
	}
	return permissionMap(ctx, s.db, org.PermissionSet)
}

func (s *OrganizationStore) resolve(ctx context.Context, id string, includeDeleted bool) (*models.Organization, error) {
	query := s.db.WithContext(ctx)
	if includeDeleted {
		query = query.Unscoped()
	}
	var org models.Organization
	if err := query.First(&org, "id = ?", id).Error; err != nil {
		return nil, wrapDB(err, "organization")
	}
	return &org, nil
}

func (s *OrganizationStore) isAdmin(principal permission.Principal, org *models.Organization) bool {
	return permission.Authorize(principal, org.PermissionSet, permission.Admin)
}

// normalizeCustom defaults empty metadata to an empty JSON object and
// rejects malformed JSON before it reaches a jsonb column, where the driver
// would fail the write as an internal error.
func normalizeCustom(custom string) (string, error) {
	if custom == "" {
		return "{}", nil
	}
	if !json.Valid([]byte(custom)) {
		return "", BadRequestf("custom metadata must be valid JSON")
	}
	return custom, nil
}
