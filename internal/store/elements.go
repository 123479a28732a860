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

// ElementStore enforces the tree and graph invariants of a project's model:
// parents must be live packages, at most one root per project, relationship
// endpoints must resolve inside the same project, and hard deletion cascades
// through the subtree plus any relationships left dangling by it.
//
// Elements carry no permission sets of their own. Every method takes a
// project that the ProjectStore has already resolved and authorized at the
// level the operation needs; nothing here re-derives permissions.
type ElementStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewElementStore(db *gorm.DB, logger *slog.Logger) *ElementStore {
	return &ElementStore{db: db, logger: logger}
}

type CreateElementInput struct {
	ID   string
	UUID uuid.UUID // optional; generated when zero
	Type models.ElementType

	Name          string
	Documentation string
	Custom        string

	ParentID *string
	SourceID *string
	TargetID *string
}

// Create inserts an element after validating the structural rules for its
// type. The project chain must already be authorized for write.
func (s *ElementStore) Create(ctx context.Context, principal permission.Principal, proj *models.Project, input CreateElementInput) (*models.Element, error) {
	id := identifier.Sanitize(input.ID)
	if err := identifier.Validate(id); err != nil {
		return nil, BadRequestf("invalid element id %q: %v", id, err)
	}
	if !input.Type.Valid() {
		return nil, BadRequestf("invalid element type %q", input.Type)
	}

	// Composite id unique within the project, soft-deleted rows included.
	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Element{}).
		Where("org_id = ? AND project_id = ? AND id = ?", proj.OrgID, proj.ID, id).
		Count(&count).Error; err != nil {
		return nil, wrapDB(err, "element")
	}
	if count > 0 {
		return nil, Conflictf("element %q already exists", identifier.Join(proj.OrgID, proj.ID, id))
	}

	elementUUID := input.UUID
	if elementUUID == uuid.Nil {
		elementUUID = uuid.New()
	} else {
		// Client-supplied identifiers must be unique across the whole
		// store, not just this project.
		if err := s.db.WithContext(ctx).Unscoped().Model(&models.Element{}).
			Where("uuid = ?", elementUUID).Count(&count).Error; err != nil {
			return nil, wrapDB(err, "element")
		}
		if count > 0 {
			return nil, Conflictf("element with uuid %s already exists", elementUUID)
		}
	}

	custom, err := normalizeCustom(identifier.Sanitize(input.Custom))
	if err != nil {
		return nil, err
	}

	elem := models.Element{
		OrgID:         proj.OrgID,
		ProjectID:     proj.ID,
		ID:            id,
		UUID:          elementUUID,
		Type:          input.Type,
		Name:          identifier.Sanitize(input.Name),
		Documentation: identifier.Sanitize(input.Documentation),
		Custom:        custom,
	}

	if input.Type == models.ElementTypeRelationship {
		if err := s.validateEndpoints(ctx, proj, input.SourceID, input.TargetID); err != nil {
			return nil, err
		}
		elem.SourceID = input.SourceID
		elem.TargetID = input.TargetID
	} else if input.SourceID != nil || input.TargetID != nil {
		return nil, BadRequestf("only relationships may have source and target")
	}

	if input.ParentID != nil {
		parent, err := s.resolve(ctx, proj, *input.ParentID, false)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return nil, BadRequestf("parent element %q not found", *input.ParentID)
			}
			return nil, err
		}
		if parent.Type != models.ElementTypePackage {
			return nil, BadRequestf("parent element is not of type Package")
		}
		elem.ParentID = input.ParentID
	} else {
		// Exactly one element per project may have a null parent.
		if err := s.db.WithContext(ctx).Unscoped().Model(&models.Element{}).
			Where("org_id = ? AND project_id = ? AND parent_id IS NULL", proj.OrgID, proj.ID).
			Count(&count).Error; err != nil {
			return nil, wrapDB(err, "element")
		}
		if count > 0 {
			return nil, BadRequestf("project %q already has a root element", proj.QualifiedID())
		}
	}

	if err := s.db.WithContext(ctx).Create(&elem).Error; err != nil {
		return nil, wrapDB(err, "element")
	}

	s.logger.Info("created element",
		"id", elem.QualifiedID(),
		"type", elem.Type,
		"by", principal.UserID,
	)
	return &elem, nil
}

// Get returns one element of the project.
func (s *ElementStore) Get(ctx context.Context, proj *models.Project, id string, includeDeleted bool) (*models.Element, error) {
	return s.resolve(ctx, proj, id, includeDeleted)
}

// List returns the project's elements, optionally filtered by discriminator.
func (s *ElementStore) List(ctx context.Context, proj *models.Project, typeFilter string, includeDeleted bool) ([]models.Element, error) {
	query := s.db.WithContext(ctx).
		Where("org_id = ? AND project_id = ?", proj.OrgID, proj.ID).
		Order("id")
	if includeDeleted {
		query = query.Unscoped()
	}
	if typeFilter != "" {
		if !models.ElementType(typeFilter).Valid() {
			return nil, BadRequestf("invalid element type %q", typeFilter)
		}
		query = query.Where("type = ?", typeFilter)
	}

	var elements []models.Element
	if err := query.Find(&elements).Error; err != nil {
		return nil, wrapDB(err, "elements")
	}
	return elements, nil
}

// Children returns the live elements whose parent is the given element. This
// derived view is the package's "contains" set; no stored inverse list
// exists, so it cannot drift from the parent pointers.
func (s *ElementStore) Children(ctx context.Context, proj *models.Project, parentID string) ([]models.Element, error) {
	var children []models.Element
	if err := s.db.WithContext(ctx).
		Where("org_id = ? AND project_id = ? AND parent_id = ?", proj.OrgID, proj.ID, parentID).
		Order("id").
		Find(&children).Error; err != nil {
		return nil, wrapDB(err, "elements")
	}
	return children, nil
}

// Root returns the project's root element, if one exists.
func (s *ElementStore) Root(ctx context.Context, proj *models.Project) (*models.Element, error) {
	var root models.Element
	if err := s.db.WithContext(ctx).
		First(&root, "org_id = ? AND project_id = ? AND parent_id IS NULL", proj.OrgID, proj.ID).Error; err != nil {
		return nil, wrapDB(err, "root element")
	}
	return &root, nil
}

// Update applies an allow-listed patch. Structural fields are never
// user-mutable after creation; attempts to change them are rejected.
func (s *ElementStore) Update(ctx context.Context, principal permission.Principal, proj *models.Project, id string, patch map[string]interface{}) (*models.Element, error) {
	elem, err := s.resolve(ctx, proj, id, false)
	if err != nil {
		return nil, err
	}

	for field, value := range patch {
		switch field {
		case "id", "org_id", "project_id", "uuid":
			return nil, Forbiddenf("element identifiers are immutable")
		case "type", "parent_id", "source_id", "target_id":
			return nil, BadRequestf("users cannot update %s of elements", field)
		case "name":
			name, ok := value.(string)
			if !ok {
				return nil, BadRequestf("name must be a string")
			}
			elem.Name = identifier.Sanitize(name)
		case "documentation":
			doc, ok := value.(string)
			if !ok {
				return nil, BadRequestf("documentation must be a string")
			}
			elem.Documentation = identifier.Sanitize(doc)
		case "custom":
			custom, ok := value.(string)
			if !ok {
				return nil, BadRequestf("custom must be a JSON string")
			}
			normalized, err := normalizeCustom(identifier.Sanitize(custom))
			if err != nil {
				return nil, err
			}
			elem.Custom = normalized
		default:
			return nil, BadRequestf("users cannot update %s of elements", field)
		}
	}

	if err := s.db.WithContext(ctx).Save(elem).Error; err != nil {
		return nil, wrapDB(err, "element")
	}
	return elem, nil
}

// Remove soft-deletes (default) or hard-deletes an element. Soft deletion
// marks only the element itself. Hard deletion requires a site administrator
// on top of the authorized chain; it is terminal and cascades: the whole
// containment subtree goes, and every relationship whose source or target is
// removed goes with it, so no dangling endpoint survives.
func (s *ElementStore) Remove(ctx context.Context, principal permission.Principal, proj *models.Project, id string, hard bool) error {
	elem, err := s.resolve(ctx, proj, id, true)
	if err != nil {
		return err
	}

	if !hard {
		if elem.Deleted() {
			return nil
		}
		if err := s.db.WithContext(ctx).Delete(elem).Error; err != nil {
			return wrapDB(err, "element")
		}
		s.logger.Info("soft-deleted element", "id", elem.QualifiedID(), "by", principal.UserID)
		return nil
	}

	if !principal.SiteAdmin {
		return Unauthorizedf("hard deletion requires site administrator access")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doomed, err := s.collectSubtree(tx, proj, elem.ID)
		if err != nil {
			return err
		}
		doomed, err = s.collectDanglingRelationships(tx, proj, doomed)
		if err != nil {
			return err
		}
		return tx.Unscoped().
			Where("org_id = ? AND project_id = ? AND id IN ?", proj.OrgID, proj.ID, doomed).
			Delete(&models.Element{}).Error
	})
	if err != nil {
		return Internalf(err, "hard-deleting element %q", elem.QualifiedID())
	}

	s.logger.Info("hard-deleted element", "id", elem.QualifiedID(), "by", principal.UserID)
	return nil
}

// Restore clears the soft-delete flag, returning the element to default
// visibility with all fields unchanged. The project chain must be authorized
// at admin level.
func (s *ElementStore) Restore(ctx context.Context, principal permission.Principal, proj *models.Project, id string) (*models.Element, error) {
	elem, err := s.resolve(ctx, proj, id, true)
	if err != nil {
		return nil, err
	}
	if !elem.Deleted() {
		return elem, nil
	}

	if err := s.db.WithContext(ctx).Unscoped().Model(elem).Update("deleted_at", nil).Error; err != nil {
		return nil, wrapDB(err, "element")
	}
	elem.DeletedAt = gorm.DeletedAt{}

	s.logger.Info("restored element", "id", elem.QualifiedID(), "by", principal.UserID)
	return elem, nil
}

// removeByProject bulk-deletes every element under a project in one
// operation. Used by the ProjectStore cascade; runs inside the caller's
// transaction.
func (s *ElementStore) removeByProject(tx *gorm.DB, orgID, projectID string, hard bool) error {
	query := tx.Where("org_id = ? AND project_id = ?", orgID, projectID)
	if hard {
		query = query.Unscoped()
	}
	return query.Delete(&models.Element{}).Error
}

// collectSubtree walks the containment tree breadth-first from rootID and
// returns every element id in it, soft-deleted rows included.
func (s *ElementStore) collectSubtree(tx *gorm.DB, proj *models.Project, rootID string) ([]string, error) {
	doomed := []string{rootID}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		var children []models.Element
		if err := tx.Unscoped().
			Select("id").
			Where("org_id = ? AND project_id = ? AND parent_id IN ?", proj.OrgID, proj.ID, frontier).
			Find(&children).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, child := range children {
			doomed = append(doomed, child.ID)
			frontier = append(frontier, child.ID)
		}
	}

	return doomed, nil
}

// collectDanglingRelationships extends doomed with every relationship whose
// source or target is in it.
func (s *ElementStore) collectDanglingRelationships(tx *gorm.DB, proj *models.Project, doomed []string) ([]string, error) {
	var rels []models.Element
	if err := tx.Unscoped().
		Select("id").
		Where("org_id = ? AND project_id = ? AND type = ?", proj.OrgID, proj.ID, models.ElementTypeRelationship).
		Where("source_id IN ? OR target_id IN ?", doomed, doomed).
		Find(&rels).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(doomed))
	for _, id := range doomed {
		seen[id] = struct{}{}
	}
	for _, rel := range rels {
		if _, ok := seen[rel.ID]; !ok {
			doomed = append(doomed, rel.ID)
		}
	}
	return doomed, nil
}

// validateEndpoints checks the all-or-nothing endpoint rule for
// relationships: both must be present, distinct, and resolve to live
// elements inside the same project.
func (s *ElementStore) validateEndpoints(ctx context.Context, proj *models.Project, sourceID, targetID *string) error {
	if sourceID == nil || targetID == nil {
		return BadRequestf("relationships require both source and target")
	}
	if *sourceID == *targetID {
		return BadRequestf("relationship source and target must differ")
	}
	if _, err := s.resolve(ctx, proj, *sourceID, false); err != nil {
		if IsKind(err, KindNotFound) {
			return BadRequestf("source element %q not found", *sourceID)
		}
		return err
	}
	if _, err := s.resolve(ctx, proj, *targetID, false); err != nil {
		if IsKind(err, KindNotFound) {
			return BadRequestf("target element %q not found", *targetID)
		}
		return err
	}
	return nil
}

func (s *ElementStore) resolve(ctx context.Context, proj *models.Project, id string, includeDeleted bool) (*models.Element, error) {
	query := s.db.WithContext(ctx)
	if includeDeleted {
		query = query.Unscoped()
	}
	var elem models.Element
	if err := query.First(&elem, "org_id = ? AND project_id = ? AND id = ?", proj.OrgID, proj.ID, id).Error; err != nil {
		return nil, wrapDB(err, "element")
	}
	return &elem, nil
}
