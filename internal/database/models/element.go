package models

import "github.com/google/uuid"

// ElementType is the discriminator identifying which variant an element row
// represents.
type ElementType string

const (
	ElementTypeBlock        ElementType = "block"
	ElementTypePackage      ElementType = "package"
	ElementTypeRelationship ElementType = "relationship"
)

// Valid reports whether t is one of the known discriminators.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTypeBlock, ElementTypePackage, ElementTypeRelationship:
		return true
	}
	return false
}

// Element is a node of a project's model. All variants share one table with a
// type discriminator; relationship-only fields stay null for blocks and
// packages. A package's "contains" set is derived by querying children on
// parent_id rather than stored as an inverse list, so the tree has a single
// source of truth.
type Element struct {
	OrgID     string `gorm:"primaryKey;size:64" json:"org_id"`
	ProjectID string `gorm:"primaryKey;size:64" json:"project_id"`
	ID        string `gorm:"primaryKey;size:64" json:"id"`

	// UUID is unique across the whole store, not just the project. Callers
	// may supply it at creation; it is generated otherwise.
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	Type ElementType `gorm:"not null;index" json:"type"`
	Name string      `json:"name,omitempty"`

	Documentation string `gorm:"type:text" json:"documentation,omitempty"`
	Custom        string `gorm:"type:jsonb;default:'{}'" json:"custom,omitempty"`

	// ParentID references a package-typed element in the same project.
	// Null marks the project's single root element.
	ParentID *string `gorm:"size:64;index" json:"parent_id,omitempty"`

	// SourceID and TargetID are set, together, on relationships only.
	SourceID *string `gorm:"size:64;index" json:"source_id,omitempty"`
	TargetID *string `gorm:"size:64;index" json:"target_id,omitempty"`

	Audit

	Project *Project `gorm:"-" json:"-"`
}

func (Element) TableName() string {
	return "elements"
}

// QualifiedID returns the composite org:project:element identifier.
func (e *Element) QualifiedID() string {
	return e.OrgID + ":" + e.ProjectID + ":" + e.ID
}

// IsRoot reports whether the element is the project root.
func (e *Element) IsRoot() bool {
	return e.ParentID == nil
}

// UpdatableFields is the allow-list of caller-mutable fields. Structural
// fields (parent, source, target) and identity fields are never mutable
// after creation.
func (Element) UpdatableFields() []string {
	return []string{"name", "documentation", "custom"}
}
