package models

// Project is a container of elements owned by exactly one organization.
// The (org id, local id) pair is its immutable composite key.
type Project struct {
	OrgID string `gorm:"primaryKey;size:64" json:"org_id"`
	ID    string `gorm:"primaryKey;size:64" json:"id"`
	Name  string `gorm:"not null" json:"name"`

	PermissionSet

	// OrgReadAccess, when set by a project admin, lets holders of read on
	// the owning organization see this project. It never grants write.
	OrgReadAccess bool `gorm:"default:false" json:"org_read_access"`

	Custom string `gorm:"type:jsonb;default:'{}'" json:"custom,omitempty"`

	Audit

	Organization *Organization `gorm:"foreignKey:OrgID" json:"-"`
}

func (Project) TableName() string {
	return "projects"
}

// QualifiedID returns the composite org:project identifier.
func (p *Project) QualifiedID() string {
	return p.OrgID + ":" + p.ID
}

// UpdatableFields is the allow-list of caller-mutable fields.
func (Project) UpdatableFields() []string {
	return []string{"name", "custom", "org_read_access"}
}
