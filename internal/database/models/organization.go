package models

// Organization is the top tier of the model repository. Its id is immutable
// after creation; exactly one organization carries the reserved default id
// and can never be removed or renamed.
type Organization struct {
	ID   string `gorm:"primaryKey;size:64" json:"id"`
	Name string `gorm:"not null" json:"name"`

	PermissionSet

	// Custom holds caller-defined metadata as a JSON object.
	Custom string `gorm:"type:jsonb;default:'{}'" json:"custom,omitempty"`

	Audit

	Projects []Project `gorm:"foreignKey:OrgID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// UpdatableFields is the allow-list of caller-mutable fields.
func (Organization) UpdatableFields() []string {
	return []string{"name", "custom"}
}
