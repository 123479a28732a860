package models

// User is an account record in the user directory. The stores consume users
// read-only; creation and update happen through the auth service.
type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`

	// SiteAdmin principals pass every permission check regardless of the
	// resource's permission sets.
	SiteAdmin bool `gorm:"default:false" json:"site_admin"`
	IsActive  bool `gorm:"default:true" json:"is_active"`
}

func (User) TableName() string {
	return "users"
}
