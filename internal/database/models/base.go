package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UUIDArray is a custom type for UUID array columns. Postgres stores the
// native array literal; SQLite (tests) stores the same text.
type UUIDArray []uuid.UUID

// Scan implements the sql.Scanner interface for reading from database
func (a *UUIDArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("UUIDArray: expected string, got %T", value)
	}

	// Arrays arrive as literals like {uuid1,uuid2,uuid3}
	str = strings.Trim(str, "{}")
	if str == "" {
		*a = nil
		return nil
	}

	parts := strings.Split(str, ",")
	result := make(UUIDArray, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return fmt.Errorf("UUIDArray: failed to parse UUID %q: %w", p, err)
		}
		result = append(result, id)
	}
	*a = result
	return nil
}

// Value implements the driver.Valuer interface for writing to database
func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}

	strs := make([]string, len(a))
	for i, id := range a {
		strs[i] = id.String()
	}
	return "{" + strings.Join(strs, ",") + "}", nil
}

// Contains reports whether id is a member of the array.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, member := range a {
		if member == id {
			return true
		}
	}
	return false
}

// Add returns the array with id appended if not already present.
func (a UUIDArray) Add(id uuid.UUID) UUIDArray {
	if a.Contains(id) {
		return a
	}
	return append(a, id)
}

// Remove returns the array without id.
func (a UUIDArray) Remove(id uuid.UUID) UUIDArray {
	result := make(UUIDArray, 0, len(a))
	for _, member := range a {
		if member != id {
			result = append(result, member)
		}
	}
	return result
}

// PermissionSet holds the three access-level membership arrays of a resource.
// The arrays are only ever rewritten through permission.Grant so that the
// admin ⊆ write ⊆ read population invariant holds.
type PermissionSet struct {
	ReadUsers  UUIDArray `gorm:"type:uuid[]" json:"-"`
	WriteUsers UUIDArray `gorm:"type:uuid[]" json:"-"`
	AdminUsers UUIDArray `gorm:"type:uuid[]" json:"-"`
}

// Base model with UUID primary key and timestamps
type Base struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Audit carries the timestamps shared by entities keyed by composite ids
// rather than a surrogate UUID.
type Audit struct {
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Deleted reports whether the entity is soft-deleted.
func (a Audit) Deleted() bool {
	return a.DeletedAt.Valid
}

// DeletedTime returns the soft-delete timestamp, zero if live.
func (a Audit) DeletedTime() time.Time {
	if !a.DeletedAt.Valid {
		return time.Time{}
	}
	return a.DeletedAt.Time
}
