// Package identifier validates the local-id grammar and builds the composite
// org:project:element identifiers used across the repository.
package identifier

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Separator joins the components of a composite identifier.
const Separator = ":"

// MaxLength bounds a single local identifier component.
const MaxLength = 64

var (
	ErrInvalidFormat = errors.New("identifier must be lowercase alphanumeric with dashes, 1-64 characters, starting and ending with an alphanumeric")
	ErrReserved      = errors.New("identifier is reserved")
)

// idRegex validates local ids: lowercase alnum plus dash, no leading or
// trailing dash.
var idRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// reserved ids collide with routing segments or the default organization.
var reserved = map[string]bool{
	"default":  true,
	"admin":    true,
	"api":      true,
	"auth":     true,
	"health":   true,
	"orgs":     true,
	"projects": true,
	"elements": true,
}

// Valid reports whether id satisfies the identifier grammar.
func Valid(id string) bool {
	return len(id) <= MaxLength && idRegex.MatchString(id)
}

// Validate checks the grammar and the reserved-word list.
func Validate(id string) error {
	if !Valid(id) {
		return ErrInvalidFormat
	}
	if reserved[id] {
		return ErrReserved
	}
	return nil
}

// Reserved reports whether id is a reserved word.
func Reserved(id string) bool {
	return reserved[id]
}

// Join builds a composite identifier from its components.
func Join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// Split breaks a composite identifier into its components.
func Split(qualified string) []string {
	return strings.Split(qualified, Separator)
}

// Sanitize strips null bytes and control characters (except newlines and
// tabs) from caller-supplied strings before they reach validation.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}
