package store

import (
	"context"

	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/identifier"
)

// Violation is one integrity problem found by an audit pass.
type Violation struct {
	Element string `json:"element"`
	Problem string `json:"problem"`
}

// Audit verifies the tree and graph invariants over the live elements of a
// project: parent pointers resolve to live packages, at most one root
// exists, and relationship endpoints are present together, distinct, and
// resolve inside the project. It reports violations without fixing anything;
// the worker logs them for operators.
func (s *ElementStore) Audit(ctx context.Context, orgID, projectID string) ([]Violation, error) {
	var elements []models.Element
	if err := s.db.WithContext(ctx).
		Where("org_id = ? AND project_id = ?", orgID, projectID).
		Find(&elements).Error; err != nil {
		return nil, wrapDB(err, "elements")
	}

	byID := make(map[string]*models.Element, len(elements))
	for i := range elements {
		byID[elements[i].ID] = &elements[i]
	}

	var violations []Violation
	report := func(e *models.Element, problem string) {
		violations = append(violations, Violation{
			Element: identifier.Join(orgID, projectID, e.ID),
			Problem: problem,
		})
	}

	roots := 0
	for i := range elements {
		e := &elements[i]

		if e.ParentID == nil {
			roots++
		} else {
			parent, ok := byID[*e.ParentID]
			switch {
			case !ok:
				report(e, "parent does not resolve to a live element")
			case parent.Type != models.ElementTypePackage:
				report(e, "parent is not a package")
			}
		}

		if e.Type == models.ElementTypeRelationship {
			s.auditEndpoints(e, byID, report)
		} else if e.SourceID != nil || e.TargetID != nil {
			report(e, "non-relationship carries endpoint references")
		}
	}

	if roots > 1 {
		violations = append(violations, Violation{
			Element: identifier.Join(orgID, projectID),
			Problem: "project has more than one root element",
		})
	}

	return violations, nil
}

func (s *ElementStore) auditEndpoints(e *models.Element, byID map[string]*models.Element, report func(*models.Element, string)) {
	if e.SourceID == nil || e.TargetID == nil {
		report(e, "relationship is missing an endpoint")
		return
	}
	if *e.SourceID == *e.TargetID {
		report(e, "relationship source and target are identical")
	}
	if _, ok := byID[*e.SourceID]; !ok {
		report(e, "relationship source does not resolve to a live element")
	}
	if _, ok := byID[*e.TargetID]; !ok {
		report(e, "relationship target does not resolve to a live element")
	}
}
