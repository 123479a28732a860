package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/api/dto"
	"github.com/modelry/modelry/internal/api/middleware"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/permission"
	"github.com/modelry/modelry/internal/store"
)

// ElementHandler resolves and authorizes the org → project chain through the
// project store, then delegates to the element store, which trusts the chain.
type ElementHandler struct {
	projects *store.ProjectStore
}

func NewElementHandler(projects *store.ProjectStore) *ElementHandler {
	return &ElementHandler{projects: projects}
}

type CreateElementRequest struct {
	ID            string  `json:"id"`
	UUID          string  `json:"uuid,omitempty"`
	Type          string  `json:"type"`
	Name          string  `json:"name,omitempty"`
	Documentation string  `json:"documentation,omitempty"`
	Custom        string  `json:"custom,omitempty"`
	ParentID      *string `json:"parent_id,omitempty"`
	SourceID      *string `json:"source_id,omitempty"`
	TargetID      *string `json:"target_id,omitempty"`
}

type ElementResponse struct {
	OrgID         string   `json:"org_id"`
	ProjectID     string   `json:"project_id"`
	ID            string   `json:"id"`
	QualifiedID   string   `json:"qualified_id"`
	UUID          string   `json:"uuid"`
	Type          string   `json:"type"`
	Name          string   `json:"name,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Custom        string   `json:"custom,omitempty"`
	ParentID      *string  `json:"parent_id,omitempty"`
	SourceID      *string  `json:"source_id,omitempty"`
	TargetID      *string  `json:"target_id,omitempty"`
	Contains      []string `json:"contains,omitempty"`
	Deleted       bool     `json:"deleted"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func elementToResponse(elem *models.Element) ElementResponse {
	return ElementResponse{
		OrgID:         elem.OrgID,
		ProjectID:     elem.ProjectID,
		ID:            elem.ID,
		QualifiedID:   elem.QualifiedID(),
		UUID:          elem.UUID.String(),
		Type:          string(elem.Type),
		Name:          elem.Name,
		Documentation: elem.Documentation,
		Custom:        elem.Custom,
		ParentID:      elem.ParentID,
		SourceID:      elem.SourceID,
		TargetID:      elem.TargetID,
		Deleted:       elem.Deleted(),
		CreatedAt:     elem.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     elem.UpdatedAt.Format(time.RFC3339),
	}
}

// resolveChain authorizes the org → project chain at the level the element
// operation needs and returns the project for the element store.
func (h *ElementHandler) resolveChain(r *http.Request, level permission.Level, includeDeleted bool) (*models.Project, permission.Principal, error) {
	principal := middleware.GetPrincipal(r.Context())
	proj, err := h.projects.ResolveAuthorized(
		r.Context(),
		principal,
		chi.URLParam(r, "org"),
		chi.URLParam(r, "proj"),
		level,
		includeDeleted,
	)
	return proj, principal, err
}

// List handles GET /api/v1/orgs/{org}/projects/{proj}/elements?type=
func (h *ElementHandler) List(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	level := permission.Read
	if includeDeleted {
		level = permission.Admin
	}

	proj, _, err := h.resolveChain(r, level, false)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	elements, err := h.projects.Elements().List(r.Context(), proj, r.URL.Query().Get("type"), includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := make([]ElementResponse, len(elements))
	for i := range elements {
		resp[i] = elementToResponse(&elements[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/orgs/{org}/projects/{proj}/elements
func (h *ElementHandler) Create(w http.ResponseWriter, r *http.Request) {
	proj, principal, err := h.resolveChain(r, permission.Write, false)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req CreateElementRequest
	if !decodeBody(w, r, &req) {
		return
	}

	input := store.CreateElementInput{
		ID:            req.ID,
		Type:          models.ElementType(req.Type),
		Name:          req.Name,
		Documentation: req.Documentation,
		Custom:        req.Custom,
		ParentID:      req.ParentID,
		SourceID:      req.SourceID,
		TargetID:      req.TargetID,
	}
	if req.UUID != "" {
		id, err := uuid.Parse(req.UUID)
		if err != nil {
			writeBadRequest(w, "invalid element uuid")
			return
		}
		input.UUID = id
	}

	elem, err := h.projects.Elements().Create(r.Context(), principal, proj, input)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, elementToResponse(elem))
}

// Get handles GET /api/v1/orgs/{org}/projects/{proj}/elements/{id}
func (h *ElementHandler) Get(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	level := permission.Read
	if includeDeleted {
		level = permission.Admin
	}

	proj, _, err := h.resolveChain(r, level, false)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	elements := h.projects.Elements()
	elem, err := elements.Get(r.Context(), proj, chi.URLParam(r, "id"), includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := elementToResponse(elem)
	if elem.Type == models.ElementTypePackage {
		children, err := elements.Children(r.Context(), proj, elem.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		resp.Contains = make([]string, len(children))
		for i := range children {
			resp.Contains[i] = children[i].ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update handles PATCH /api/v1/orgs/{org}/projects/{proj}/elements/{id}
func (h *ElementHandler) Update(w http.ResponseWriter, r *http.Request) {
	proj, principal, err := h.resolveChain(r, permission.Write, false)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var patch map[string]interface{}
	if !decodeBody(w, r, &patch) {
		return
	}

	elem, err := h.projects.Elements().Update(r.Context(), principal, proj, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elementToResponse(elem))
}

// Delete handles DELETE /api/v1/orgs/{org}/projects/{proj}/elements/{id}?hard=true
func (h *ElementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	level := permission.Write
	if hard {
		level = permission.Admin
	}

	proj, principal, err := h.resolveChain(r, level, false)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if err := h.projects.Elements().Remove(r.Context(), principal, proj, chi.URLParam(r, "id"), hard); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "element removed"})
}

// Restore handles POST /api/v1/orgs/{org}/projects/{proj}/elements/{id}/restore
func (h *ElementHandler) Restore(w http.ResponseWriter, r *http.Request) {
	proj, principal, err := h.resolveChain(r, permission.Admin, false)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	elem, err := h.projects.Elements().Restore(r.Context(), principal, proj, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elementToResponse(elem))
}
