package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelry/modelry/internal/api/dto"
	"github.com/modelry/modelry/internal/api/middleware"
	"github.com/modelry/modelry/internal/auth"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/permission"
	"github.com/modelry/modelry/internal/store"
)

type ProjectHandler struct {
	projects *store.ProjectStore
	users    *auth.Service
}

func NewProjectHandler(projects *store.ProjectStore, users *auth.Service) *ProjectHandler {
	return &ProjectHandler{projects: projects, users: users}
}

type CreateProjectRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom string `json:"custom,omitempty"`
}

type ProjectResponse struct {
	OrgID         string `json:"org_id"`
	ID            string `json:"id"`
	QualifiedID   string `json:"qualified_id"`
	Name          string `json:"name"`
	OrgReadAccess bool   `json:"org_read_access"`
	Custom        string `json:"custom,omitempty"`
	Deleted       bool   `json:"deleted"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func projectToResponse(proj *models.Project) ProjectResponse {
	return ProjectResponse{
		OrgID:         proj.OrgID,
		ID:            proj.ID,
		QualifiedID:   proj.QualifiedID(),
		Name:          proj.Name,
		OrgReadAccess: proj.OrgReadAccess,
		Custom:        proj.Custom,
		Deleted:       proj.Deleted(),
		CreatedAt:     proj.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     proj.UpdatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/v1/orgs/{org}/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	projects, err := h.projects.List(r.Context(), principal, chi.URLParam(r, "org"), includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := make([]ProjectResponse, len(projects))
	for i := range projects {
		resp[i] = projectToResponse(&projects[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/orgs/{org}/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	proj, err := h.projects.Create(r.Context(), principal, chi.URLParam(r, "org"), store.CreateProjectInput{
		ID:     req.ID,
		Name:   req.Name,
		Custom: req.Custom,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, projectToResponse(proj))
}

// Get handles GET /api/v1/orgs/{org}/projects/{proj}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	proj, err := h.projects.Get(r.Context(), principal, chi.URLParam(r, "org"), chi.URLParam(r, "proj"), includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(proj))
}

// Update handles PATCH /api/v1/orgs/{org}/projects/{proj}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var patch map[string]interface{}
	if !decodeBody(w, r, &patch) {
		return
	}

	proj, err := h.projects.Update(r.Context(), principal, chi.URLParam(r, "org"), chi.URLParam(r, "proj"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(proj))
}

// Delete handles DELETE /api/v1/orgs/{org}/projects/{proj}?hard=true
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	hard := r.URL.Query().Get("hard") == "true"

	err := h.projects.Remove(r.Context(), principal, chi.URLParam(r, "org"), chi.URLParam(r, "proj"), hard)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "project removed"})
}

// Restore handles POST /api/v1/orgs/{org}/projects/{proj}/restore
func (h *ProjectHandler) Restore(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	proj, err := h.projects.Restore(r.Context(), principal, chi.URLParam(r, "org"), chi.URLParam(r, "proj"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(proj))
}

// Permissions handles GET /api/v1/orgs/{org}/projects/{proj}/permissions
func (h *ProjectHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	perms, err := h.projects.Permissions(r.Context(), principal, chi.URLParam(r, "org"), chi.URLParam(r, "proj"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// SetPermission handles PUT /api/v1/orgs/{org}/projects/{proj}/permissions
func (h *ProjectHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req SetPermissionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	target, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeStoreError(w, store.NotFoundf("user %q not found", req.Email))
			return
		}
		writeStoreError(w, store.Internalf(err, "resolving user"))
		return
	}

	err = h.projects.SetPermission(r.Context(), principal, chi.URLParam(r, "org"), chi.URLParam(r, "proj"), target.ID, permission.Role(req.Role))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "permission updated"})
}
