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

type OrganizationHandler struct {
	orgs  *store.OrganizationStore
	users *auth.Service
}

func NewOrganizationHandler(orgs *store.OrganizationStore, users *auth.Service) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs, users: users}
}

type CreateOrganizationRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom string `json:"custom,omitempty"`
}

// SetPermissionRequest grants a role on a resource, addressed by username.
type SetPermissionRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type OrganizationResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Custom    string `json:"custom,omitempty"`
	Deleted   bool   `json:"deleted"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func orgToResponse(org *models.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Custom:    org.Custom,
		Deleted:   org.Deleted(),
		CreatedAt: org.CreatedAt.Format(time.RFC3339),
		UpdatedAt: org.UpdatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/v1/orgs
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	orgs, err := h.orgs.List(r.Context(), principal, includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := make([]OrganizationResponse, len(orgs))
	for i := range orgs {
		resp[i] = orgToResponse(&orgs[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/orgs
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateOrganizationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	org, err := h.orgs.Create(r.Context(), principal, store.CreateOrganizationInput{
		ID:     req.ID,
		Name:   req.Name,
		Custom: req.Custom,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, orgToResponse(org))
}

// Get handles GET /api/v1/orgs/{org}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	org, err := h.orgs.Get(r.Context(), principal, chi.URLParam(r, "org"), includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgToResponse(org))
}

// Update handles PATCH /api/v1/orgs/{org}
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var patch map[string]interface{}
	if !decodeBody(w, r, &patch) {
		return
	}

	org, err := h.orgs.Update(r.Context(), principal, chi.URLParam(r, "org"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgToResponse(org))
}

// Delete handles DELETE /api/v1/orgs/{org}?hard=true
func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.orgs.Remove(r.Context(), principal, chi.URLParam(r, "org"), hard); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "organization removed"})
}

// Restore handles POST /api/v1/orgs/{org}/restore
func (h *OrganizationHandler) Restore(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	org, err := h.orgs.Restore(r.Context(), principal, chi.URLParam(r, "org"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgToResponse(org))
}

// Permissions handles GET /api/v1/orgs/{org}/permissions
func (h *OrganizationHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	perms, err := h.orgs.Permissions(r.Context(), principal, chi.URLParam(r, "org"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// SetPermission handles PUT /api/v1/orgs/{org}/permissions
func (h *OrganizationHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
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

	err = h.orgs.SetPermission(r.Context(), principal, chi.URLParam(r, "org"), target.ID, permission.Role(req.Role))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "permission updated"})
}
