package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/modelry/modelry/internal/api/handlers"
	"github.com/modelry/modelry/internal/api/middleware"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/store"
	"github.com/modelry/modelry/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupElementTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	elements := store.NewElementStore(tc.DB, testutil.DiscardLogger())
	projects := store.NewProjectStore(tc.DB, testutil.DiscardLogger(), elements)

	org := testutil.CreateTestOrg(t, tc.DB, "org1", tc.Admin)
	testutil.CreateTestProject(t, tc.DB, org, "proj1", tc.Admin)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))

	handler := handlers.NewElementHandler(projects)
	r.Route("/api/v1/orgs/{org}/projects/{proj}/elements", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.Get)
			r.Patch("/", handler.Update)
			r.Delete("/", handler.Delete)
			r.Post("/restore", handler.Restore)
		})
	})

	return r, tc
}

func TestElementHandler_Create(t *testing.T) {
	router, tc := setupElementTestRouter(t)
	defer tc.Cleanup()

	tests := []struct {
		name       string
		body       map[string]interface{}
		token      string
		wantStatus int
	}{
		{
			name:       "create root package",
			body:       map[string]interface{}{"id": "root", "type": "package", "name": "Model Root"},
			token:      tc.AdminToken,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "second root rejected",
			body:       map[string]interface{}{"id": "root2", "type": "package"},
			token:      tc.AdminToken,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "create block under root",
			body:       map[string]interface{}{"id": "engine", "type": "block", "parent_id": "root"},
			token:      tc.AdminToken,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "block cannot be a parent",
			body:       map[string]interface{}{"id": "piston", "type": "block", "parent_id": "engine"},
			token:      tc.AdminToken,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid type",
			body:       map[string]interface{}{"id": "thing", "type": "widget", "parent_id": "root"},
			token:      tc.AdminToken,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed uuid",
			body:       map[string]interface{}{"id": "x", "type": "block", "parent_id": "root", "uuid": "nope"},
			token:      tc.AdminToken,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate id conflicts",
			body:       map[string]interface{}{"id": "engine", "type": "block", "parent_id": "root"},
			token:      tc.AdminToken,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "ungranted user denied",
			body:       map[string]interface{}{"id": "intruder", "type": "block", "parent_id": "root"},
			token:      tc.UserToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "anonymous denied",
			body:       map[string]interface{}{"id": "anon", "type": "block", "parent_id": "root"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/orgs/org1/projects/proj1/elements", tt.body, tt.token)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}
}

func TestElementHandler_GetWithContains(t *testing.T) {
	router, tc := setupElementTestRouter(t)
	defer tc.Cleanup()

	for _, body := range []map[string]interface{}{
		{"id": "root", "type": "package"},
		{"id": "a", "type": "block", "parent_id": "root"},
		{"id": "b", "type": "block", "parent_id": "root"},
	} {
		req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/orgs/org1/projects/proj1/elements", body, tc.AdminToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	}

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/orgs/org1/projects/proj1/elements/root", nil, tc.AdminToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp handlers.ElementResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "org1:proj1:root", resp.QualifiedID)
	assert.Equal(t, string(models.ElementTypePackage), resp.Type)
	assert.Equal(t, []string{"a", "b"}, resp.Contains)

	// Blocks carry no derived contains set.
	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/orgs/org1/projects/proj1/elements/a", nil, tc.AdminToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp = handlers.ElementResponse{}
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Empty(t, resp.Contains)
}

func TestElementHandler_DeleteAndRestore(t *testing.T) {
	router, tc := setupElementTestRouter(t)
	defer tc.Cleanup()

	for _, body := range []map[string]interface{}{
		{"id": "root", "type": "package"},
		{"id": "engine", "type": "block", "parent_id": "root"},
	} {
		req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/orgs/org1/projects/proj1/elements", body, tc.AdminToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	}

	req := testutil.AuthenticatedRequest(t, http.MethodDelete, "/api/v1/orgs/org1/projects/proj1/elements/engine", nil, tc.AdminToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	// Default visibility hides the soft-deleted element.
	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/orgs/org1/projects/proj1/elements/engine", nil, tc.AdminToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	// Admins can ask for it back in the view, flagged as deleted.
	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/orgs/org1/projects/proj1/elements/engine?include_deleted=true", nil, tc.AdminToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp handlers.ElementResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	require.True(t, resp.Deleted)

	req = testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/orgs/org1/projects/proj1/elements/engine/restore", nil, tc.AdminToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/orgs/org1/projects/proj1/elements/engine", nil, tc.AdminToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestElementHandler_Update(t *testing.T) {
	router, tc := setupElementTestRouter(t)
	defer tc.Cleanup()

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/orgs/org1/projects/proj1/elements",
		map[string]interface{}{"id": "root", "type": "package"}, tc.AdminToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	tests := []struct {
		name       string
		patch      map[string]interface{}
		wantStatus int
	}{
		{name: "rename", patch: map[string]interface{}{"name": "System Root"}, wantStatus: http.StatusOK},
		{name: "id immutable", patch: map[string]interface{}{"id": "root2"}, wantStatus: http.StatusForbidden},
		{name: "type not user-mutable", patch: map[string]interface{}{"type": "block"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, http.MethodPatch, "/api/v1/orgs/org1/projects/proj1/elements/root", tt.patch, tc.AdminToken)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}
}
