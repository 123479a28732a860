package store_test

import (
	"context"
	"testing"

	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/permission"
	"github.com/modelry/modelry/internal/store"
	"github.com/modelry/modelry/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedOrg(t *testing.T, db *gorm.DB, orgs *store.OrganizationStore, principal permission.Principal, id string) {
	t.Helper()
	_, err := orgs.Create(context.Background(), principal, store.CreateOrganizationInput{ID: id, Name: "Org " + id})
	require.NoError(t, err)
}

func TestProjectCreate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	orgs, projects := newStores(t, db)

	admin := testutil.CreateTestUser(t, db, true)
	member := testutil.CreateTestUser(t, db, false)
	adminP := testutil.PrincipalFor(admin)
	ctx := context.Background()

	seedOrg(t, db, orgs, adminP, "acme")

	proj, err := projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "proj1", Name: "Project One"})
	require.NoError(t, err)
	assert.Equal(t, "acme:proj1", proj.QualifiedID())
	assert.Equal(t, permission.RoleAdmin, permission.RoleOf(proj.PermissionSet, admin.ID))

	// Same id under the same org conflicts, even across soft deletion.
	_, err = projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "proj1", Name: "Again"})
	assert.Equal(t, store.KindConflict, store.KindOf(err))

	// Org write access is required.
	_, err = projects.Create(ctx, testutil.PrincipalFor(member), "acme", store.CreateProjectInput{ID: "proj2", Name: "Nope"})
	assert.Equal(t, store.KindUnauthorized, store.KindOf(err))

	// Unknown org.
	_, err = projects.Create(ctx, adminP, "ghost", store.CreateProjectInput{ID: "proj1", Name: "Lost"})
	assert.Equal(t, store.KindNotFound, store.KindOf(err))

	// Invalid project id.
	_, err = projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "Bad Id", Name: "Bad"})
	assert.Equal(t, store.KindBadRequest, store.KindOf(err))
}

func TestProjectOrgReadFallback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	orgs, projects := newStores(t, db)

	admin := testutil.CreateTestUser(t, db, true)
	member := testutil.CreateTestUser(t, db, false)
	adminP := testutil.PrincipalFor(admin)
	memberP := testutil.PrincipalFor(member)
	ctx := context.Background()

	seedOrg(t, db, orgs, adminP, "acme")
	require.NoError(t, orgs.SetPermission(ctx, adminP, "acme", member.ID, permission.RoleRead))

	_, err := projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "proj1", Name: "Project One"})
	require.NoError(t, err)

	// Org readers see nothing by default.
	_, err = projects.Get(ctx, memberP, "acme", "proj1", false)
	assert.Equal(t, store.KindUnauthorized, store.KindOf(err))

	// Flipping org_read_access opens read, and only read, to org readers.
	_, err = projects.Update(ctx, adminP, "acme", "proj1", map[string]interface{}{"org_read_access": true})
	require.NoError(t, err)

	proj, err := projects.Get(ctx, memberP, "acme", "proj1", false)
	require.NoError(t, err)
	assert.True(t, proj.OrgReadAccess)

	_, err = projects.ResolveAuthorized(ctx, memberP, "acme", "proj1", permission.Write, false)
	assert.Equal(t, store.KindUnauthorized, store.KindOf(err))

	listed, err := projects.List(ctx, memberP, "acme", false)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestProjectUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	orgs, projects := newStores(t, db)

	admin := testutil.CreateTestUser(t, db, true)
	adminP := testutil.PrincipalFor(admin)
	ctx := context.Background()

	seedOrg(t, db, orgs, adminP, "acme")
	_, err := projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "proj1", Name: "Project One"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		patch    map[string]interface{}
		wantKind store.Kind
	}{
		{name: "rename", patch: map[string]interface{}{"name": "Renamed"}},
		{name: "custom metadata", patch: map[string]interface{}{"custom": `{"phase":"design"}`}},
		{name: "id immutable", patch: map[string]interface{}{"id": "proj2"}, wantKind: store.KindForbidden},
		{name: "org immutable", patch: map[string]interface{}{"org_id": "other"}, wantKind: store.KindForbidden},
		{name: "unknown field", patch: map[string]interface{}{"owner": "me"}, wantKind: store.KindBadRequest},
		{name: "mistyped flag", patch: map[string]interface{}{"org_read_access": "yes"}, wantKind: store.KindBadRequest},
		{name: "malformed custom", patch: map[string]interface{}{"custom": `{"phase":`}, wantKind: store.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := projects.Update(ctx, adminP, "acme", "proj1", tt.patch)
			if tt.wantKind != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, store.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProjectSoftDeleteCascadesToElements(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	orgs, projects := newStores(t, db)

	admin := testutil.CreateTestUser(t, db, true)
	adminP := testutil.PrincipalFor(admin)
	ctx := context.Background()

	seedOrg(t, db, orgs, adminP, "acme")
	proj, err := projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "proj1", Name: "Project One"})
	require.NoError(t, err)

	root, err := projects.Elements().Create(ctx, adminP, proj, store.CreateElementInput{
		ID:   "root",
		Type: models.ElementTypePackage,
	})
	require.NoError(t, err)

	require.NoError(t, projects.Remove(ctx, adminP, "acme", "proj1", false))

	_, err = projects.Get(ctx, adminP, "acme", "proj1", false)
	assert.Equal(t, store.KindNotFound, store.KindOf(err))

	var elem models.Element
	err = db.Unscoped().First(&elem, "org_id = ? AND project_id = ? AND id = ?", "acme", "proj1", root.ID).Error
	require.NoError(t, err)
	assert.True(t, elem.DeletedAt.Valid, "cascade should soft-delete elements")

	// Restoring the project restores the project row only; elements stay
	// deleted until restored individually.
	restored, err := projects.Restore(ctx, adminP, "acme", "proj1")
	require.NoError(t, err)
	assert.False(t, restored.Deleted())

	_, err = projects.Elements().Get(ctx, restored, "root", false)
	assert.Equal(t, store.KindNotFound, store.KindOf(err))

	_, err = projects.Elements().Restore(ctx, adminP, restored, "root")
	require.NoError(t, err)
	_, err = projects.Elements().Get(ctx, restored, "root", false)
	require.NoError(t, err)
}

func TestProjectHardDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	orgs, projects := newStores(t, db)

	admin := testutil.CreateTestUser(t, db, true)
	adminP := testutil.PrincipalFor(admin)
	ctx := context.Background()

	seedOrg(t, db, orgs, adminP, "acme")
	proj, err := projects.Create(ctx, adminP, "acme", store.CreateProjectInput{ID: "proj1", Name: "Project One"})
	require.NoError(t, err)
	_, err = projects.Elements().Create(ctx, adminP, proj, store.CreateElementInput{
		ID:   "root",
		Type: models.ElementTypePackage,
	})
	require.NoError(t, err)

	// Project admins without site access cannot hard-delete.
	member := testutil.CreateTestUser(t, db, false)
	require.NoError(t, projects.SetPermission(ctx, adminP, "acme", "proj1", member.ID, permission.RoleAdmin))
	err = projects.Remove(ctx, testutil.PrincipalFor(member), "acme", "proj1", true)
	assert.Equal(t, store.KindUnauthorized, store.KindOf(err))

	require.NoError(t, projects.Remove(ctx, adminP, "acme", "proj1", true))

	var count int64
	require.NoError(t, db.Unscoped().Model(&models.Project{}).Where("org_id = ?", "acme").Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Unscoped().Model(&models.Element{}).Where("org_id = ?", "acme").Count(&count).Error)
	assert.Zero(t, count)
}
