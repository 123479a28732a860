package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/permission"
	"github.com/modelry/modelry/internal/store"
	"github.com/modelry/modelry/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type elementFixture struct {
	db       *gorm.DB
	orgs     *store.OrganizationStore
	projects *store.ProjectStore
	elements *store.ElementStore
	proj     *models.Project
	admin    permission.Principal
}

func setupElementFixture(t *testing.T) *elementFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	orgs, projects := newStores(t, db)

	admin := testutil.CreateTestUser(t, db, true)
	adminP := testutil.PrincipalFor(admin)
	ctx := context.Background()

	_, err := orgs.Create(ctx, adminP, store.CreateOrganizationInput{ID: "org1", Name: "Org One"})
	require.NoError(t, err)
	proj, err := projects.Create(ctx, adminP, "org1", store.CreateProjectInput{ID: "proj1", Name: "Project One"})
	require.NoError(t, err)

	return &elementFixture{
		db:       db,
		orgs:     orgs,
		projects: projects,
		elements: projects.Elements(),
		proj:     proj,
		admin:    adminP,
	}
}

func (f *elementFixture) create(t *testing.T, input store.CreateElementInput) *models.Element {
	t.Helper()
	elem, err := f.elements.Create(context.Background(), f.admin, f.proj, input)
	require.NoError(t, err)
	return elem
}

func strPtr(s string) *string { return &s }

func TestElementTreeRules(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	root := f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage, Name: "Model Root"})
	assert.True(t, root.IsRoot())

	// A second parentless element is rejected.
	_, err := f.elements.Create(ctx, f.admin, f.proj, store.CreateElementInput{
		ID:   "root2",
		Type: models.ElementTypePackage,
	})
	require.Error(t, err)
	assert.Equal(t, store.KindBadRequest, store.KindOf(err))
	assert.Contains(t, err.Error(), "already has a root element")

	block := f.create(t, store.CreateElementInput{
		ID:       "engine",
		Type:     models.ElementTypeBlock,
		ParentID: strPtr("root"),
	})
	assert.Equal(t, "root", *block.ParentID)

	// Blocks cannot contain anything.
	_, err = f.elements.Create(ctx, f.admin, f.proj, store.CreateElementInput{
		ID:       "piston",
		Type:     models.ElementTypeBlock,
		ParentID: strPtr("engine"),
	})
	require.Error(t, err)
	assert.Equal(t, store.KindBadRequest, store.KindOf(err))
	assert.Contains(t, err.Error(), "not of type Package")

	// The parent must exist.
	_, err = f.elements.Create(ctx, f.admin, f.proj, store.CreateElementInput{
		ID:       "orphan",
		Type:     models.ElementTypeBlock,
		ParentID: strPtr("ghost"),
	})
	assert.Equal(t, store.KindBadRequest, store.KindOf(err))

	// Composite id is unique within the project.
	_, err = f.elements.Create(ctx, f.admin, f.proj, store.CreateElementInput{
		ID:       "engine",
		Type:     models.ElementTypeBlock,
		ParentID: strPtr("root"),
	})
	assert.Equal(t, store.KindConflict, store.KindOf(err))

	// Unknown discriminator.
	_, err = f.elements.Create(ctx, f.admin, f.proj, store.CreateElementInput{
		ID:       "thing",
		Type:     models.ElementType("widget"),
		ParentID: strPtr("root"),
	})
	assert.Equal(t, store.KindBadRequest, store.KindOf(err))
}

func TestElementRelationshipRules(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "a", Type: models.ElementTypeBlock, ParentID: strPtr("root")})
	f.create(t, store.CreateElementInput{ID: "b", Type: models.ElementTypeBlock, ParentID: strPtr("root")})

	tests := []struct {
		name     string
		input    store.CreateElementInput
		wantKind store.Kind
	}{
		{
			name: "valid relationship",
			input: store.CreateElementInput{
				ID: "a-to-b", Type: models.ElementTypeRelationship,
				ParentID: strPtr("root"), SourceID: strPtr("a"), TargetID: strPtr("b"),
			},
		},
		{
			name: "missing target",
			input: store.CreateElementInput{
				ID: "half", Type: models.ElementTypeRelationship,
				ParentID: strPtr("root"), SourceID: strPtr("a"),
			},
			wantKind: store.KindBadRequest,
		},
		{
			name: "self loop",
			input: store.CreateElementInput{
				ID: "loop", Type: models.ElementTypeRelationship,
				ParentID: strPtr("root"), SourceID: strPtr("a"), TargetID: strPtr("a"),
			},
			wantKind: store.KindBadRequest,
		},
		{
			name: "unresolved endpoint",
			input: store.CreateElementInput{
				ID: "dangling", Type: models.ElementTypeRelationship,
				ParentID: strPtr("root"), SourceID: strPtr("a"), TargetID: strPtr("ghost"),
			},
			wantKind: store.KindBadRequest,
		},
		{
			name: "endpoints on a block",
			input: store.CreateElementInput{
				ID: "wrong", Type: models.ElementTypeBlock,
				ParentID: strPtr("root"), SourceID: strPtr("a"), TargetID: strPtr("b"),
			},
			wantKind: store.KindBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.elements.Create(ctx, f.admin, f.proj, tt.input)
			if tt.wantKind != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, store.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestElementContainsIsDerived(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "a", Type: models.ElementTypeBlock, ParentID: strPtr("root")})
	f.create(t, store.CreateElementInput{ID: "b", Type: models.ElementTypeBlock, ParentID: strPtr("root")})

	children, err := f.elements.Children(ctx, f.proj, "root")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].ID)
	assert.Equal(t, "b", children[1].ID)

	// Soft-deleting a child drops it from the derived view with no writes to
	// the parent.
	require.NoError(t, f.elements.Remove(ctx, f.admin, f.proj, "a", false))
	children, err = f.elements.Children(ctx, f.proj, "root")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "b", children[0].ID)

	root, err := f.elements.Root(ctx, f.proj)
	require.NoError(t, err)
	assert.Equal(t, "root", root.ID)
}

func TestElementUpdate(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "engine", Type: models.ElementTypeBlock, ParentID: strPtr("root")})

	elem, err := f.elements.Update(ctx, f.admin, f.proj, "engine", map[string]interface{}{
		"name":          "Engine V2",
		"documentation": "Primary drive unit.",
		"custom":        `{"mass_kg":120}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Engine V2", elem.Name)

	tests := []struct {
		name     string
		patch    map[string]interface{}
		wantKind store.Kind
	}{
		{name: "id immutable", patch: map[string]interface{}{"id": "motor"}, wantKind: store.KindForbidden},
		{name: "uuid immutable", patch: map[string]interface{}{"uuid": uuid.New().String()}, wantKind: store.KindForbidden},
		{name: "type not user-mutable", patch: map[string]interface{}{"type": "package"}, wantKind: store.KindBadRequest},
		{name: "parent not user-mutable", patch: map[string]interface{}{"parent_id": "root"}, wantKind: store.KindBadRequest},
		{name: "source not user-mutable", patch: map[string]interface{}{"source_id": "root"}, wantKind: store.KindBadRequest},
		{name: "unknown field", patch: map[string]interface{}{"color": "red"}, wantKind: store.KindBadRequest},
		{name: "mistyped name", patch: map[string]interface{}{"name": 7}, wantKind: store.KindBadRequest},
		{name: "malformed custom", patch: map[string]interface{}{"custom": "{"}, wantKind: store.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.elements.Update(ctx, f.admin, f.proj, "engine", tt.patch)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, store.KindOf(err))
		})
	}
}

func TestElementSoftDeleteAndRestore(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "engine", Type: models.ElementTypeBlock, ParentID: strPtr("root")})

	require.NoError(t, f.elements.Remove(ctx, f.admin, f.proj, "engine", false))

	_, err := f.elements.Get(ctx, f.proj, "engine", false)
	assert.Equal(t, store.KindNotFound, store.KindOf(err))

	elem, err := f.elements.Get(ctx, f.proj, "engine", true)
	require.NoError(t, err)
	assert.True(t, elem.Deleted())

	// Soft deletion marks only the element; its id stays claimed.
	_, err = f.elements.Create(ctx, f.admin, f.proj, store.CreateElementInput{
		ID:       "engine",
		Type:     models.ElementTypeBlock,
		ParentID: strPtr("root"),
	})
	assert.Equal(t, store.KindConflict, store.KindOf(err))

	elem, err = f.elements.Restore(ctx, f.admin, f.proj, "engine")
	require.NoError(t, err)
	assert.False(t, elem.Deleted())
	assert.Equal(t, "engine", elem.ID)
}

func TestElementHardDeleteCascades(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	// root
	// ├── sub (package)
	// │   └── inner (block)
	// ├── outer (block)
	// └── link (relationship inner → outer)
	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "sub", Type: models.ElementTypePackage, ParentID: strPtr("root")})
	f.create(t, store.CreateElementInput{ID: "inner", Type: models.ElementTypeBlock, ParentID: strPtr("sub")})
	f.create(t, store.CreateElementInput{ID: "outer", Type: models.ElementTypeBlock, ParentID: strPtr("root")})
	f.create(t, store.CreateElementInput{
		ID: "link", Type: models.ElementTypeRelationship,
		ParentID: strPtr("root"), SourceID: strPtr("inner"), TargetID: strPtr("outer"),
	})

	require.NoError(t, f.elements.Remove(ctx, f.admin, f.proj, "sub", true))

	var ids []string
	require.NoError(t, f.db.Unscoped().Model(&models.Element{}).
		Where("org_id = ? AND project_id = ?", f.proj.OrgID, f.proj.ID).
		Order("id").Pluck("id", &ids).Error)

	// The subtree is gone and so is the relationship that referenced it; the
	// untouched sibling and the root survive.
	assert.Equal(t, []string{"outer", "root"}, ids)
}

func TestElementHardDeleteRequiresSiteAdmin(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "engine", Type: models.ElementTypeBlock, ParentID: strPtr("root")})

	// Project-level admin is not enough for the terminal path.
	member := testutil.CreateTestUser(t, f.db, false)
	memberP := testutil.PrincipalFor(member)

	err := f.elements.Remove(ctx, memberP, f.proj, "engine", true)
	require.Error(t, err)
	assert.Equal(t, store.KindUnauthorized, store.KindOf(err))

	// Soft deletion stays open to the authorized chain.
	require.NoError(t, f.elements.Remove(ctx, memberP, f.proj, "engine", false))

	require.NoError(t, f.elements.Remove(ctx, f.admin, f.proj, "engine", true))
	var count int64
	require.NoError(t, f.db.Unscoped().Model(&models.Element{}).
		Where("org_id = ? AND project_id = ? AND id = ?", f.proj.OrgID, f.proj.ID, "engine").
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestElementClientUUIDUniqueAcrossStore(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	fixed := uuid.New()
	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage, UUID: fixed})

	// A second project cannot reuse the identifier.
	proj2, err := f.projects.Create(ctx, f.admin, "org1", store.CreateProjectInput{ID: "proj2", Name: "Project Two"})
	require.NoError(t, err)

	_, err = f.elements.Create(ctx, f.admin, proj2, store.CreateElementInput{
		ID:   "root",
		Type: models.ElementTypePackage,
		UUID: fixed,
	})
	require.Error(t, err)
	assert.Equal(t, store.KindConflict, store.KindOf(err))
}

func TestElementListAndTypeFilter(t *testing.T) {
	f := setupElementFixture(t)
	ctx := context.Background()

	f.create(t, store.CreateElementInput{ID: "root", Type: models.ElementTypePackage})
	f.create(t, store.CreateElementInput{ID: "a", Type: models.ElementTypeBlock, ParentID: strPtr("root")})
	f.create(t, store.CreateElementInput{ID: "b", Type: models.ElementTypeBlock, ParentID: strPtr("root")})

	all, err := f.elements.List(ctx, f.proj, "", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	blocks, err := f.elements.List(ctx, f.proj, "block", false)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	_, err = f.elements.List(ctx, f.proj, "widget", false)
	assert.Equal(t, store.KindBadRequest, store.KindOf(err))

	// Deleted rows appear only on request.
	require.NoError(t, f.elements.Remove(ctx, f.admin, f.proj, "a", false))
	live, err := f.elements.List(ctx, f.proj, "", false)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	withDeleted, err := f.elements.List(ctx, f.proj, "", true)
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)
}
