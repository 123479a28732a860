package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/modelry/modelry/internal/auth"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/permission"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.Project{},
		&models.Element{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection.
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// DiscardLogger returns a logger that swallows all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestUser creates a user. Pass siteAdmin to mint a site administrator.
func CreateTestUser(t *testing.T, db *gorm.DB, siteAdmin bool) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		SiteAdmin:    siteAdmin,
		IsActive:     true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// PrincipalFor builds the principal a request would carry for user.
func PrincipalFor(user *models.User) permission.Principal {
	return permission.Principal{UserID: user.ID, SiteAdmin: user.SiteAdmin}
}

// CreateTestOrg creates an organization with owner seeded as its admin.
func CreateTestOrg(t *testing.T, db *gorm.DB, id string, owner *models.User) *models.Organization {
	t.Helper()

	org := &models.Organization{
		ID:   id,
		Name: "Test Organization",
	}
	permission.Seed(&org.PermissionSet, owner.ID)

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestProject creates a project under org with owner seeded as its admin.
func CreateTestProject(t *testing.T, db *gorm.DB, org *models.Organization, id string, owner *models.User) *models.Project {
	t.Helper()

	proj := &models.Project{
		OrgID: org.ID,
		ID:    id,
		Name:  "Test Project",
	}
	permission.Seed(&proj.PermissionSet, owner.ID)

	if err := db.Create(proj).Error; err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	return proj
}

// CreateTestElement inserts an element directly, skipping store validation.
func CreateTestElement(t *testing.T, db *gorm.DB, proj *models.Project, id string, elemType models.ElementType, parentID *string) *models.Element {
	t.Helper()

	elem := &models.Element{
		OrgID:     proj.OrgID,
		ProjectID: proj.ID,
		ID:        id,
		UUID:      uuid.New(),
		Type:      elemType,
		Name:      id,
		ParentID:  parentID,
	}

	if err := db.Create(elem).Error; err != nil {
		t.Fatalf("failed to create test element: %v", err)
	}

	return elem
}

// CreateTestJWTService creates a JWT service for testing.
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user.
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email, user.SiteAdmin)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication.
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication.
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct.
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Admin      *models.User // site administrator
	User       *models.User // regular member with no grants
	AdminToken string
	UserToken  string
}

// NewTestContext creates a complete test setup with DB, users, and tokens.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	admin := CreateTestUser(t, db, true)
	user := CreateTestUser(t, db, false)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Admin:      admin,
		User:       user,
		AdminToken: GenerateTestToken(t, jwtService, admin),
		UserToken:  GenerateTestToken(t, jwtService, user),
	}
}

// Cleanup closes the test database.
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
