// Package testutil provides an isolated sqlite database and seed helpers for
// package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jsyadav90/abcd-backend2/internal/database"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

// NewDB opens a private in-memory sqlite database with the schema migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps shared-cache sqlite free of table lock errors
	// when tests run goroutines against the same database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func Branch(t *testing.T, db *gorm.DB, name string) *models.Branch {
	t.Helper()
	b := &models.Branch{Name: name, IsActive: true}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create branch: %v", err)
	}
	return b
}

func Role(t *testing.T, db *gorm.DB, name string, rank int, actions ...string) *models.Role {
	t.Helper()
	grants := make([]models.PermissionGrant, 0, len(actions))
	for _, a := range actions {
		grants = append(grants, models.PermissionGrant{Action: a, Granted: true})
	}
	r := &models.Role{Name: name, Rank: rank, Permissions: grants, IsActive: true}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create role: %v", err)
	}
	return r
}

// User creates an active user in branch with role. The returned user has
// Role preloaded.
func User(t *testing.T, db *gorm.DB, name string, role *models.Role, branch *models.Branch) *models.User {
	t.Helper()
	u := &models.User{
		ExternalID: uuid.NewString(),
		Name:       name,
		RoleID:     role.ID,
		BranchID:   branch.ID,
		IsActive:   true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	u.Role = role
	return u
}

// LoginUser creates a login enabled user with username and password plus its
// credential record.
func LoginUser(t *testing.T, db *gorm.DB, username, password string, role *models.Role, branch *models.Branch) *models.User {
	t.Helper()
	u := User(t, db, username, role, branch)
	u.Username = &username
	u.CanLogin = true
	if err := db.Model(u).Updates(map[string]any{"username": username, "can_login": true}).Error; err != nil {
		t.Fatalf("enable login: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cred := &models.LoginCredential{
		UserID:       u.ID,
		PasswordHash: string(hash),
		Devices:      models.DeviceRegistry{},
	}
	if err := db.Create(cred).Error; err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return u
}

// ReportTo sets the reporting edge directly, bypassing the engine checks.
func ReportTo(t *testing.T, db *gorm.DB, user *models.User, manager *models.User) {
	t.Helper()
	var managerID *uint
	if manager != nil {
		managerID = &manager.ID
	}
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("reporting_to_id", managerID).Error; err != nil {
		t.Fatalf("report to: %v", err)
	}
	user.ReportingToID = managerID
}
