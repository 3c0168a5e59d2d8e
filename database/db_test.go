package database

import (
	"path/filepath"
	"testing"

	"github.com/memberpanel/memberpanel/config"
	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/util/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Type:   config.DatabaseTypeSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	}
}

func TestOpenSeedsAdmin(t *testing.T) {
	t.Setenv("MEMBERS_ADMIN_EMAIL", "root@x.com")
	t.Setenv("MEMBERS_ADMIN_PASSWORD", "changeme")
	t.Setenv("MEMBERS_BCRYPT_COST", "4")

	conn, err := Open(testConfig(t))
	require.NoError(t, err)

	var admin model.User
	require.NoError(t, conn.Where("email = ?", "root@x.com").First(&admin).Error)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.Equal(t, "admin", admin.Name)
	assert.True(t, crypto.CheckPasswordHash(admin.PasswordHash, "changeme"))
}

func TestOpenWithoutAdminConfig(t *testing.T) {
	t.Setenv("MEMBERS_ADMIN_EMAIL", "")
	t.Setenv("MEMBERS_ADMIN_PASSWORD", "")

	conn, err := Open(testConfig(t))
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&model.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSeedPromotesExistingUser(t *testing.T) {
	t.Setenv("MEMBERS_ADMIN_EMAIL", "")
	cfg := testConfig(t)

	conn, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, conn.Create(&model.User{Name: "Bob", Email: "bob@x.com", PasswordHash: "h", Role: model.RoleUser}).Error)
	sqlDB, _ := conn.DB()
	require.NoError(t, sqlDB.Close())

	t.Setenv("MEMBERS_ADMIN_EMAIL", "bob@x.com")
	t.Setenv("MEMBERS_ADMIN_PASSWORD", "whatever")
	t.Setenv("MEMBERS_BCRYPT_COST", "4")

	conn, err = Open(cfg)
	require.NoError(t, err)

	var bob model.User
	require.NoError(t, conn.Where("email = ?", "bob@x.com").First(&bob).Error)
	assert.Equal(t, model.RoleAdmin, bob.Role)
	assert.Equal(t, "h", bob.PasswordHash)
}

func TestInitDBAndCheckpoint(t *testing.T) {
	t.Setenv("MEMBERS_ADMIN_EMAIL", "")
	require.NoError(t, InitDB(testConfig(t)))
	defer CloseDB()

	assert.NotNil(t, GetDB())
	assert.NoError(t, Checkpoint(GetDB()))
	assert.NoError(t, Checkpoint(nil))
}
