package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsyadav90/abcd-backend2/internal/database"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/testutil"
)

func TestNormalizeLegacyPermissionsRewritesOnlyLegacyRows(t *testing.T) {
	db := testutil.NewDB(t)

	canonical := testutil.Role(t, db, "admin", 1, "users.read")
	require.NoError(t, db.Exec(
		"INSERT INTO roles (name, rank, permissions, is_active) VALUES (?, ?, ?, ?)",
		"legacy", 5, `["hierarchy.view", {"0":"a","1":"b"}]`, true,
	).Error)

	n, err := database.NormalizeLegacyPermissions(db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var legacy models.Role
	require.NoError(t, db.First(&legacy, "name = ?", "legacy").Error)
	require.Len(t, legacy.Permissions, 2)
	assert.Equal(t, "hierarchy.view", legacy.Permissions[0].Action)
	assert.Equal(t, "ab", legacy.Permissions[1].Action)
	assert.True(t, legacy.Allows("hierarchy.view"))

	var admin models.Role
	require.NoError(t, db.First(&admin, canonical.ID).Error)
	assert.True(t, admin.Allows("users.read"))

	// second run is a no-op
	n, err = database.NormalizeLegacyPermissions(db)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
