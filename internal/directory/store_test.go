package directory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/testutil"
)

func TestSaveCredentialDetectsStaleVersion(t *testing.T) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	ctx := context.Background()
	u := testutil.LoginUser(t, db, "alice", "pw", testutil.Role(t, db, "staff", 10), testutil.Branch(t, db, "HQ"))

	first, err := store.CredentialByUserID(ctx, u.ID)
	require.NoError(t, err)
	second, err := store.CredentialByUserID(ctx, u.ID)
	require.NoError(t, err)

	now := time.Now()
	first.Attempts = 1
	first.Devices["laptop"] = &models.Device{ID: "laptop", History: []models.SessionEntry{{LoginAt: now}}}
	require.NoError(t, store.SaveCredential(ctx, first))
	assert.EqualValues(t, 1, first.Version)

	second.Attempts = 1
	err = store.SaveCredential(ctx, second)
	assert.True(t, errors.Is(err, directory.ErrVersionConflict))
	assert.True(t, apperror.Retryable(err))

	reloaded, err := store.CredentialByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Attempts)
	require.Contains(t, reloaded.Devices, "laptop")
	assert.True(t, reloaded.Devices["laptop"].HasOpenSession())
}

func TestUserLookupsHideDeleted(t *testing.T) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	ctx := context.Background()
	u := testutil.LoginUser(t, db, "bob", "pw", testutil.Role(t, db, "staff", 10), testutil.Branch(t, db, "HQ"))

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", u.ID).Update("is_deleted", true).Error)

	_, err := store.User(ctx, u.ID)
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))
	_, err = store.UserByUsername(ctx, "bob")
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))

	deleted, err := store.UserWithDeleted(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestReportingToAndSubtreeClosure(t *testing.T) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	ctx := context.Background()
	hq := testutil.Branch(t, db, "HQ")
	role := testutil.Role(t, db, "staff", 10)

	root := testutil.User(t, db, "root", role, hq)
	a := testutil.User(t, db, "a", role, hq)
	b := testutil.User(t, db, "b", role, hq)
	c := testutil.User(t, db, "c", role, hq)
	testutil.ReportTo(t, db, a, root)
	testutil.ReportTo(t, db, b, a)
	testutil.ReportTo(t, db, c, b)

	mgr, found, err := store.ReportingTo(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, a.ID, *mgr)

	_, found, err = store.ReportingTo(ctx, 99999)
	require.NoError(t, err)
	assert.False(t, found)

	rows, err := store.SubtreeClosure(ctx, root.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, directory.ClosureRow{ID: a.ID, ReportingToID: root.ID, Depth: 1}, rows[0])
	assert.Equal(t, 3, rows[2].Depth)

	rows, err = store.SubtreeClosure(ctx, root.ID, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "depth bound")

	err = store.SetReportingTo(ctx, 99999, nil, root.ID)
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))
}

func TestUsersJuniorTo(t *testing.T) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	hq := testutil.Branch(t, db, "HQ")
	senior := testutil.Role(t, db, "senior", 2)
	junior := testutil.Role(t, db, "junior", 7)

	testutil.LoginUser(t, db, "s", "pw", senior, hq)
	j := testutil.LoginUser(t, db, "j", "pw", junior, hq)
	testutil.User(t, db, "no-login", junior, hq)

	users, err := store.UsersJuniorTo(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, j.ID, users[0].ID)
}
