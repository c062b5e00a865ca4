package branchassign_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
	"github.com/jsyadav90/abcd-backend2/internal/branchassign"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/testutil"
	"github.com/jsyadav90/abcd-backend2/internal/token"
)

func TestAssignAndRemoveAreIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	svc := branchassign.NewService(store, audit.NewRecorder(zap.NewNop(), audit.NewDBSink(db)), zap.NewNop())
	ctx := context.Background()

	hq := testutil.Branch(t, db, "HQ")
	north := testutil.Branch(t, db, "North")
	south := testutil.Branch(t, db, "South")
	role := testutil.Role(t, db, "staff", 10)
	admin := testutil.User(t, db, "admin", role, hq)
	u := testutil.User(t, db, "u", role, hq)

	res, err := svc.AssignBranches(ctx, u.ID, []uint{north.ID, south.ID, north.ID, 777}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{north.ID, south.ID}, res.Assigned)
	assert.Empty(t, res.AlreadyAssigned)
	assert.Equal(t, []uint{777}, res.NotFound)

	res, err = svc.AssignBranches(ctx, u.ID, []uint{north.ID}, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Assigned)
	assert.Equal(t, []uint{north.ID}, res.AlreadyAssigned)

	loaded, err := store.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.AssignedBranches, 2)
	assert.True(t, loaded.CanActOnBranch(south.ID))

	res, err = svc.RemoveBranches(ctx, u.ID, []uint{south.ID}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{south.ID}, res.Removed)

	res, err = svc.RemoveBranches(ctx, u.ID, []uint{south.ID}, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Equal(t, []uint{south.ID}, res.AlreadyRemoved)

	var logs []models.BranchAssignmentLog
	require.NoError(t, db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 3, "one row per applied change only")
	assert.Equal(t, models.BranchRemove, logs[2].Action)
	assert.Equal(t, admin.ID, logs[2].PerformedBy)
}

func TestAssignRejections(t *testing.T) {
	db := testutil.NewDB(t)
	svc := branchassign.NewService(directory.NewStore(db), audit.NewRecorder(zap.NewNop(), audit.NewDBSink(db)), zap.NewNop())
	ctx := context.Background()
	hq := testutil.Branch(t, db, "HQ")
	u := testutil.User(t, db, "u", testutil.Role(t, db, "staff", 10), hq)

	_, err := svc.AssignBranches(ctx, u.ID, nil, u.ID)
	assert.Equal(t, apperror.InvalidInput, apperror.KindOf(err))

	_, err = svc.AssignBranches(ctx, 9999, []uint{hq.ID}, u.ID)
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", u.ID).Update("is_deleted", true).Error)
	_, err = svc.RemoveBranches(ctx, u.ID, []uint{hq.ID}, u.ID)
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))
}

func TestBranchesHandler(t *testing.T) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	svc := branchassign.NewService(store, audit.NewRecorder(zap.NewNop(), audit.NewDBSink(db)), zap.NewNop())
	issuer := token.NewIssuer("access-secret-access-secret-0000", "refresh-secret-refresh-secret-00", time.Hour, time.Hour)

	app := fiber.New(fiber.Config{ErrorHandler: apperror.FiberErrorHandler(zap.NewNop())})
	app.Post("/api/users/:id/branches", auth.JWTMiddleware(issuer), branchassign.BranchesHandler(svc))

	hq := testutil.Branch(t, db, "HQ")
	north := testutil.Branch(t, db, "North")
	u := testutil.User(t, db, "u", testutil.Role(t, db, "staff", 10), hq)
	tok, err := issuer.Access(token.Subject{UserID: u.ID, RoleID: u.RoleID, BranchID: hq.ID, DeviceID: "d"})
	require.NoError(t, err)

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/users/%d/branches", u.ID), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post(fmt.Sprintf(`{"action":"assign","branch_ids":[%d]}`, north.ID)))
	assert.Equal(t, http.StatusOK, post(fmt.Sprintf(`{"action":"REMOVE","branch_ids":[%d]}`, north.ID)))
	assert.Equal(t, http.StatusBadRequest, post(fmt.Sprintf(`{"action":"toggle","branch_ids":[%d]}`, north.ID)))
	assert.Equal(t, http.StatusBadRequest, post(`{"action":"assign","branch_ids":[]}`))
}
