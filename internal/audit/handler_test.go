package audit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/testutil"
)

func TestListAuditLogsHandler(t *testing.T) {
	db := testutil.NewDB(t)
	sink := audit.NewDBSink(db)
	rec := audit.NewRecorder(zap.NewNop(), sink)
	ctx := context.Background()
	branch := uint(4)

	require.NoError(t, rec.Write(ctx, audit.LogOptions{UserID: 1, BranchID: &branch, EntityType: "user", EntityID: 5, Action: models.AuditActionCreate}))
	require.NoError(t, rec.Write(ctx, audit.LogOptions{UserID: 1, EntityType: "branch", EntityID: 4, Action: models.AuditActionUpdate}))

	app := fiber.New()
	app.Get("/audit-logs", audit.ListAuditLogsHandler(sink))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/audit-logs?branch_id=4", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []audit.ActivityLogResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "user", out[0].EntityType)
	assert.Equal(t, models.AuditActionCreate, out[0].Action)
}
