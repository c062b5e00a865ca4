package auth_test

import (
	"encoding/json"
	"io"
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
	"github.com/jsyadav90/abcd-backend2/internal/config"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/session"
	"github.com/jsyadav90/abcd-backend2/internal/testutil"
	"github.com/jsyadav90/abcd-backend2/internal/token"
)

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path, body, bearer string) (int, map[string]any) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func newClient(t *testing.T) (client, *directory.Store) {
	db := testutil.NewDB(t)
	store := directory.NewStore(db)
	issuer := token.NewIssuer("access-secret-access-secret-0000", "refresh-secret-refresh-secret-00", time.Hour, 24*time.Hour)
	svc := session.NewService(store, issuer, audit.NewRecorder(zap.NewNop(), audit.NewDBSink(db)), zap.NewNop(), session.Options{})

	app := fiber.New(fiber.Config{ErrorHandler: apperror.FiberErrorHandler(zap.NewNop())})
	api := app.Group("/api")
	api.Post("/auth/login", auth.LoginHandler(svc))
	api.Post("/auth/refresh", auth.RefreshHandler(svc))

	protected := api.Group("", auth.JWTMiddleware(issuer))
	protected.Get("/auth/me", auth.MeHandler(store))
	protected.Post("/auth/logout", auth.LogoutHandler(svc))
	protected.Post("/auth/logout-all", auth.LogoutAllHandler(svc))
	protected.Post("/auth/logout-subordinates", auth.RequirePermission(store, config.PermSessionsTerminate), auth.LogoutSubordinatesHandler(svc))

	hq := testutil.Branch(t, db, "HQ")
	lead := testutil.Role(t, db, "lead", 2, config.PermSessionsTerminate)
	staff := testutil.Role(t, db, "staff", 10)
	testutil.LoginUser(t, db, "lead", "lead-pass", lead, hq)
	testutil.LoginUser(t, db, "alice", "s3cret", staff, hq)

	return client{t: t, app: app}, store
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	c, _ := newClient(t)

	status, body := c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"s3cret","device_id":"laptop"}`, "")
	require.Equal(t, http.StatusOK, status)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)
	assert.Equal(t, "laptop", body["device_id"])
	assert.Equal(t, "staff", body["user"].(map[string]any)["role"])

	status, body = c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"s3cret","device_id":"laptop"}`, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["already_logged_in"])

	status, body = c.do(http.MethodGet, "/api/auth/me", "", access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "laptop", body["device_id"])
	assert.Equal(t, "HQ", body["branch"].(map[string]any)["name"])

	status, body = c.do(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+refresh+`","device_id":"laptop"}`, "")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["access_token"])

	status, body = c.do(http.MethodPost, "/api/auth/logout", "", access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_logged_in"])

	status, body = c.do(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+refresh+`","device_id":"laptop"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, string(apperror.InvalidToken), body["code"])
}

func TestLoginFailuresSurfaceLockState(t *testing.T) {
	c, _ := newClient(t)

	status, body := c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.EqualValues(t, 2, body["details"].(map[string]any)["attempts_remaining"])

	c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"nope"}`, "")
	status, body = c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, true, body["details"].(map[string]any)["locked"])

	status, body = c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"s3cret"}`, "")
	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, string(apperror.TemporarilyLocked), body["code"])
	assert.NotZero(t, body["details"].(map[string]any)["remaining_seconds"])

	status, _ = c.do(http.MethodPost, "/api/auth/login", `{"username":"ghost","password":"x"}`, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProtectedRoutes(t *testing.T) {
	c, _ := newClient(t)

	status, _ := c.do(http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = c.do(http.MethodGet, "/api/auth/me", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	_, body := c.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"s3cret"}`, "")
	alice := body["access_token"].(string)
	// a refresh credential never passes as an access credential
	status, _ = c.do(http.MethodGet, "/api/auth/me", "", body["refresh_token"].(string))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodPost, "/api/auth/logout-subordinates", "", alice)
	assert.Equal(t, http.StatusForbidden, status)

	_, body = c.do(http.MethodPost, "/api/auth/login", `{"username":"lead","password":"lead-pass"}`, "")
	lead := body["access_token"].(string)
	status, body = c.do(http.MethodPost, "/api/auth/logout-subordinates", "", lead)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["terminated"], 1)

	status, body = c.do(http.MethodPost, "/api/auth/logout-all", "", lead)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["sessions_closed"])
}
