package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/token"
)

const (
	CtxUserIDKey   = "user_id"
	CtxRoleIDKey   = "role_id"
	CtxBranchIDKey = "branch_id"
	CtxDeviceIDKey = "device_id"
)

// JWTMiddleware verifies the bearer access credential and stores the actor
// identity in the request locals.
func JWTMiddleware(issuer *token.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization format must be 'Bearer <token>'")
		}

		claims, err := issuer.ParseAccess(strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxRoleIDKey, claims.RoleID)
		c.Locals(CtxBranchIDKey, claims.BranchID)
		c.Locals(CtxDeviceIDKey, claims.DeviceID)

		return c.Next()
	}
}

// ActorID returns the authenticated user id set by JWTMiddleware.
func ActorID(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok || id == 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "User identity missing")
	}
	return id, nil
}

// RequirePermission lets the request through only when the actor's current
// role grants action. The role is read from the store on every request so a
// revoked grant takes effect before the access credential expires.
func RequirePermission(store *directory.Store, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := ActorID(c)
		if err != nil {
			return err
		}

		actor, err := store.User(c.UserContext(), actorID)
		if err != nil {
			if apperror.IsKind(err, apperror.NotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "User no longer exists")
			}
			return err
		}
		if !actor.IsActive || !actor.Role.Allows(action) {
			return apperror.Newf(apperror.Forbidden, "Permission %q is required", action).
				With("permission", action)
		}
		return c.Next()
	}
}

// ParamID parses a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, apperror.Newf(apperror.InvalidInput, "Invalid %s", name)
	}
	return uint(id), nil
}
