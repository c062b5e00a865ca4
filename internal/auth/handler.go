package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/session"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
}

type LogoutRequest struct {
	DeviceID string `json:"device_id"`
}

type LogoutUsersRequest struct {
	UserIDs []uint `json:"user_ids"`
}

// ----------------------------------------
// LOGIN & TOKENS
// ----------------------------------------

// POST /api/auth/login
func LoginHandler(s *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		res, err := s.Authenticate(c.UserContext(), session.LoginInput{
			Username:  body.Username,
			Password:  body.Password,
			DeviceID:  strings.TrimSpace(body.DeviceID),
			IP:        c.IP(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		})
		if err != nil {
			return err
		}

		if res.AlreadyLoggedIn {
			return c.JSON(fiber.Map{
				"message":           "Already logged in on this device",
				"already_logged_in": true,
				"access_token":      res.AccessToken,
				"refresh_token":     res.RefreshToken,
				"device_id":         res.DeviceID,
				"user":              res.User,
			})
		}
		return c.JSON(res)
	}
}

// POST /api/auth/refresh
func RefreshHandler(s *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RefreshRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		res, err := s.RefreshAccessCredential(c.UserContext(), body.RefreshToken, body.DeviceID)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// ----------------------------------------
// LOGOUT
// ----------------------------------------

// POST /api/auth/logout
// Ends the caller's own session. device_id defaults to the device the access
// credential was issued for.
func LogoutHandler(s *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := ActorID(c)
		if err != nil {
			return err
		}

		var body LogoutRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return apperror.New(apperror.InvalidInput, "Invalid request body")
			}
		}
		deviceID := strings.TrimSpace(body.DeviceID)
		if deviceID == "" {
			deviceID, _ = c.Locals(CtxDeviceIDKey).(string)
		}

		res, err := s.EndSession(c.UserContext(), session.EndSessionInput{UserID: actorID, DeviceID: deviceID})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message":      "Logged out",
			"is_logged_in": res.IsLoggedIn,
		})
	}
}

// POST /api/auth/logout-all
func LogoutAllHandler(s *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := ActorID(c)
		if err != nil {
			return err
		}
		res, err := s.LogoutAllDevices(c.UserContext(), actorID)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// POST /api/auth/logout-users
func LogoutUsersHandler(s *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := ActorID(c)
		if err != nil {
			return err
		}
		var body LogoutUsersRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}
		res, err := s.LogoutUsers(c.UserContext(), actorID, body.UserIDs)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// POST /api/auth/logout-subordinates
func LogoutSubordinatesHandler(s *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := ActorID(c)
		if err != nil {
			return err
		}
		res, err := s.LogoutSubordinates(c.UserContext(), actorID)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// ----------------------------------------
// ME
// ----------------------------------------

// GET /api/auth/me
func MeHandler(store *directory.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := ActorID(c)
		if err != nil {
			return err
		}
		user, err := store.User(c.UserContext(), actorID)
		if err != nil {
			return err
		}

		response := fiber.Map{
			"user":      user.Projection(),
			"device_id": c.Locals(CtxDeviceIDKey),
		}
		if branch, err := store.Branch(c.UserContext(), user.BranchID); err == nil {
			response["branch"] = fiber.Map{
				"id":      branch.ID,
				"name":    branch.Name,
				"address": branch.Address,
				"phone":   branch.Phone,
			}
		}
		assigned := make([]uint, 0, len(user.AssignedBranches))
		for _, b := range user.AssignedBranches {
			assigned = append(assigned, b.ID)
		}
		response["assigned_branch_ids"] = assigned
		if user.Role != nil {
			response["permissions"] = user.Role.Permissions
		}
		return c.JSON(response)
	}
}
