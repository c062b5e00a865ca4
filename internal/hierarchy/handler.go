package hierarchy

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
)

type AssignReportingRequest struct {
	ManagerID *uint `json:"manager_id"`
}

// PUT /api/users/:id/reporting
func AssignReportingHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := auth.ActorID(c)
		if err != nil {
			return err
		}
		targetID, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}

		var body AssignReportingRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		user, err := e.AssignReportingAuthority(c.UserContext(), targetID, body.ManagerID, actorID)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}

// DELETE /api/users/:id/reporting
func RemoveReportingHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := auth.ActorID(c)
		if err != nil {
			return err
		}
		targetID, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}

		user, err := e.RemoveReportingAuthority(c.UserContext(), targetID, actorID)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}

// GET /api/users/:id/ancestors
func AncestorsHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		chain, err := e.AncestorChain(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"user_id":   userID,
			"ancestors": chain,
		})
	}
}

// GET /api/users/:id/subordinates
func SubordinatesHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		tree, err := e.SubordinateTree(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(tree)
	}
}
