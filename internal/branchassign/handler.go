package branchassign

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type BranchesRequest struct {
	Action    string `json:"action"`
	BranchIDs []uint `json:"branch_ids"`
}

// POST /api/users/:id/branches
// {"action": "assign" | "remove", "branch_ids": [1, 2]}
func BranchesHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, err := auth.ActorID(c)
		if err != nil {
			return err
		}
		userID, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}

		var body BranchesRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		var res *Result
		switch models.BranchAssignmentAction(strings.ToLower(strings.TrimSpace(body.Action))) {
		case models.BranchAssign:
			res, err = s.AssignBranches(c.UserContext(), userID, body.BranchIDs, actorID)
		case models.BranchRemove:
			res, err = s.RemoveBranches(c.UserContext(), userID, body.BranchIDs, actorID)
		default:
			return apperror.New(apperror.InvalidInput, "action must be 'assign' or 'remove'")
		}
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
