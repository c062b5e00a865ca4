package audit

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type ActivityLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	BranchID    *uint              `json:"branch_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	BeforeData  string             `json:"before_data"`
	AfterData   string             `json:"after_data"`
}

// GET /api/audit-logs?entity_type=user&entity_id=1&user_id=2&branch_id=1&limit=50
func ListAuditLogsHandler(sink *DBSink) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var f ListFilter

		if v := c.QueryInt("branch_id"); v > 0 {
			bid := uint(v)
			f.BranchID = &bid
		}
		if v := c.QueryInt("user_id"); v > 0 {
			f.UserID = uint(v)
		}
		if v := c.QueryInt("entity_id"); v > 0 {
			f.EntityID = uint(v)
		}
		f.EntityType = c.Query("entity_type")
		f.Limit = c.QueryInt("limit")

		logs, err := sink.List(c.UserContext(), f)
		if err != nil {
			return apperror.Storage(err)
		}

		resp := make([]ActivityLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, ActivityLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				BranchID:    l.BranchID,
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				BeforeData:  l.BeforeData,
				AfterData:   l.AfterData,
			})
		}
		return c.JSON(resp)
	}
}
