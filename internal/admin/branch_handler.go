package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type BranchResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type CreateBranchRequest struct {
	Name    string  `json:"name"`
	Code    string  `json:"code"`
	Address string  `json:"address"`
	Phone   *string `json:"phone"` // optional
}

type UpdateBranchRequest struct {
	Name     *string `json:"name"`
	Code     *string `json:"code"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
	IsActive *bool   `json:"is_active"`
}

func toBranchResponse(b models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Code:      b.Code,
		Address:   b.Address,
		Phone:     b.Phone,
		IsActive:  b.IsActive,
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// BRANCH CRUD
// ----------------------------------------

func CreateBranchHandler(store *directory.Store, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return apperror.New(apperror.InvalidInput, "Branch name must not be empty")
		}

		db := store.DB().WithContext(c.UserContext())
		var exists int64
		if err := db.Model(&models.Branch{}).Where("name = ?", body.Name).Count(&exists).Error; err != nil {
			return apperror.Storage(err)
		}
		if exists > 0 {
			return apperror.New(apperror.Conflict, "A branch with this name already exists")
		}

		branch := models.Branch{
			Name:     body.Name,
			Code:     strings.TrimSpace(body.Code),
			Address:  body.Address,
			IsActive: true,
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := db.Create(&branch).Error; err != nil {
			return apperror.Storage(err)
		}
		if err := record(c, store, rec, "branch", branch.ID, &branch.ID, models.AuditActionCreate, "branch created", nil, branch); err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(toBranchResponse(branch))
	}
}

func ListBranchesHandler(store *directory.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var branches []models.Branch
		if err := store.DB().WithContext(c.UserContext()).Order("id").Find(&branches).Error; err != nil {
			return apperror.Storage(err)
		}

		res := make([]BranchResponse, 0, len(branches))
		for _, b := range branches {
			res = append(res, toBranchResponse(b))
		}
		return c.JSON(res)
	}
}

func GetBranchHandler(store *directory.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		branch, err := store.Branch(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toBranchResponse(*branch))
	}
}

func UpdateBranchHandler(store *directory.Store, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		branch, err := store.Branch(c.UserContext(), id)
		if err != nil {
			return err
		}
		before := *branch

		var body UpdateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperror.New(apperror.InvalidInput, "Branch name must not be empty")
			}
			branch.Name = name
		}
		if body.Code != nil {
			branch.Code = strings.TrimSpace(*body.Code)
		}
		if body.Address != nil {
			branch.Address = *body.Address
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.IsActive != nil {
			branch.IsActive = *body.IsActive
		}

		if err := store.DB().WithContext(c.UserContext()).Save(branch).Error; err != nil {
			return apperror.Storage(err)
		}
		if err := record(c, store, rec, "branch", branch.ID, &branch.ID, models.AuditActionUpdate, "branch updated", before, branch); err != nil {
			return err
		}
		return c.JSON(toBranchResponse(*branch))
	}
}

// DeleteBranchHandler refuses to delete a branch that is still some user's
// primary branch.
func DeleteBranchHandler(store *directory.Store, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		branch, err := store.Branch(c.UserContext(), id)
		if err != nil {
			return err
		}

		err = store.DB().WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var members int64
			if err := tx.Unscoped().Model(&models.User{}).Where("branch_id = ?", id).Count(&members).Error; err != nil {
				return err
			}
			if members > 0 {
				return apperror.Newf(apperror.InvalidOperation, "Branch is the primary branch of %d users", members).
					With("users", members)
			}
			if err := tx.Exec("DELETE FROM user_assigned_branches WHERE branch_id = ?", id).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Branch{}, "id = ?", id).Error
		})
		var ae *apperror.Error
		if errors.As(err, &ae) {
			return ae
		}
		if err != nil {
			return apperror.Storage(err)
		}

		if err := record(c, store, rec, "branch", id, &id, models.AuditActionDelete, "branch deleted", branch, nil); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// record writes an activity entry attributed to the request's actor.
func record(c *fiber.Ctx, store *directory.Store, rec *audit.Recorder, entity string, entityID uint, branchID *uint, action models.AuditAction, desc string, before, after any) error {
	actorID, _ := auth.ActorID(c)
	var actorName string
	if actorID != 0 {
		if actor, err := store.UserWithDeleted(c.UserContext(), actorID); err == nil {
			actorName = actor.Name
		}
	}
	if err := rec.Write(c.UserContext(), audit.LogOptions{
		UserID:      actorID,
		UserName:    actorName,
		BranchID:    branchID,
		EntityType:  entity,
		EntityID:    entityID,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	}); err != nil {
		return apperror.Storage(err)
	}
	return nil
}
