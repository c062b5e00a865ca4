package admin

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/session"
)

// UserAdmin groups the user lifecycle handlers and what they share.
type UserAdmin struct {
	Store    *directory.Store
	Sessions *session.Service
	Audit    *audit.Recorder
	// Actors at or above this rank may place users in any branch.
	BranchScopeExemptRank int
	// bcrypt cost for new credentials; zero means bcrypt.DefaultCost.
	HashCost int
}

type RegisterUserRequest struct {
	Name     string  `json:"name"`
	Username *string `json:"username"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Password string  `json:"password"`
	RoleID   uint    `json:"role_id"`
	BranchID uint    `json:"branch_id"`
	CanLogin bool    `json:"can_login"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	RoleID   *uint   `json:"role_id"`
	BranchID *uint   `json:"branch_id"`
	IsActive *bool   `json:"is_active"`
	CanLogin *bool   `json:"can_login"`
	Password *string `json:"password"`
}

// allowBranch enforces that the actor may act on branchID.
func (a *UserAdmin) allowBranch(actor *models.User, branchID uint) error {
	if actor.Role != nil && actor.Role.Rank <= a.BranchScopeExemptRank {
		return nil
	}
	if actor.CanActOnBranch(branchID) {
		return nil
	}
	return apperror.New(apperror.BranchScopeViolation, "You cannot manage users of this branch").
		With("branch_id", branchID)
}

func (a *UserAdmin) actor(c *fiber.Ctx) (*models.User, error) {
	actorID, err := auth.ActorID(c)
	if err != nil {
		return nil, err
	}
	return a.Store.User(c.UserContext(), actorID)
}

func (a *UserAdmin) hash(password string) (string, error) {
	cost := a.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ----------------------------------------
// REGISTER
// ----------------------------------------

// POST /api/admin/users
func (a *UserAdmin) RegisterHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := a.actor(c)
		if err != nil {
			return err
		}

		var body RegisterUserRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}
		body.Name = strings.TrimSpace(body.Name)
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		if body.Username != nil {
			u := strings.TrimSpace(*body.Username)
			body.Username = &u
			if u == "" {
				body.Username = nil
			}
		}
		if body.Name == "" || body.RoleID == 0 || body.BranchID == 0 {
			return apperror.New(apperror.InvalidInput, "name, role_id and branch_id are required")
		}
		if body.CanLogin && (body.Username == nil || body.Password == "") {
			return apperror.New(apperror.InvalidInput, "username and password are required when login is enabled")
		}

		ctx := c.UserContext()
		if _, err := a.Store.Role(ctx, body.RoleID); err != nil {
			return err
		}
		if _, err := a.Store.Branch(ctx, body.BranchID); err != nil {
			return err
		}
		if err := a.allowBranch(actor, body.BranchID); err != nil {
			return err
		}
		if body.Username != nil {
			// soft deleted users keep their username
			var taken int64
			if err := a.Store.DB().WithContext(ctx).Unscoped().Model(&models.User{}).
				Where("username = ?", *body.Username).Count(&taken).Error; err != nil {
				return apperror.Storage(err)
			}
			if taken > 0 {
				return apperror.New(apperror.Conflict, "Username is already taken")
			}
		}

		user := models.User{
			ExternalID: uuid.NewString(),
			Name:       body.Name,
			Username:   body.Username,
			Email:      body.Email,
			Phone:      strings.TrimSpace(body.Phone),
			RoleID:     body.RoleID,
			BranchID:   body.BranchID,
			CanLogin:   body.CanLogin,
			IsActive:   true,
			CreatedBy:  &actor.ID,
			UpdatedBy:  &actor.ID,
		}

		var passwordHash string
		if body.CanLogin {
			if passwordHash, err = a.hash(body.Password); err != nil {
				return apperror.Storage(err)
			}
		}

		err = a.Store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			if !body.CanLogin {
				return nil
			}
			return tx.Create(&models.LoginCredential{
				UserID:       user.ID,
				PasswordHash: passwordHash,
				Devices:      models.DeviceRegistry{},
			}).Error
		})
		if err != nil {
			return apperror.Storage(err)
		}

		if err := record(c, a.Store, a.Audit, "user", user.ID, &user.BranchID, models.AuditActionCreate, "user registered", nil, user.Projection()); err != nil {
			return err
		}

		created, err := a.Store.User(ctx, user.ID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(created.Projection())
	}
}

// ----------------------------------------
// LIST / GET / UPDATE
// ----------------------------------------

// GET /api/admin/users?branch_id=1&include_deleted=true
func (a *UserAdmin) ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := a.Store.DB().WithContext(c.UserContext()).Preload("Role").Order("id")
		if c.QueryBool("include_deleted") {
			q = q.Unscoped()
		} else {
			q = q.Where("is_deleted = ?", false)
		}
		if bid := c.QueryInt("branch_id"); bid > 0 {
			q = q.Where("branch_id = ?", bid)
		}

		var users []models.User
		if err := q.Find(&users).Error; err != nil {
			return apperror.Storage(err)
		}
		res := make([]models.UserProjection, 0, len(users))
		for i := range users {
			res = append(res, users[i].Projection())
		}
		return c.JSON(res)
	}
}

// GET /api/admin/users/:id
func (a *UserAdmin) GetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		user, err := a.Store.User(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}

// PUT /api/admin/users/:id
// Disabling login removes the credential; enabling it needs a password.
func (a *UserAdmin) UpdateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := a.actor(c)
		if err != nil {
			return err
		}
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		ctx := c.UserContext()
		user, err := a.Store.User(ctx, id)
		if err != nil {
			return err
		}
		before := user.Projection()

		var body UpdateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		// the actor must reach the user's current branch as well as any new one
		if err := a.allowBranch(actor, user.BranchID); err != nil {
			return err
		}

		updates := map[string]any{"updated_by": actor.ID}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperror.New(apperror.InvalidInput, "Name must not be empty")
			}
			updates["name"] = name
		}
		if body.Email != nil {
			updates["email"] = strings.ToLower(strings.TrimSpace(*body.Email))
		}
		if body.Phone != nil {
			updates["phone"] = strings.TrimSpace(*body.Phone)
		}
		if body.RoleID != nil {
			if _, err := a.Store.Role(ctx, *body.RoleID); err != nil {
				return err
			}
			updates["role_id"] = *body.RoleID
		}
		if body.BranchID != nil {
			if _, err := a.Store.Branch(ctx, *body.BranchID); err != nil {
				return err
			}
			if err := a.allowBranch(actor, *body.BranchID); err != nil {
				return err
			}
			updates["branch_id"] = *body.BranchID
		}
		if body.IsActive != nil {
			updates["is_active"] = *body.IsActive
		}

		enable := body.CanLogin != nil && *body.CanLogin && !user.CanLogin
		disable := body.CanLogin != nil && !*body.CanLogin && user.CanLogin
		if enable && (user.Username == nil || body.Password == nil || *body.Password == "") {
			return apperror.New(apperror.InvalidInput, "A username and password are required to enable login")
		}
		if body.CanLogin != nil {
			updates["can_login"] = *body.CanLogin
		}

		var passwordHash string
		if body.Password != nil && *body.Password != "" {
			if passwordHash, err = a.hash(*body.Password); err != nil {
				return apperror.Storage(err)
			}
		}

		err = a.Store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
				return err
			}
			switch {
			case disable:
				return tx.Where("user_id = ?", user.ID).Delete(&models.LoginCredential{}).Error
			case enable:
				return tx.Create(&models.LoginCredential{
					UserID:       user.ID,
					PasswordHash: passwordHash,
					Devices:      models.DeviceRegistry{},
				}).Error
			case passwordHash != "" && user.CanLogin:
				// a password change also ends every session
				return tx.Model(&models.LoginCredential{}).Where("user_id = ?", user.ID).
					Updates(map[string]any{
						"password_hash": passwordHash,
						"devices":       models.DeviceRegistry{},
						"is_logged_in":  false,
						"version":       gorm.Expr("version + 1"),
					}).Error
			}
			return nil
		})
		if err != nil {
			return apperror.Storage(err)
		}

		updated, err := a.Store.User(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := record(c, a.Store, a.Audit, "user", user.ID, &updated.BranchID, models.AuditActionUpdate, "user updated", before, updated.Projection()); err != nil {
			return err
		}
		return c.JSON(updated.Projection())
	}
}

// ----------------------------------------
// SOFT DELETE / RESTORE
// ----------------------------------------

// DELETE /api/admin/users/:id
// Ends every session, removes the credential and flags the user deleted.
func (a *UserAdmin) DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := a.actor(c)
		if err != nil {
			return err
		}
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		if id == actor.ID {
			return apperror.New(apperror.InvalidOperation, "You cannot delete your own account")
		}
		ctx := c.UserContext()
		user, err := a.Store.User(ctx, id)
		if err != nil {
			return err
		}
		if err := a.allowBranch(actor, user.BranchID); err != nil {
			return err
		}

		if _, err := a.Sessions.LogoutAllDevices(ctx, user.ID); err != nil && !apperror.IsKind(err, apperror.NotFound) {
			return err
		}

		now := time.Now()
		err = a.Store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", user.ID).Delete(&models.LoginCredential{}).Error; err != nil {
				return err
			}
			return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
				"is_deleted": true,
				"deleted_at": now,
				"deleted_by": actor.ID,
				"can_login":  false,
				"updated_by": actor.ID,
			}).Error
		})
		if err != nil {
			return apperror.Storage(err)
		}

		if err := record(c, a.Store, a.Audit, "user", user.ID, &user.BranchID, models.AuditActionDelete, "user deleted", user.Projection(), nil); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/admin/users/:id/restore
// The restored user comes back without login; it must be re-enabled with a
// new password.
func (a *UserAdmin) RestoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := a.actor(c)
		if err != nil {
			return err
		}
		id, err := auth.ParamID(c, "id")
		if err != nil {
			return err
		}
		ctx := c.UserContext()
		user, err := a.Store.UserWithDeleted(ctx, id)
		if err != nil {
			return err
		}
		if !user.IsDeleted && !user.DeletedAt.Valid {
			return apperror.New(apperror.InvalidOperation, "User is not deleted")
		}
		if err := a.allowBranch(actor, user.BranchID); err != nil {
			return err
		}

		res := a.Store.DB().WithContext(ctx).Unscoped().Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]any{
				"is_deleted": false,
				"deleted_at": nil,
				"deleted_by": nil,
				"updated_by": actor.ID,
			})
		if res.Error != nil {
			return apperror.Storage(res.Error)
		}

		restored, err := a.Store.User(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := record(c, a.Store, a.Audit, "user", user.ID, &user.BranchID, models.AuditActionRestore, "user restored", nil, restored.Projection()); err != nil {
			return err
		}
		return c.JSON(restored.Projection())
	}
}
