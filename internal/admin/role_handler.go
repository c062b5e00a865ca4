package admin

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
	"github.com/jsyadav90/abcd-backend2/internal/config"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type CreateRoleRequest struct {
	Name         string   `json:"name"`
	Rank         int      `json:"rank"`
	EnterpriseID *uint    `json:"enterprise_id"`
	Permissions  []string `json:"permissions"`
}

// ----------------------------------------
// ROLES
// ----------------------------------------

// POST /api/admin/roles
// Every permission must come from the catalog. Names are unique per
// enterprise scope, with a nil enterprise being the global scope.
func CreateRoleHandler(store *directory.Store, rec *audit.Recorder, catalog config.PermissionCatalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRoleRequest
		if err := c.BodyParser(&body); err != nil {
			return apperror.New(apperror.InvalidInput, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return apperror.New(apperror.InvalidInput, "Role name must not be empty")
		}
		if body.Rank < 1 {
			return apperror.New(apperror.InvalidInput, "Rank must be 1 or greater")
		}

		actorID, _ := auth.ActorID(c)
		now := time.Now()
		seen := map[string]struct{}{}
		grants := make([]models.PermissionGrant, 0, len(body.Permissions))
		var unknown []string
		for _, p := range body.Permissions {
			p = strings.TrimSpace(p)
			if _, dup := seen[p]; dup || p == "" {
				continue
			}
			seen[p] = struct{}{}
			if !catalog.Contains(p) {
				unknown = append(unknown, p)
				continue
			}
			grants = append(grants, models.PermissionGrant{Action: p, Granted: true, ModifiedBy: &actorID, ModifiedAt: now})
		}
		if len(unknown) > 0 {
			return apperror.New(apperror.InvalidInput, "Unknown permissions").
				With("unknown", unknown).
				With("allowed", catalog.Actions())
		}

		db := store.DB().WithContext(c.UserContext())
		q := db.Model(&models.Role{}).Where("name = ?", body.Name)
		if body.EnterpriseID == nil {
			q = q.Where("enterprise_id IS NULL")
		} else {
			q = q.Where("enterprise_id = ?", *body.EnterpriseID)
		}
		var exists int64
		if err := q.Count(&exists).Error; err != nil {
			return apperror.Storage(err)
		}
		if exists > 0 {
			return apperror.New(apperror.Conflict, "A role with this name already exists in this scope")
		}

		role := models.Role{
			Name:         body.Name,
			Rank:         body.Rank,
			EnterpriseID: body.EnterpriseID,
			Permissions:  grants,
			IsActive:     true,
		}
		if err := db.Create(&role).Error; err != nil {
			return apperror.Storage(err)
		}
		if err := record(c, store, rec, "role", role.ID, nil, models.AuditActionCreate, "role created", nil, role); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(role)
	}
}

// GET /api/admin/roles
func ListRolesHandler(store *directory.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var roles []models.Role
		if err := store.DB().WithContext(c.UserContext()).Order("rank").Order("id").Find(&roles).Error; err != nil {
			return apperror.Storage(err)
		}
		return c.JSON(roles)
	}
}

// GET /api/admin/permissions
func ListPermissionsHandler(catalog config.PermissionCatalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"permissions": catalog.Actions()})
	}
}
