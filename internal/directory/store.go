// Package directory is the persistence layer for users, roles, branches and
// login credentials. Every method maps a missing row to apperror.NotFound and
// any other database failure to apperror.StorageError.
package directory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

// ErrVersionConflict reports that a credential changed between read and write.
var ErrVersionConflict = apperror.New(apperror.Conflict, "credential was modified concurrently")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Newf(apperror.NotFound, "%s not found", what)
	}
	return apperror.Storage(err)
}

// ----------------------------------------
// USERS
// ----------------------------------------

// User loads a live (not soft deleted) user with role and assigned branches.
func (s *Store) User(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		Preload("AssignedBranches").
		First(&u, "id = ? AND is_deleted = ?", id, false).Error
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &u, nil
}

// UserWithDeleted loads a user including soft deleted rows.
func (s *Store) UserWithDeleted(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Unscoped().Preload("Role").First(&u, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		First(&u, "username = ? AND is_deleted = ?", username, false).Error
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &u, nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Preload("Role").Where("id IN ? AND is_deleted = ?", ids, false).Find(&users).Error; err != nil {
		return nil, apperror.Storage(err)
	}
	return users, nil
}

// CountUsers counts every user row, soft deleted included. It bounds every
// reporting chain walk.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, apperror.Storage(err)
	}
	return n, nil
}

// ReportingTo returns the stored manager id of user id. found is false when
// the user row does not exist.
func (s *Store) ReportingTo(ctx context.Context, id uint) (managerID *uint, found bool, err error) {
	var row struct {
		ReportingToID *uint
	}
	res := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).
		Select("reporting_to_id").
		Where("id = ?", id).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, false, apperror.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return row.ReportingToID, true, nil
}

func (s *Store) SetReportingTo(ctx context.Context, userID uint, managerID *uint, actorID uint) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"reporting_to_id": managerID, "updated_by": actorID})
	if res.Error != nil {
		return apperror.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.New(apperror.NotFound, "user not found")
	}
	return nil
}

// DirectReports returns the live users whose manager is one of managerIDs.
func (s *Store) DirectReports(ctx context.Context, managerIDs []uint) ([]models.User, error) {
	if len(managerIDs) == 0 {
		return nil, nil
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		Where("reporting_to_id IN ? AND is_deleted = ?", managerIDs, false).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, apperror.Storage(err)
	}
	return users, nil
}

// ClosureRow is one descendant produced by the recursive subtree query.
type ClosureRow struct {
	ID            uint
	ReportingToID uint
	Depth         int
}

// SubtreeClosure computes every live descendant of rootID with its minimum
// depth in a single recursive query. maxDepth bounds the recursion.
func (s *Store) SubtreeClosure(ctx context.Context, rootID uint, maxDepth int) ([]ClosureRow, error) {
	const q = `
WITH RECURSIVE subtree(id, reporting_to_id, depth) AS (
	SELECT id, reporting_to_id, 1
	FROM users
	WHERE reporting_to_id = ? AND is_deleted = ? AND deleted_at IS NULL
	UNION
	SELECT u.id, u.reporting_to_id, s.depth + 1
	FROM users u
	JOIN subtree s ON u.reporting_to_id = s.id
	WHERE u.is_deleted = ? AND u.deleted_at IS NULL AND s.depth < ?
)
SELECT id, reporting_to_id, MIN(depth) AS depth
FROM subtree
WHERE id <> ?
GROUP BY id, reporting_to_id
ORDER BY depth, id`

	var rows []ClosureRow
	if err := s.db.WithContext(ctx).Raw(q, rootID, false, false, maxDepth, rootID).Scan(&rows).Error; err != nil {
		return nil, apperror.Storage(err)
	}
	return rows, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return apperror.Storage(err)
	}
	return nil
}

// ----------------------------------------
// ROLES & BRANCHES
// ----------------------------------------

func (s *Store) Role(ctx context.Context, id uint) (*models.Role, error) {
	var r models.Role
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "role")
	}
	return &r, nil
}

func (s *Store) Branch(ctx context.Context, id uint) (*models.Branch, error) {
	var b models.Branch
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "branch")
	}
	return &b, nil
}

func (s *Store) BranchesByIDs(ctx context.Context, ids []uint) ([]models.Branch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var branches []models.Branch
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&branches).Error; err != nil {
		return nil, apperror.Storage(err)
	}
	return branches, nil
}

// UsersJuniorTo returns live, login enabled users whose role rank is
// strictly greater (more junior) than rank.
func (s *Store) UsersJuniorTo(ctx context.Context, rank int) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("Role").
		Where(`"Role"."rank" > ? AND users.is_deleted = ? AND users.can_login = ?`, rank, false, true).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, apperror.Storage(err)
	}
	return users, nil
}

// ----------------------------------------
// CREDENTIALS
// ----------------------------------------

func (s *Store) CredentialByUserID(ctx context.Context, userID uint) (*models.LoginCredential, error) {
	var c models.LoginCredential
	if err := s.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error; err != nil {
		return nil, notFoundOr(err, "credential")
	}
	if c.Devices == nil {
		c.Devices = models.DeviceRegistry{}
	}
	return &c, nil
}

func (s *Store) CreateCredential(ctx context.Context, c *models.LoginCredential) error {
	if c.Devices == nil {
		c.Devices = models.DeviceRegistry{}
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return apperror.Storage(err)
	}
	return nil
}

// SaveCredential writes c if and only if the stored version still equals
// c.Version, then bumps c.Version. A lost race returns ErrVersionConflict.
func (s *Store) SaveCredential(ctx context.Context, c *models.LoginCredential) error {
	expected := c.Version
	res := s.db.WithContext(ctx).Model(&models.LoginCredential{}).
		Where("id = ? AND version = ?", c.ID, expected).
		Updates(map[string]any{
			"attempts":           c.Attempts,
			"lock_level":         c.LockLevel,
			"lock_until":         c.LockUntil,
			"permanently_locked": c.PermanentlyLocked,
			"devices":            c.Devices,
			"is_logged_in":       c.IsLoggedIn,
			"last_login":         c.LastLogin,
			"version":            expected + 1,
		})
	if res.Error != nil {
		return apperror.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	c.Version = expected + 1
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.LoginCredential{}).Error; err != nil {
		return apperror.Storage(err)
	}
	return nil
}
