package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type Skipped struct {
	UserID uint   `json:"user_id"`
	Reason string `json:"reason"`
}

type BulkResult struct {
	Terminated     []uint    `json:"terminated"`
	SessionsClosed int       `json:"sessions_closed"`
	Skipped        []Skipped `json:"skipped"`
}

// terminate closes every open session of userID and clears every stored
// refresh credential.
func (s *Service) terminate(ctx context.Context, userID uint) (int, error) {
	closed := 0
	err := s.mutate(ctx, userID, func(c *models.LoginCredential) (bool, error) {
		closed = closeAll(c.Devices, s.now())
		c.IsLoggedIn = false
		return true, nil
	})
	return closed, err
}

// LogoutAllDevices ends every session of the user.
func (s *Service) LogoutAllDevices(ctx context.Context, userID uint) (*BulkResult, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	closed, err := s.terminate(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.recordBulk(ctx, user, []uint{user.ID}, "logout all devices"); err != nil {
		return nil, err
	}
	return &BulkResult{Terminated: []uint{user.ID}, SessionsClosed: closed, Skipped: []Skipped{}}, nil
}

// LogoutUsers ends every session of the selected users. Only users whose
// role is strictly junior to the actor's are eligible; the actor is always
// skipped.
func (s *Service) LogoutUsers(ctx context.Context, actorID uint, userIDs []uint) (*BulkResult, error) {
	if len(userIDs) == 0 {
		return nil, apperror.New(apperror.InvalidInput, "user_ids must not be empty")
	}
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Terminated: []uint{}, Skipped: []Skipped{}}
	seen := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if id == actor.ID {
			res.Skipped = append(res.Skipped, Skipped{UserID: id, Reason: "own session cannot be terminated here"})
			continue
		}
		target, err := s.store.User(ctx, id)
		if apperror.IsKind(err, apperror.NotFound) {
			res.Skipped = append(res.Skipped, Skipped{UserID: id, Reason: "user not found"})
			continue
		}
		if err != nil {
			return nil, err
		}
		if target.Role == nil || !actor.Role.SeniorTo(target.Role) {
			res.Skipped = append(res.Skipped, Skipped{UserID: id, Reason: "user is not junior to you"})
			continue
		}
		if err := s.terminateInto(ctx, res, id); err != nil {
			return nil, err
		}
	}

	if err := s.recordBulk(ctx, actor, res.Terminated, "logout selected users"); err != nil {
		return nil, err
	}
	return res, nil
}

// LogoutSubordinates ends the sessions of every login enabled user whose role
// rank is strictly junior to the actor's. Eligibility is decided by rank
// alone, not by the reporting hierarchy.
func (s *Service) LogoutSubordinates(ctx context.Context, actorID uint) (*BulkResult, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	juniors, err := s.store.UsersJuniorTo(ctx, actor.Role.Rank)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Terminated: []uint{}, Skipped: []Skipped{}}
	for _, u := range juniors {
		if u.ID == actor.ID {
			continue
		}
		if err := s.terminateInto(ctx, res, u.ID); err != nil {
			return nil, err
		}
	}

	if err := s.recordBulk(ctx, actor, res.Terminated, "logout subordinates"); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) terminateInto(ctx context.Context, res *BulkResult, userID uint) error {
	closed, err := s.terminate(ctx, userID)
	if apperror.IsKind(err, apperror.NotFound) {
		res.Skipped = append(res.Skipped, Skipped{UserID: userID, Reason: "user has no login credential"})
		return nil
	}
	if err != nil {
		return err
	}
	res.Terminated = append(res.Terminated, userID)
	res.SessionsClosed += closed
	return nil
}

func (s *Service) actor(ctx context.Context, actorID uint) (*models.User, error) {
	actor, err := s.store.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == nil {
		return nil, apperror.New(apperror.Forbidden, "acting user has no role")
	}
	return actor, nil
}

func (s *Service) recordBulk(ctx context.Context, actor *models.User, targets []uint, what string) error {
	s.log.Info("bulk session termination",
		zap.Uint("actor_id", actor.ID), zap.String("kind", what), zap.Int("users", len(targets)))
	if err := s.audit.Write(ctx, audit.LogOptions{
		UserID:      actor.ID,
		UserName:    actor.Name,
		BranchID:    &actor.BranchID,
		EntityType:  "credential",
		EntityID:    actor.ID,
		Action:      models.AuditActionLogout,
		Description: fmt.Sprintf("%s (%d users)", what, len(targets)),
		After:       map[string]any{"user_ids": targets},
	}); err != nil {
		return apperror.Storage(err)
	}
	return nil
}
