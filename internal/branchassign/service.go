// Package branchassign manages the extra branches a user may act on beyond
// their primary branch.
package branchassign

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

// Result partitions the requested branch ids by outcome. Assign fills
// Assigned and AlreadyAssigned, Remove fills Removed and AlreadyRemoved.
type Result struct {
	UserID          uint   `json:"user_id"`
	Assigned        []uint `json:"assigned,omitempty"`
	AlreadyAssigned []uint `json:"already_assigned,omitempty"`
	Removed         []uint `json:"removed,omitempty"`
	AlreadyRemoved  []uint `json:"already_removed,omitempty"`
	NotFound        []uint `json:"not_found"`
}

type Service struct {
	store *directory.Store
	audit *audit.Recorder
	log   *zap.Logger
}

func NewService(store *directory.Store, rec *audit.Recorder, log *zap.Logger) *Service {
	return &Service{store: store, audit: rec, log: log}
}

// AssignBranches adds the listed branches to the user's assigned set. Only
// branches not yet assigned are written and logged, so repeating a call is a
// no-op.
func (s *Service) AssignBranches(ctx context.Context, userID uint, branchIDs []uint, actorID uint) (*Result, error) {
	return s.apply(ctx, userID, branchIDs, actorID, models.BranchAssign)
}

// RemoveBranches drops the listed branches from the user's assigned set.
func (s *Service) RemoveBranches(ctx context.Context, userID uint, branchIDs []uint, actorID uint) (*Result, error) {
	return s.apply(ctx, userID, branchIDs, actorID, models.BranchRemove)
}

func (s *Service) apply(ctx context.Context, userID uint, branchIDs []uint, actorID uint, action models.BranchAssignmentAction) (*Result, error) {
	ids := dedupe(branchIDs)
	if len(ids) == 0 {
		return nil, apperror.New(apperror.InvalidInput, "branch_ids must not be empty")
	}

	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.BranchesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	known := make(map[uint]models.Branch, len(existing))
	for _, b := range existing {
		known[b.ID] = b
	}
	current := make(map[uint]struct{}, len(user.AssignedBranches))
	for _, b := range user.AssignedBranches {
		current[b.ID] = struct{}{}
	}

	res := &Result{UserID: user.ID, NotFound: []uint{}}
	var delta []models.Branch
	for _, id := range ids {
		b, ok := known[id]
		if !ok {
			res.NotFound = append(res.NotFound, id)
			continue
		}
		_, has := current[id]
		switch {
		case action == models.BranchAssign && has:
			res.AlreadyAssigned = append(res.AlreadyAssigned, id)
		case action == models.BranchAssign:
			res.Assigned = append(res.Assigned, id)
			delta = append(delta, b)
		case has:
			res.Removed = append(res.Removed, id)
			delta = append(delta, b)
		default:
			res.AlreadyRemoved = append(res.AlreadyRemoved, id)
		}
	}
	if action == models.BranchAssign {
		res.Assigned, res.AlreadyAssigned = nonNil(res.Assigned), nonNil(res.AlreadyAssigned)
	} else {
		res.Removed, res.AlreadyRemoved = nonNil(res.Removed), nonNil(res.AlreadyRemoved)
	}

	if len(delta) == 0 {
		return res, nil
	}

	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assoc := tx.Model(&models.User{ID: user.ID}).Association("AssignedBranches")
		if action == models.BranchAssign {
			if err := assoc.Append(delta); err != nil {
				return err
			}
		} else if err := assoc.Delete(delta); err != nil {
			return err
		}

		logs := make([]models.BranchAssignmentLog, 0, len(delta))
		for _, b := range delta {
			logs = append(logs, models.BranchAssignmentLog{
				UserID:      user.ID,
				BranchID:    b.ID,
				Action:      action,
				PerformedBy: actorID,
			})
		}
		return tx.Create(&logs).Error
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	changed := make([]uint, 0, len(delta))
	for _, b := range delta {
		changed = append(changed, b.ID)
	}
	s.log.Info("branch assignment changed",
		zap.Uint("user_id", user.ID), zap.String("action", string(action)), zap.Uints("branch_ids", changed))

	var actorName string
	if actor, err := s.store.UserWithDeleted(ctx, actorID); err == nil {
		actorName = actor.Name
	}
	if err := s.audit.Write(ctx, audit.LogOptions{
		UserID:      actorID,
		UserName:    actorName,
		BranchID:    &user.BranchID,
		EntityType:  "user_branches",
		EntityID:    user.ID,
		Action:      models.AuditActionUpdate,
		Description: fmt.Sprintf("%s %d branches", action, len(changed)),
		After:       map[string]any{"action": action, "branch_ids": changed},
	}); err != nil {
		return nil, apperror.Storage(err)
	}
	return res, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func nonNil(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}
	return ids
}
