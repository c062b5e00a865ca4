// Package hierarchy maintains the reporting relation between users. The
// relation is stored only on the child (users.reporting_to_id) and the engine
// keeps it a forest whose edges point from a junior user to a strictly more
// senior one with an overlapping branch scope.
package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type Options struct {
	// Candidate managers at or above this rank (numerically lower or equal)
	// may manage users outside their branch scope.
	BranchScopeExemptRank int
	// Actors at or above this rank may remove a reporting edge.
	RemoveMaxRank int
	// ClosureQuery selects the single recursive query for subtrees instead of
	// level by level expansion.
	ClosureQuery bool
}

type Engine struct {
	store *directory.Store
	audit *audit.Recorder
	log   *zap.Logger
	opts  Options
}

func NewEngine(store *directory.Store, rec *audit.Recorder, log *zap.Logger, opts Options) *Engine {
	return &Engine{store: store, audit: rec, log: log, opts: opts}
}

// AssignReportingAuthority makes managerID the direct manager of targetID. A
// nil managerID detaches the target without further checks.
func (e *Engine) AssignReportingAuthority(ctx context.Context, targetID uint, managerID *uint, actorID uint) (*models.UserProjection, error) {
	target, err := e.store.User(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if managerID == nil {
		return e.detach(ctx, target, actorID)
	}

	if *managerID == target.ID {
		return nil, apperror.New(apperror.InvalidOperation, "A user cannot report to themselves")
	}

	candidate, err := e.store.User(ctx, *managerID)
	if err != nil {
		return nil, err
	}

	cyclic, err := e.reaches(ctx, candidate.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, apperror.Newf(apperror.CircularReference,
			"%s already reports to %s, directly or indirectly", candidate.Name, target.Name).
			With("manager_id", candidate.ID)
	}

	if target.Role == nil || candidate.Role == nil {
		return nil, apperror.New(apperror.NotFound, "role not found")
	}
	if !candidate.Role.SeniorTo(target.Role) {
		return nil, apperror.Newf(apperror.InsufficientSeniority,
			"Manager role %q (rank %d) must be more senior than %q (rank %d)",
			candidate.Role.Name, candidate.Role.Rank, target.Role.Name, target.Role.Rank).
			With("manager_rank", candidate.Role.Rank).
			With("target_rank", target.Role.Rank)
	}

	if candidate.Role.Rank > e.opts.BranchScopeExemptRank && !candidate.CanActOnBranch(target.BranchID) {
		return nil, apperror.Newf(apperror.BranchScopeViolation,
			"%s has no access to the branch of %s", candidate.Name, target.Name).
			With("branch_id", target.BranchID)
	}

	return e.setManager(ctx, target, &candidate.ID, actorID)
}

// RemoveReportingAuthority clears the manager of userID. Only actors senior
// enough may do it.
func (e *Engine) RemoveReportingAuthority(ctx context.Context, userID, actorID uint) (*models.UserProjection, error) {
	actor, err := e.store.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == nil || actor.Role.Rank > e.opts.RemoveMaxRank {
		return nil, apperror.New(apperror.Forbidden, "Your role is not senior enough to remove reporting authority")
	}
	target, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.detach(ctx, target, actorID)
}

func (e *Engine) detach(ctx context.Context, target *models.User, actorID uint) (*models.UserProjection, error) {
	return e.setManager(ctx, target, nil, actorID)
}

func (e *Engine) setManager(ctx context.Context, target *models.User, managerID *uint, actorID uint) (*models.UserProjection, error) {
	before := target.ReportingToID
	if err := e.store.SetReportingTo(ctx, target.ID, managerID, actorID); err != nil {
		return nil, err
	}
	target.ReportingToID = managerID
	target.UpdatedBy = &actorID

	desc := "reporting authority cleared"
	if managerID != nil {
		desc = fmt.Sprintf("reports to user %d", *managerID)
	}
	e.log.Info("reporting authority changed",
		zap.Uint("user_id", target.ID), zap.Uint("actor_id", actorID), zap.String("change", desc))

	var actorName string
	if actor, err := e.store.UserWithDeleted(ctx, actorID); err == nil {
		actorName = actor.Name
	}
	if err := e.audit.Write(ctx, audit.LogOptions{
		UserID:      actorID,
		UserName:    actorName,
		BranchID:    &target.BranchID,
		EntityType:  "user",
		EntityID:    target.ID,
		Action:      models.AuditActionUpdate,
		Description: desc,
		Before:      map[string]any{"reporting_to_id": before},
		After:       map[string]any{"reporting_to_id": managerID},
	}); err != nil {
		return nil, apperror.Storage(err)
	}

	p := target.Projection()
	return &p, nil
}

// walkBound is the hop limit for any upward walk. A simple path in a forest
// never has more edges than there are users.
func (e *Engine) walkBound(ctx context.Context) (int, error) {
	n, err := e.store.CountUsers(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// reaches walks up from "from" and reports whether target is met. Missing or
// dangling references end the walk.
func (e *Engine) reaches(ctx context.Context, from, target uint) (bool, error) {
	bound, err := e.walkBound(ctx)
	if err != nil {
		return false, err
	}
	cur := from
	for hops := 0; hops < bound; hops++ {
		next, found, err := e.store.ReportingTo(ctx, cur)
		if err != nil {
			return false, err
		}
		if !found || next == nil {
			return false, nil
		}
		if *next == target {
			return true, nil
		}
		cur = *next
	}
	return false, nil
}

// AncestorChain lists the managers of userID from the direct manager up to
// the root. A dangling or soft deleted reference ends the chain.
func (e *Engine) AncestorChain(ctx context.Context, userID uint) ([]models.UserProjection, error) {
	user, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	bound, err := e.walkBound(ctx)
	if err != nil {
		return nil, err
	}

	chain := []models.UserProjection{}
	seen := map[uint]struct{}{user.ID: {}}
	next := user.ReportingToID
	for hops := 0; next != nil && hops < bound; hops++ {
		if _, dup := seen[*next]; dup {
			e.log.Warn("reporting cycle detected", zap.Uint("user_id", userID), zap.Uint("at", *next))
			break
		}
		seen[*next] = struct{}{}

		manager, err := e.store.User(ctx, *next)
		if apperror.IsKind(err, apperror.NotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, manager.Projection())
		next = manager.ReportingToID
	}
	return chain, nil
}

// Node is one user of a subordinate tree.
type Node struct {
	User     models.UserProjection `json:"user"`
	Depth    int                   `json:"depth"`
	Children []*Node               `json:"children"`
}

type Tree struct {
	Root         models.UserProjection `json:"root"`
	Subordinates []*Node               `json:"subordinates"`
	Count        int                   `json:"count"`
}

// SubordinateTree returns every descendant of userID, annotated with its
// depth below userID.
func (e *Engine) SubordinateTree(ctx context.Context, userID uint) (*Tree, error) {
	root, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	bound, err := e.walkBound(ctx)
	if err != nil {
		return nil, err
	}

	var descendants []models.User
	if e.opts.ClosureQuery {
		descendants, err = e.closureDescendants(ctx, root.ID, bound)
	} else {
		descendants, err = e.iterativeDescendants(ctx, root.ID, bound)
	}
	if err != nil {
		return nil, err
	}

	nodes, count := buildTree(root.ID, descendants)
	return &Tree{Root: root.Projection(), Subordinates: nodes, Count: count}, nil
}

func (e *Engine) closureDescendants(ctx context.Context, rootID uint, bound int) ([]models.User, error) {
	rows, err := e.store.SubtreeClosure(ctx, rootID, bound)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return e.store.UsersByIDs(ctx, ids)
}

func (e *Engine) iterativeDescendants(ctx context.Context, rootID uint, bound int) ([]models.User, error) {
	var out []models.User
	visited := map[uint]struct{}{rootID: {}}
	frontier := []uint{rootID}
	for depth := 0; len(frontier) > 0 && depth < bound; depth++ {
		level, err := e.store.DirectReports(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, u := range level {
			if _, ok := visited[u.ID]; ok {
				continue
			}
			visited[u.ID] = struct{}{}
			out = append(out, u)
			frontier = append(frontier, u.ID)
		}
	}
	return out, nil
}

// buildTree links users under their managers starting at rootID. Users not
// reachable from the root, and any repeat visit, are left out, so the result
// is always a finite tree.
func buildTree(rootID uint, users []models.User) ([]*Node, int) {
	children := make(map[uint][]*models.User, len(users))
	for i := range users {
		u := &users[i]
		if u.ReportingToID == nil {
			continue
		}
		children[*u.ReportingToID] = append(children[*u.ReportingToID], u)
	}
	for _, list := range children {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}

	visited := map[uint]struct{}{rootID: {}}
	count := 0
	var attach func(parent uint, depth int) []*Node
	attach = func(parent uint, depth int) []*Node {
		nodes := []*Node{}
		for _, u := range children[parent] {
			if _, ok := visited[u.ID]; ok {
				continue
			}
			visited[u.ID] = struct{}{}
			count++
			nodes = append(nodes, &Node{User: u.Projection(), Depth: depth})
		}
		for _, n := range nodes {
			n.Children = attach(n.User.ID, depth+1)
		}
		return nodes
	}
	return attach(rootID, 1), count
}
