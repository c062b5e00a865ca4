// Package session implements login, per-device sessions and the progressive
// account lockout.
//
// Every credential mutation is a read-modify-write guarded by the
// credential's version column. When two requests race on one credential the
// loser re-reads and re-applies its step, so no failed attempt is lost and no
// attempt counter is incremented twice from the same base.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/token"
)

const (
	DefaultMaxDevices = 2
	defaultRetries    = 5
)

type Options struct {
	MaxDevices int
	Retries    int
	Now        func() time.Time
	NewID      func() string
}

type Service struct {
	store      *directory.Store
	issuer     *token.Issuer
	audit      *audit.Recorder
	log        *zap.Logger
	maxDevices int
	retries    int
	now        func() time.Time
	newID      func() string
}

func NewService(store *directory.Store, issuer *token.Issuer, rec *audit.Recorder, log *zap.Logger, opts Options) *Service {
	s := &Service{
		store:      store,
		issuer:     issuer,
		audit:      rec,
		log:        log,
		maxDevices: opts.MaxDevices,
		retries:    opts.Retries,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.maxDevices <= 0 {
		s.maxDevices = DefaultMaxDevices
	}
	if s.retries <= 0 {
		s.retries = defaultRetries
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

type LoginInput struct {
	Username  string
	Password  string
	DeviceID  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	AccessToken     string                `json:"access_token"`
	RefreshToken    string                `json:"refresh_token"`
	DeviceID        string                `json:"device_id"`
	AlreadyLoggedIn bool                  `json:"already_logged_in"`
	User            models.UserProjection `json:"user"`
}

// mutate runs fn against a fresh copy of the user's credential and persists
// it when fn asks to. A version conflict re-runs the whole step.
func (s *Service) mutate(ctx context.Context, userID uint, fn func(c *models.LoginCredential) (persist bool, err error)) error {
	for i := 0; i < s.retries; i++ {
		cred, err := s.store.CredentialByUserID(ctx, userID)
		if err != nil {
			return err
		}

		persist, opErr := fn(cred)
		if persist {
			if err := s.store.SaveCredential(ctx, cred); err != nil {
				if errors.Is(err, directory.ErrVersionConflict) {
					s.log.Debug("credential version conflict, retrying",
						zap.Uint("user_id", userID), zap.Int("attempt", i+1))
					continue
				}
				return err
			}
		}
		return opErr
	}
	return directory.ErrVersionConflict
}

// Authenticate checks the secret, drives the lockout state and admits the
// device.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, apperror.New(apperror.InvalidInput, "Username and password are required")
	}

	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !user.CanLogin {
		return nil, apperror.New(apperror.Forbidden, "Login is disabled for this account")
	}

	var (
		result  *LoginResult
		failure *failureOutcome
		level   int
	)
	err = s.mutate(ctx, user.ID, func(c *models.LoginCredential) (bool, error) {
		result, failure = nil, nil
		now := s.now()

		if err := lockedError(c, now); err != nil {
			return false, err
		}

		if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(in.Password)) != nil {
			out := registerFailure(c, now)
			failure, level = &out, c.LockLevel
			return true, out.err(c.LockLevel)
		}

		resetLock(c)

		adm, err := admitDevice(c.Devices, in.DeviceID, in.IP, in.UserAgent, s.maxDevices, now, s.newID)
		if err != nil {
			// the lock reset above is still worth keeping
			return true, err
		}

		sub := token.Subject{UserID: user.ID, RoleID: user.RoleID, BranchID: user.BranchID, DeviceID: adm.device.ID}
		access, err := s.issuer.Access(sub)
		if err != nil {
			return false, fmt.Errorf("issue access token: %w", err)
		}

		refresh := adm.device.RefreshToken
		if !adm.alreadyOpen || refresh == "" {
			refresh, err = s.issuer.Refresh(sub)
			if err != nil {
				return false, fmt.Errorf("issue refresh token: %w", err)
			}
			// overwriting revokes whatever this device held before
			adm.device.RefreshToken = refresh
		}

		c.IsLoggedIn = true
		c.LastLogin = &now

		result = &LoginResult{
			AccessToken:     access,
			RefreshToken:    refresh,
			DeviceID:        adm.device.ID,
			AlreadyLoggedIn: adm.alreadyOpen,
			User:            user.Projection(),
		}
		return true, nil
	})

	if failure != nil && failure.locked() {
		s.log.Warn("account locked after failed logins",
			zap.Uint("user_id", user.ID), zap.Int("lock_level", level), zap.Bool("permanent", failure.permanent))
		if aerr := s.audit.Write(ctx, audit.LogOptions{
			UserID:      user.ID,
			UserName:    user.Name,
			BranchID:    &user.BranchID,
			EntityType:  "credential",
			EntityID:    user.ID,
			Action:      models.AuditActionLock,
			Description: fmt.Sprintf("lock level %d", level),
		}); aerr != nil {
			return nil, apperror.Storage(aerr)
		}
	}
	if err != nil {
		return nil, err
	}

	if !result.AlreadyLoggedIn {
		if err := s.audit.Write(ctx, audit.LogOptions{
			UserID:      user.ID,
			UserName:    user.Name,
			BranchID:    &user.BranchID,
			EntityType:  "credential",
			EntityID:    user.ID,
			Action:      models.AuditActionLogin,
			Description: "login on device " + result.DeviceID,
		}); err != nil {
			return nil, apperror.Storage(err)
		}
	}
	return result, nil
}

type EndSessionInput struct {
	UserID   uint
	Username string
	DeviceID string
}

type EndSessionResult struct {
	IsLoggedIn bool `json:"is_logged_in"`
}

// EndSession closes the session on one device and revokes its refresh
// credential.
func (s *Service) EndSession(ctx context.Context, in EndSessionInput) (*EndSessionResult, error) {
	if in.DeviceID == "" {
		return nil, apperror.New(apperror.InvalidInput, "device_id is required")
	}
	user, err := s.resolveUser(ctx, in.UserID, in.Username)
	if err != nil {
		return nil, err
	}

	var res EndSessionResult
	err = s.mutate(ctx, user.ID, func(c *models.LoginCredential) (bool, error) {
		d, ok := c.Devices[in.DeviceID]
		if !ok {
			return false, apperror.New(apperror.NotFound, "device not found")
		}
		closeDevice(d, s.now())
		c.IsLoggedIn = anyOpen(c.Devices)
		res.IsLoggedIn = c.IsLoggedIn
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Write(ctx, audit.LogOptions{
		UserID:      user.ID,
		UserName:    user.Name,
		BranchID:    &user.BranchID,
		EntityType:  "credential",
		EntityID:    user.ID,
		Action:      models.AuditActionLogout,
		Description: "logout on device " + in.DeviceID,
	}); err != nil {
		return nil, apperror.Storage(err)
	}
	return &res, nil
}

func (s *Service) resolveUser(ctx context.Context, userID uint, username string) (*models.User, error) {
	if userID != 0 {
		return s.store.User(ctx, userID)
	}
	if username = strings.TrimSpace(username); username != "" {
		return s.store.UserByUsername(ctx, username)
	}
	return nil, apperror.New(apperror.InvalidInput, "user_id or username is required")
}

type RefreshResult struct {
	AccessToken string `json:"access_token"`
}

// RefreshAccessCredential mints a new access credential. The refresh
// credential must be the exact value currently stored for the device; any
// older one has been superseded and is rejected.
func (s *Service) RefreshAccessCredential(ctx context.Context, refreshToken, deviceID string) (*RefreshResult, error) {
	invalid := apperror.New(apperror.InvalidToken, "Invalid or revoked refresh token")
	if refreshToken == "" || deviceID == "" {
		return nil, apperror.New(apperror.InvalidInput, "refresh_token and device_id are required")
	}

	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil || claims.DeviceID != deviceID {
		return nil, invalid
	}

	user, err := s.store.User(ctx, claims.UserID)
	if err != nil {
		if apperror.IsKind(err, apperror.NotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if !user.IsActive || !user.CanLogin {
		return nil, invalid
	}

	cred, err := s.store.CredentialByUserID(ctx, user.ID)
	if err != nil {
		if apperror.IsKind(err, apperror.NotFound) {
			return nil, invalid
		}
		return nil, err
	}
	d, ok := cred.Devices[deviceID]
	if !ok || d.RefreshToken == "" || d.RefreshToken != refreshToken {
		return nil, invalid
	}

	access, err := s.issuer.Access(token.Subject{
		UserID:   user.ID,
		RoleID:   user.RoleID,
		BranchID: user.BranchID,
		DeviceID: deviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &RefreshResult{AccessToken: access}, nil
}
