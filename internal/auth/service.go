package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/nursecall-backend/internal/users"
	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/auth/session"
	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	"github.com/angelmondragon/nursecall-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/security"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the identity provider behind the auth endpoints.
type Service interface {
	SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error)
	SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error)
	SignOut(ctx context.Context, s pkgAuth.Session) error
	Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error)
	SendPasswordReset(ctx context.Context, req PasswordResetRequest) (*ResetSent, error)
	ConfirmPasswordReset(ctx context.Context, req ConfirmPasswordResetRequest) error
	ChangePassword(ctx context.Context, s pkgAuth.Session, req ChangePasswordRequest) (*AuthResponse, error)
	UpdateIdentity(ctx context.Context, uid string, authTime time.Time, update pkgAuth.IdentityUpdate) error
}

type service struct {
	users       userRepository
	session     sessionManager
	resets      resetStore
	profiles    profileWriter
	gate        announcer
	mailer      Mailer
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	resetCfg    config.ResetConfig
	logg        *logger.Logger
	clock       func() time.Time
}

type userRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
	RehashPassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateIdentity(ctx context.Context, id uuid.UUID, email, displayName *string) error
}

type sessionManager interface {
	Generate(ctx context.Context, userID, accessID string) (string, error)
	Rotate(ctx context.Context, userID, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
	RevokeUser(ctx context.Context, userID string) error
}

type resetStore interface {
	AcquireCooldown(ctx context.Context, scope string, window time.Duration) (bool, time.Duration, error)
	ReleaseCooldown(ctx context.Context, scope string) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ResetTokenKey(code string) string
}

type profileWriter interface {
	CreateProfile(ctx context.Context, uid, firstName, lastName, email string) error
}

type announcer interface {
	Announce(ctx context.Context, c Change) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	Resets         resetStore
	Profiles       profileWriter
	Gate           announcer
	Mailer         Mailer
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	ResetConfig    config.ResetConfig
	Logger         *logger.Logger
	Clock          func() time.Time
}

var validate = validator.New()

// NewService constructs the identity provider with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Resets == nil {
		return nil, fmt.Errorf("reset store is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile writer is required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("credential gate is required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		users:       params.UserRepo,
		session:     params.SessionManager,
		resets:      params.Resets,
		profiles:    params.Profiles,
		gate:        params.Gate,
		mailer:      params.Mailer,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		resetCfg:    params.ResetConfig,
		logg:        params.Logger,
		clock:       clock,
	}, nil
}

func (s *service) SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, now, now)
}

// SignOut ends the caller's session and tells live readers of that session to stop.
func (s *service) SignOut(ctx context.Context, sess pkgAuth.Session) error {
	if sess.AccessID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.session.Revoke(ctx, sess.AccessID); err != nil {
		return reasonError(ReasonNetworkRequestFailed, err)
	}
	s.announce(ctx, Change{UID: sess.Identity.UID, Kind: ChangeSignedOut, AccessID: sess.AccessID})
	return nil
}

// Refresh rotates the refresh token and re-mints the access token. The
// original sign-in time is carried forward.
func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, req.AccessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reasonError(ReasonUserNotFound, nil)
		}
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	if !user.IsActive {
		return nil, reasonError(ReasonUserNotFound, nil)
	}

	accessID, refreshToken, err := s.session.Rotate(ctx, user.ID.String(), claims.ID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}

	accessToken, err := s.mint(user, s.now(), claims.AuthenticatedAt(), accessID)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

// UpdateIdentity changes the email or display name on the credentials
// record. An email change requires a sign-in within the recent-login window.
func (s *service) UpdateIdentity(ctx context.Context, uid string, authTime time.Time, update pkgAuth.IdentityUpdate) error {
	if update.Empty() {
		return nil
	}
	user, err := s.userByUID(ctx, uid)
	if err != nil {
		return err
	}

	var email, displayName *string
	if update.Email != nil {
		normalized := normalizeEmail(*update.Email)
		if err := checkEmail(normalized); err != nil {
			return err
		}
		if normalized != user.Email {
			if !s.recentLogin(authTime) {
				return reasonError(ReasonRequiresRecentLogin, nil)
			}
			if err := s.ensureEmailFree(ctx, normalized, user.ID); err != nil {
				return err
			}
			email = &normalized
		}
	}
	if update.DisplayName != nil {
		trimmed := strings.TrimSpace(*update.DisplayName)
		if trimmed != user.DisplayName {
			displayName = &trimmed
		}
	}
	if email == nil && displayName == nil {
		return nil
	}

	if err := s.users.UpdateIdentity(ctx, user.ID, email, displayName); err != nil {
		if db.IsUniqueViolation(err, "") {
			return reasonError(ReasonEmailAlreadyInUse, err)
		}
		return reasonError(ReasonNetworkRequestFailed, err)
	}
	return nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := normalizeEmail(email)
	if err := checkEmail(input); err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reasonError(ReasonUserNotFound, nil)
		}
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	if !user.IsActive {
		return nil, reasonError(ReasonUserNotFound, nil)
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, reasonError(ReasonWrongPassword, nil)
	}
	s.upgradeHash(ctx, user, password)
	return user, nil
}

// upgradeHash re-hashes with the configured cost after a successful sign-in.
// Failure only costs the upgrade.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !security.NeedsRehash(user.PasswordHash, s.passwordCfg) {
		return
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err == nil {
		err = s.users.RehashPassword(ctx, user.ID, hash)
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "uid", user.ID.String()), "auth.rehash_failed: "+err.Error())
		}
		return
	}
	user.PasswordHash = hash
}

func (s *service) recordLogin(ctx context.Context, user *models.User) (time.Time, error) {
	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return time.Time{}, reasonError(ReasonNetworkRequestFailed, err)
	}
	user.LastLoginAt = &now
	return now, nil
}

// issue opens a new session for user.
func (s *service) issue(ctx context.Context, user *models.User, now, authTime time.Time) (*AuthResponse, error) {
	accessID := session.NewAccessID()
	accessToken, err := s.mint(user, now, authTime, accessID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.session.Generate(ctx, user.ID.String(), accessID)
	if err != nil {
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

func (s *service) mint(user *models.User, now, authTime time.Time, accessID string) (string, error) {
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AuthTime:    authTime,
		JTI:         accessID,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return token, nil
}

func (s *service) userByUID(ctx context.Context, uid string) (*models.User, error) {
	id, err := uuid.Parse(uid)
	if err != nil {
		return nil, reasonError(ReasonUserNotFound, nil)
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reasonError(ReasonUserNotFound, nil)
		}
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	return user, nil
}

func (s *service) ensureEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != self:
		return reasonError(ReasonEmailAlreadyInUse, nil)
	case err == nil, errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return reasonError(ReasonNetworkRequestFailed, err)
	}
}

func (s *service) recentLogin(authTime time.Time) bool {
	if authTime.IsZero() {
		return false
	}
	return s.now().Sub(authTime) <= s.resetCfg.RecentLoginWindow
}

func (s *service) announce(ctx context.Context, c Change) {
	if err := s.gate.Announce(context.WithoutCancel(ctx), c); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "uid", c.UID), "auth.announce_failed: "+err.Error())
	}
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) error {
	if email == "" || validate.Var(email, "email") != nil {
		return reasonError(ReasonInvalidEmail, nil)
	}
	return nil
}
