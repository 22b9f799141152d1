package auth

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/security"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	resetCodeBytes = 32
	resetScope     = "password-reset:"
)

// SendPasswordReset mails a reset link. A successful send blocks further
// sends to the same address for the configured cooldown.
func (s *service) SendPasswordReset(ctx context.Context, req PasswordResetRequest) (*ResetSent, error) {
	email := normalizeEmail(req.Email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}

	scope := resetScope + email
	ok, remaining, err := s.resets.AcquireCooldown(ctx, scope, s.resetCfg.Cooldown)
	if err != nil {
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	if !ok {
		return nil, reasonError(ReasonTooManyRequests, nil).WithDetails(map[string]string{
			"reason":      string(ReasonTooManyRequests),
			"retry_after": strconv.Itoa(int(remaining.Round(time.Second).Seconds())),
		})
	}
	release := func() {
		_ = s.resets.ReleaseCooldown(context.WithoutCancel(ctx), scope)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		release()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reasonError(ReasonUserNotFound, nil)
		}
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}

	code, err := security.GenerateActionCode(resetCodeBytes)
	if err != nil {
		release()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset code")
	}
	key := s.resets.ResetTokenKey(code)
	if err := s.resets.Set(ctx, key, user.ID.String(), s.resetCfg.TokenTTL); err != nil {
		release()
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, resetLink(s.resetCfg.ContinueURL, code)); err != nil {
		_ = s.resets.Del(context.WithoutCancel(ctx), key)
		release()
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	return &ResetSent{CooldownSeconds: int(s.resetCfg.Cooldown.Seconds())}, nil
}

// ConfirmPasswordReset consumes a reset code and sets the new password.
// Every open session of the user is revoked.
func (s *service) ConfirmPasswordReset(ctx context.Context, req ConfirmPasswordResetRequest) error {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return reasonError(ReasonInvalidActionCode, nil)
	}
	if err := checkConfirmation(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	uid, err := s.resets.Take(ctx, s.resets.ResetTokenKey(code))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return reasonError(ReasonInvalidActionCode, nil)
		}
		return reasonError(ReasonNetworkRequestFailed, err)
	}
	id, err := uuid.Parse(uid)
	if err != nil {
		return reasonError(ReasonInvalidActionCode, nil)
	}

	if err := s.users.UpdatePassword(ctx, id, hash, s.now()); err != nil {
		return reasonError(ReasonNetworkRequestFailed, err)
	}
	return s.revokeAll(ctx, uid)
}

// ChangePassword re-checks the current password, stores the new one, ends
// every other session, and returns a fresh session for the caller.
func (s *service) ChangePassword(ctx context.Context, sess pkgAuth.Session, req ChangePasswordRequest) (*AuthResponse, error) {
	user, err := s.userByUID(ctx, sess.Identity.UID)
	if err != nil {
		return nil, err
	}
	valid, err := security.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, reasonError(ReasonWrongPassword, nil)
	}
	if err := checkConfirmation(req.NewPassword, req.ConfirmPassword); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}
	user.PasswordAt = &now
	if err := s.revokeAll(ctx, user.ID.String()); err != nil {
		return nil, err
	}
	return s.issue(ctx, user, now, now)
}

func (s *service) revokeAll(ctx context.Context, uid string) error {
	if err := s.session.RevokeUser(ctx, uid); err != nil {
		return reasonError(ReasonNetworkRequestFailed, err)
	}
	s.announce(ctx, Change{UID: uid, Kind: ChangeCredentialsRevoked})
	return nil
}

func resetLink(continueURL, code string) string {
	u, err := url.Parse(continueURL)
	if err != nil || continueURL == "" {
		return "?mode=resetPassword&oobCode=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("mode", "resetPassword")
	q.Set("oobCode", code)
	u.RawQuery = q.Encode()
	return u.String()
}
