package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/nursecall-backend/internal/users"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/security"
	"gorm.io/gorm"
)

// SignUp creates the credentials record, writes the profile under
// users/{uid}, and signs the new user in.
func (s *service) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	email := normalizeEmail(req.Email)

	missing := map[string]string{}
	if firstName == "" {
		missing["first_name"] = "required"
	}
	if lastName == "" {
		missing["last_name"] = "required"
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").WithDetails(missing)
	}
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	if err := checkConfirmation(req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}

	passwordHash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, reasonError(ReasonEmailAlreadyInUse, nil)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}

	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(firstName + " " + lastName),
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, reasonError(ReasonEmailAlreadyInUse, err)
		}
		return nil, reasonError(ReasonNetworkRequestFailed, err)
	}

	if err := s.profiles.CreateProfile(ctx, user.ID.String(), firstName, lastName, email); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write profile")
	}

	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, now, now)
}

func (s *service) hashPassword(password string) (string, error) {
	if len(password) < security.MinPasswordLength {
		return "", reasonError(ReasonWeakPassword, nil)
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	return hash, nil
}

// checkConfirmation only runs when a confirmation was sent.
func checkConfirmation(password, confirmation string) error {
	if confirmation == "" || confirmation == password {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "passwords do not match").
		WithDetails(map[string]string{"confirm_password": "mismatch"})
}
