package users

import (
	"context"
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository stores credential records. Profiles live in the document store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user, err := dto.ToModel()
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail expects an already normalized address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, map[string]any{"last_login_at": at}, false)
}

// UpdatePassword stores a new hash and stamps password_changed_at.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"password_hash": hash, "password_changed_at": at}, true)
}

// RehashPassword swaps the stored hash for one with the current cost. The
// password itself is unchanged, so password_changed_at is left alone.
func (r *Repository) RehashPassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.update(ctx, id, map[string]any{"password_hash": hash}, false)
}

// UpdateIdentity changes the email and/or display name. Nil arguments are left alone.
func (r *Repository) UpdateIdentity(ctx context.Context, id uuid.UUID, email, displayName *string) error {
	cols := map[string]any{}
	if email != nil {
		cols["email"] = *email
	}
	if displayName != nil {
		cols["display_name"] = *displayName
	}
	if len(cols) == 0 {
		return nil
	}
	return r.update(ctx, id, cols, true)
}

func (r *Repository) first(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(where, arg).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// update writes cols, bumping updated_at only for user-visible changes, and
// reports gorm.ErrRecordNotFound when no row has id.
func (r *Repository) update(ctx context.Context, id uuid.UUID, cols map[string]any, touch bool) error {
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
	var res *gorm.DB
	if touch {
		res = q.Updates(cols)
	} else {
		res = q.UpdateColumns(cols)
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
