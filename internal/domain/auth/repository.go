package auth

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"loteo/internal/pkg/errs"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) Create(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if errs.IsUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return errs.Wrap(err, "create user")
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errs.Wrap(err, "get user by email")
	}
	return &u, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errs.Wrap(err, "get user")
	}
	return &u, nil
}

func (r *Repository) ListByRole(ctx context.Context, role UserRole) ([]User, error) {
	var out []User
	if err := r.db.WithContext(ctx).Where("role = ?", role).Order("name asc").Find(&out).Error; err != nil {
		return nil, errs.Wrap(err, "list users")
	}
	return out, nil
}

// RecordFailure stores the new failure count and, once the limit is hit,
// the lockout deadline.
func (r *Repository) RecordFailure(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error {
	updates := map[string]interface{}{"failed_login_attempts": attempts}
	if lockedUntil != nil {
		updates["locked_until"] = *lockedUntil
	}
	if err := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errs.Wrap(err, "record login failure")
	}
	return nil
}

func (r *Repository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         at,
	}).Error
	if err != nil {
		return errs.Wrap(err, "record login")
	}
	return nil
}

func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return errs.Wrap(res.Error, "set user active")
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
