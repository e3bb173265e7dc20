package auth

import "time"

type UserRole string

const (
	RoleSeller UserRole = "seller"
	RoleAdmin  UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == RoleSeller || r == RoleAdmin
}

// User is a staff account. Buyers never have one.
type User struct {
	ID                  int64      `gorm:"primaryKey" json:"id"`
	Email               string     `gorm:"type:varchar(160);uniqueIndex;not null" json:"email"`
	PasswordHash        string     `gorm:"not null" json:"-"`
	Name                string     `gorm:"type:varchar(120);not null" json:"name"`
	Role                UserRole   `gorm:"type:varchar(20);not null;index" json:"role"`
	Active              bool       `gorm:"not null;default:true" json:"active"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
