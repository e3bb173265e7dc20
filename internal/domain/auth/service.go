package auth

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/errs"
	"loteo/internal/pkg/jwt"
)

const (
	maxFailedLoginAttempts = 5
	lockoutDuration        = 15 * time.Minute
)

type Service struct {
	users *Repository
	jwt   *jwt.Service
	clock clock.Clock
	log   logrus.FieldLogger
}

func NewService(users *Repository, jwtService *jwt.Service, clk clock.Clock, log logrus.FieldLogger) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{users: users, jwt: jwtService, clock: clk, log: log}
}

type LoginResult struct {
	User        *User
	AccessToken string
	ExpiresAt   time.Time
}

// Login checks the password and issues an access token. Five wrong passwords
// in a row lock the account for fifteen minutes.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errs.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.clock.Now()
	log := s.log.WithField("user_id", user.ID)
	if !user.Active {
		return nil, ErrAccountDisabled
	}
	if user.IsLocked(now) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= maxFailedLoginAttempts {
			until := now.Add(lockoutDuration)
			lockedUntil = &until
			attempts = 0
		}
		if err := s.users.RecordFailure(ctx, user.ID, attempts, lockedUntil); err != nil {
			return nil, err
		}
		if lockedUntil != nil {
			log.Warn("account locked after repeated login failures")
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, errs.Wrap(err, "sign access token")
	}
	log.Info("staff login")
	return &LoginResult{User: user, AccessToken: token, ExpiresAt: now.Add(s.jwt.TTL())}, nil
}

func (s *Service) Me(ctx context.Context, userID int64) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Role     UserRole
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("staff user created")
	return u, nil
}

func (s *Service) ListSellers(ctx context.Context) ([]User, error) {
	return s.users.ListByRole(ctx, RoleSeller)
}

func (s *Service) SetActive(ctx context.Context, userID int64, active bool) error {
	return s.users.SetActive(ctx, userID, active)
}

// IsSeller lets the CRM validate seller assignments.
func (s *Service) IsSeller(ctx context.Context, userID int64) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errs.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.Role == RoleSeller && u.Active, nil
}

// EnsureAdmin creates the bootstrap admin when no user has that email yet.
// An existing account is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errs.Is(err, ErrUserNotFound) {
		return false, err
	}
	if name == "" {
		name = "Administrador"
	}
	if _, err := s.CreateUser(ctx, CreateUserInput{Email: email, Password: password, Name: name, Role: RoleAdmin}); err != nil {
		return false, err
	}
	return true, nil
}
