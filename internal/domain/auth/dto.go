package auth

import "time"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email,max=160"`
	Password string   `json:"password" validate:"required,min=10,max=72"`
	Name     string   `json:"name" validate:"required,min=2,max=120"`
	Role     UserRole `json:"role" validate:"required,oneof=seller admin"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
