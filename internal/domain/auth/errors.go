package auth

import "loteo/internal/pkg/errs"

var (
	ErrInvalidCredentials = errs.Kind(errs.ErrUnauthorized, "invalid credentials")
	ErrAccountLocked      = errs.Kind(errs.ErrForbidden, "account locked")
	ErrAccountDisabled    = errs.Kind(errs.ErrForbidden, "account disabled")
	ErrUserNotFound       = errs.Kind(errs.ErrNotFound, "user not found")
	ErrEmailAlreadyExists = errs.Kind(errs.ErrConflict, "email already exists")
	ErrInvalidRole        = errs.Kind(errs.ErrValidation, "invalid role")
	ErrWeakPassword       = errs.Kind(errs.ErrValidation, "password must have at least 10 characters")
)
