package auth

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"loteo/internal/pkg/errs"
	"loteo/internal/pkg/response"
	"loteo/internal/pkg/validator"
)

// Handler manages all HTTP interactions for staff authentication
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Login POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if verrs := validator.Validate(&req); verrs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", verrs)
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errs.Is(err, ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect")
		case errs.Is(err, ErrAccountLocked):
			response.Error(c, http.StatusForbidden, "ACCOUNT_LOCKED", "Account is temporarily locked")
		case errs.Is(err, ErrAccountDisabled):
			response.Error(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled")
		default:
			response.FromError(c, err, "LOGIN_FAILED")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user": result.User,
		"tokens": TokenResponse{
			AccessToken: result.AccessToken,
			ExpiresAt:   result.ExpiresAt,
		},
	})
}

// GetMe GET /auth/me
func (h *Handler) GetMe(c *gin.Context) {
	user, err := h.service.Me(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		response.FromError(c, err, "USER_NOT_FOUND")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// ListSellers GET /admin/users
func (h *Handler) ListSellers(c *gin.Context) {
	users, err := h.service.ListSellers(c.Request.Context())
	if err != nil {
		response.FromError(c, err, "LIST_FAILED")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"users": users})
}

// CreateUser POST /admin/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if verrs := validator.Validate(&req); verrs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", verrs)
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), CreateUserInput(req))
	if err != nil {
		code := "CREATE_FAILED"
		if errs.Is(err, ErrEmailAlreadyExists) {
			code = "EMAIL_EXISTS"
		}
		response.FromError(c, err, code)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user": user})
}

// SetActive PATCH /admin/users/:id/active
func (h *Handler) SetActive(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "active is required")
		return
	}
	if id == c.GetInt64("user_id") && !*req.Active {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "You cannot disable your own account")
		return
	}

	if err := h.service.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		response.FromError(c, err, "USER_NOT_FOUND")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "active": *req.Active})
}
