package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/jwt"
	"loteo/internal/pkg/logging"
)

const testPassword = "correct-horse-battery"

func setupService(t *testing.T) (*Service, *Repository, *clock.MockClock, *jwt.Service) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))

	repo := NewRepository(db)
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	jwtService := jwt.New("test-secret", time.Hour)
	return NewService(repo, jwtService, clk, logging.Discard()), repo, clk, jwtService
}

func createSeller(t *testing.T, svc *Service, email string) *User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), CreateUserInput{
		Email: email, Password: testPassword, Name: "Seller", Role: RoleSeller,
	})
	require.NoError(t, err)
	return u
}

func TestLogin_IssuesToken(t *testing.T) {
	svc, repo, clk, jwtService := setupService(t)
	ctx := context.Background()
	seller := createSeller(t, svc, " Ana@Loteo.CL ")

	res, err := svc.Login(ctx, "ana@loteo.cl", testPassword)
	require.NoError(t, err)
	assert.Equal(t, seller.ID, res.User.ID)
	assert.Equal(t, clk.Now().Add(time.Hour), res.ExpiresAt)

	claims, err := jwtService.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, seller.ID, claims.UserID)
	assert.Equal(t, "seller", claims.Role)

	stored, err := repo.GetByID(ctx, seller.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
}

func TestLogin_WrongPasswordAndUnknownEmail(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()
	createSeller(t, svc, "ana@loteo.cl")

	_, err := svc.Login(ctx, "ana@loteo.cl", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@loteo.cl", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	svc, _, clk, _ := setupService(t)
	ctx := context.Background()
	createSeller(t, svc, "ana@loteo.cl")

	for i := 0; i < maxFailedLoginAttempts-1; i++ {
		_, err := svc.Login(ctx, "ana@loteo.cl", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := svc.Login(ctx, "ana@loteo.cl", "wrong-password")
	require.ErrorIs(t, err, ErrAccountLocked)

	// the right password does not help while locked
	_, err = svc.Login(ctx, "ana@loteo.cl", testPassword)
	assert.ErrorIs(t, err, ErrAccountLocked)

	clk.Add(lockoutDuration + time.Second)
	_, err = svc.Login(ctx, "ana@loteo.cl", testPassword)
	assert.NoError(t, err)
}

func TestLogin_DisabledAccount(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()
	seller := createSeller(t, svc, "ana@loteo.cl")

	require.NoError(t, svc.SetActive(ctx, seller.ID, false))
	_, err := svc.Login(ctx, "ana@loteo.cl", testPassword)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	ok, err := svc.IsSeller(ctx, seller.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()
	createSeller(t, svc, "ana@loteo.cl")

	_, err := svc.CreateUser(ctx, CreateUserInput{Email: "ANA@loteo.cl", Password: testPassword, Name: "Dup", Role: RoleSeller})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	_, err = svc.CreateUser(ctx, CreateUserInput{Email: "b@loteo.cl", Password: "short", Name: "B", Role: RoleSeller})
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.CreateUser(ctx, CreateUserInput{Email: "c@loteo.cl", Password: testPassword, Name: "C", Role: "buyer"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestIsSellerAndEnsureAdmin(t *testing.T) {
	svc, repo, _, _ := setupService(t)
	ctx := context.Background()
	seller := createSeller(t, svc, "ana@loteo.cl")

	created, err := svc.EnsureAdmin(ctx, "admin@loteo.cl", testPassword, "")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = svc.EnsureAdmin(ctx, "admin@loteo.cl", "another-password", "")
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := repo.GetByEmail(ctx, "admin@loteo.cl")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.NoError(t, CheckPassword(testPassword, admin.PasswordHash))

	ok, err := svc.IsSeller(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.IsSeller(ctx, admin.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = svc.IsSeller(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	sellers, err := svc.ListSellers(ctx)
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, seller.ID, sellers[0].ID)
}

func TestLoginHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _, _ := setupService(t)
	createSeller(t, svc, "ana@loteo.cl")

	r := gin.New()
	NewHandler(svc).RegisterPublicRoutes(r.Group("/api/v1"))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := post(`{"email":"ana@loteo.cl","password":"` + testPassword + `"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var env struct {
		Data struct {
			User   User          `json:"user"`
			Tokens TokenResponse `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Data.Tokens.AccessToken)
	assert.Equal(t, RoleSeller, env.Data.User.Role)
	assert.NotContains(t, rr.Body.String(), "password_hash")

	rr = post(`{"email":"ana@loteo.cl","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_CREDENTIALS")

	rr = post(`{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
