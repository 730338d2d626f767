package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/auth"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/models"
)

func postJSON(t *testing.T, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRegisterIssuesToken(t *testing.T) {
	repo := newFakeRepo()
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/register",
		`{"email":"new@example.com","username":"newuser","password":"secret1234"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.False(t, resp.User.IsAdmin)

	claims, err := auth.ValidateJWT(resp.Token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.False(t, claims.IsAdmin)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	repo := newFakeRepo()
	repo.add(&accounts.Account{Email: "dup@example.com"})
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/register",
		`{"email":"dup@example.com","username":"dup","password":"secret1234"}`)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterConcurrentDuplicateConflicts(t *testing.T) {
	// The email is free at lookup time but the insert loses the race on
	// the unique constraint; that is a 409, not an internal error.
	repo := newFakeRepo()
	repo.createErr = domain.NewConflictError("An account with this email already exists")
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/register",
		`{"email":"racer@example.com","username":"racer","password":"secret1234"}`)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "account_exists", resp["error"])
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	repo := newFakeRepo()
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/register",
		`{"email":"new@example.com","username":"newuser","password":"short"}`)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginChecksPassword(t *testing.T) {
	repo := newFakeRepo()
	repo.add(&accounts.Account{Email: "user@example.com", PasswordHash: mustHash("correct-horse")})
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/login",
		`{"email":"user@example.com","password":"correct-horse"}`)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = postJSON(t, "/api/v1/auth/login",
		`{"email":"user@example.com","password":"wrong"}`)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLoginWithTokenPassword(t *testing.T) {
	tokenHash := mustHash("tok-password-123")
	exp := time.Now().UTC().Add(48 * time.Hour)
	repo := newFakeRepo()
	acct := repo.add(&accounts.Account{
		Email:                 "admin@example.com",
		IsAdmin:               true,
		AdminTokenHash:        &tokenHash,
		SubscriptionExpiresAt: &exp,
	})
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/admin-login", `{"token_password":"tok-password-123"}`)
	c.Set("user_id", acct.ID)
	require.NoError(t, h.AdminLogin(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := auth.ValidateJWT(resp.Token, "test-secret")
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func TestAdminLoginWrongTokenPasswordRejected(t *testing.T) {
	tokenHash := mustHash("tok-password-123")
	exp := time.Now().UTC().Add(48 * time.Hour)
	repo := newFakeRepo()
	acct := repo.add(&accounts.Account{
		Email:                 "admin@example.com",
		IsAdmin:               true,
		AdminTokenHash:        &tokenHash,
		SubscriptionExpiresAt: &exp,
	})
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/admin-login", `{"token_password":"nope"}`)
	c.Set("user_id", acct.ID)
	require.NoError(t, h.AdminLogin(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLoginExpiredWindowRejected(t *testing.T) {
	tokenHash := mustHash("tok-password-123")
	exp := time.Now().UTC().Add(-time.Hour)
	repo := newFakeRepo()
	acct := repo.add(&accounts.Account{
		Email:                 "admin@example.com",
		IsAdmin:               true,
		AdminTokenHash:        &tokenHash,
		SubscriptionExpiresAt: &exp,
	})
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/admin-login", `{"token_password":"tok-password-123"}`)
	c.Set("user_id", acct.ID)
	require.NoError(t, h.AdminLogin(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminLoginOperatorNeedsNoToken(t *testing.T) {
	repo := newFakeRepo()
	acct := repo.add(&accounts.Account{Email: "operator@example.com"})
	h := NewAuthHandler(repo, testConfig(), logger.Default())

	c, rec := postJSON(t, "/api/v1/auth/admin-login", `{}`)
	c.Set("user_id", acct.ID)
	require.NoError(t, h.AdminLogin(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := auth.ValidateJWT(resp.Token, "test-secret")
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}
