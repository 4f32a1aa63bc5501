package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"coinforecast/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestConfig(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}
	t.Cleanup(func() { config.AppConfig = prev })
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTAuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"username": c.GetString("username"),
			"role":     c.GetString("role"),
		})
	})
	return router
}

func TestIssueAndValidateToken(t *testing.T) {
	setupTestConfig(t)

	token, err := IssueToken("operator", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := validateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "operator", claims.Subject)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	setupTestConfig(t)

	_, err := validateToken("not-a-token")
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	setupTestConfig(t)

	token, err := IssueToken("operator", "admin")
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "different-secret"
	_, err = validateToken(token)
	assert.Error(t, err)
}

func TestJWTAuthMiddleware(t *testing.T) {
	setupTestConfig(t)
	router := protectedRouter()

	token, err := IssueToken("operator", "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "operator")
}

func TestJWTAuthMiddlewareRejections(t *testing.T) {
	setupTestConfig(t)
	router := protectedRouter()

	// Missing header
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong scheme
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Invalid token
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
