package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "rotcunit-test"
)

func authedRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/", Require(testKey, testIssuer))
	if len(roles) > 0 {
		group = group.Group("", RequireRole(roles...))
	}
	group.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine, token string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireRejectsMissingAndBadTokens(t *testing.T) {
	r := authedRouter()
	require.Equal(t, http.StatusUnauthorized, doGet(r, ""))
	require.Equal(t, http.StatusUnauthorized, doGet(r, "not-a-jwt"))

	wrongKey, err := Issue("s1", "station", testIssuer, "another-key", time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, doGet(r, wrongKey.AccessToken))
}

func TestRequireAcceptsIssuedToken(t *testing.T) {
	r := authedRouter()
	pair, err := Issue("station-1", "station", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, doGet(r, pair.AccessToken))
}

func TestRequireRoleGatesByRole(t *testing.T) {
	r := authedRouter("staff", "admin")

	station, err := Issue("station-1", "station", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, doGet(r, station.AccessToken))

	staff, err := Issue("sgt-1", "staff", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, doGet(r, staff.AccessToken))

	admin, err := Issue("cdr-1", "admin", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, doGet(r, admin.AccessToken))
}
