package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abujawed11/engage-swap-sub000/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestHealthz(t *testing.T) {
	router := NewRouter(&config.Config{}, &Handler{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingIdentityIsRejected(t *testing.T) {
	router := NewRouter(&config.Config{}, &Handler{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/queue", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	router := NewRouter(&config.Config{}, &Handler{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/wallet/user-1/audit", nil)
	req.Header.Set(headerUserID, "user-1")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
