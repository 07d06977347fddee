package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-print-api/internal/models"
)

func TestAuditLogsSuccessfulMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	principal := func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
		c.Next()
	}
	r.POST("/jobs/:id/cancel", principal, Audit(zap.New(core), "print_job.cancel"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/jobs/:id/fail", principal, Audit(zap.New(core), "print_job.cancel"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/j1/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/j1/fail", nil))
	require.Equal(t, http.StatusConflict, w.Code)

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "print_job.cancel", fields["action"])
	assert.Equal(t, "/jobs/:id/cancel", fields["path"])
	assert.Equal(t, "j1", fields["resource_id"])
	assert.Equal(t, "admin-1", fields["user_id"])
}

func TestAuditNilLogger(t *testing.T) {
	r := newRouter(Audit(nil, "noop"))
	w := serve(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponseMetaCarriesCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())

	var meta map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.Nil(t, ExtractMeta(nil))
}
