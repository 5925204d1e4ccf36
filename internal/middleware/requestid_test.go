package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-admin/pkg/httputil"
	"github.com/jwalitptl/hospital-admin/pkg/logger"
)

func TestRequestIDPropagation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())

	var fromGin, fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromGin = c.GetString(ContextRequestID)
		fromCtx, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "req-42", fromGin)
	assert.Equal(t, "req-42", fromCtx)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
	assert.Equal(t, w.Header().Get(HeaderXRequestID), fromCtx)
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, httputil.StatusError, resp.Status)
	assert.Equal(t, "internal server error", resp.Message)
}
