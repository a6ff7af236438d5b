package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnum/internal/core/apperror"
	appctx "docnum/internal/core/context"
	"docnum/pkg/logger"
)

func newEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), Logger(logger.Nop()), ErrorHandler())
	r.GET("/offices/:office/x", Office(), handler)
	return r
}

func serve(r *gin.Engine, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, "/offices/BGH/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestErrorHandler_AppError(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewPatternNotFound(c.Param("office")))
	})

	w, body := serve(r, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodePatternNotFound, body["code"])
}

func TestErrorHandler_DuplicateRecordIsGeneric(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewDuplicateRecord("KORE000012031"))
	})

	w, body := serve(r, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeDuplicateRecord, body["code"])
	assert.Nil(t, body["details"])
	assert.NotContains(t, w.Body.String(), "KORE000012031")
}

func TestErrorHandler_UnknownError(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(errors.New("pq: password authentication failed"))
	})

	w, body := serve(r, map[string]string{HeaderRequestID: "req-1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "password")
	assert.Equal(t, "req-1", body["details"].(map[string]any)["request_id"])
}

func TestRecovery(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		panic("boom")
	})

	w, body := serve(r, map[string]string{HeaderRequestID: "req-9"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "boom")
	assert.Equal(t, "req-9", body["details"].(map[string]any)["request_id"])
}

func TestTraceAndOffice(t *testing.T) {
	var office, requestID string
	r := newEngine(func(c *gin.Context) {
		office = appctx.GetOffice(c.Request.Context())
		requestID = appctx.GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w, _ := serve(r, map[string]string{HeaderRequestID: "abc", HeaderTraceID: "trace-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BGH", office)
	assert.Equal(t, "abc", requestID)
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "trace-1", w.Header().Get(HeaderTraceID))

	w, _ = serve(r, nil)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID), "generated when absent")
}
