package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	router := gin.New()
	cfg := DefaultConfig("planner-test", logging.NewNop().Logger)
	cfg.Metrics = metrics.New(metrics.DefaultConfig("planner-test"))
	Setup(router, cfg)
	return router
}

func TestRequestIDAndHolderPropagation(t *testing.T) {
	router := newRouter()

	var holder, correlation string
	router.GET("/ping", func(c *gin.Context) {
		holder = logging.HolderFromContext(c.Request.Context(), "")
		correlation, _ = c.Request.Context().Value(logging.CorrelationIDKey).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderLockHolder, "operator-7")
	req.Header.Set(HeaderCorrelationID, "corr-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, "operator-7", holder)
	assert.Equal(t, "corr-1", correlation)
}

func TestHolderDefaultsToRequestID(t *testing.T) {
	router := newRouter()

	var holder string
	router.GET("/ping", func(c *gin.Context) {
		holder = GetLockHolder(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", holder)
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	router := newRouter()
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrLockConflict("machine:m-1", "other", "2026-01-01T00:00:00Z"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusLocked, w.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeLockConflict, body.Code)
	assert.Equal(t, "/fail", body.Path)
}

func TestErrorHandler_PlainErrorIsInternal(t *testing.T) {
	router := newRouter()
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("disk on fire"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecovery(t *testing.T) {
	router := newRouter()
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNoRoute(t *testing.T) {
	router := newRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")
}

func TestContentType_RejectsNonJSON(t *testing.T) {
	router := newRouter()
	router.POST("/things", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

type bindTarget struct {
	ID     string `json:"id" binding:"required,entity_id"`
	Format string `json:"format" binding:"omitempty,format_name"`
	Qty    string `json:"qty" binding:"required,decimal_positive"`
}

func TestBindAndValidate(t *testing.T) {
	InitValidator()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"id":"MAT-1","format":"70x100","qty":"12.5"}`},
		{name: "missing id", body: `{"qty":"1"}`, wantErr: true, field: "id"},
		{name: "bad format", body: `{"id":"a","format":"A4","qty":"1"}`, wantErr: true, field: "format"},
		{name: "zero qty", body: `{"id":"a","qty":"0.00"}`, wantErr: true, field: "qty"},
		{name: "negative qty", body: `{"id":"a","qty":"-3"}`, wantErr: true, field: "qty"},
		{name: "malformed", body: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var target bindTarget
			appErr := BindAndValidate(c, &target)
			if !tt.wantErr {
				assert.Nil(t, appErr)
				return
			}
			require.NotNil(t, appErr)
			if tt.field != "" {
				assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
				assert.Contains(t, appErr.Details, tt.field)
			}
		})
	}
}

func TestCORS_AllowsAnyOrigin(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://planner.local")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsMiddleware_LabelsByRouteAndSkipsProbes(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("planner-test"))
	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/machines/:machineId/queue", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/machines/printer-1/queue", "/machines/cutter-1/queue", "/health"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("planner-test", "GET", "/machines/:machineId/queue", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}
