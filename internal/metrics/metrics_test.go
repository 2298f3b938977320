package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/admin/accounts/:username", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/admin/accounts/:username", "200"))
	req := httptest.NewRequest(http.MethodGet, "/admin/accounts/alice", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/admin/accounts/:username", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordOperationAndRetry(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("transfer", "ok"))
	RecordOperation("transfer", "ok", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(operations.WithLabelValues("transfer", "ok")))

	beforeRetry := testutil.ToFloat64(retries.WithLabelValues("deposit", "conflict"))
	RecordRetry("deposit", "conflict")
	assert.Equal(t, beforeRetry+1, testutil.ToFloat64(retries.WithLabelValues("deposit", "conflict")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordOperation("deposit", "ok", time.Millisecond)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "bank_ledger_operations_total"))
}
