package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.SubscriptionOpened("rooms")
	p.SubscriptionOpened("rooms")
	p.SubscriptionClosed("rooms")
	p.SubscriptionFailed("messages")
	p.AccessEvaluated(true)
	p.AccessEvaluated(false)
	p.AccessEvaluated(false)
	p.MessageAppended()
	p.MessageAppendFailed()
	p.TokenRequested(true, 20*time.Millisecond)
	p.TokenRequested(false, time.Second)
	p.RoomCreated()

	assert.Equal(t, 1.0, testutil.ToFloat64(p.subscriptionsActive.WithLabelValues("rooms")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.subscriptionsOpened.WithLabelValues("rooms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.subscriptionFailures.WithLabelValues("messages")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.accessEvaluations.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messageAppendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tokenRequests.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.roomsCreated))
	assert.Equal(t, 1, testutil.CollectAndCount(p.tokenRequestDuration))
}

func TestPrometheusCollector_HTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := NewPrometheusCollector(prometheus.NewRegistry())

	router := gin.New()
	router.Use(p.HTTPMiddleware())
	router.GET("/rooms/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/"+id, nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/rooms/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("store", func(ctx context.Context) error { return nil }, 0, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") }, 0, time.Second)
	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["store"])
	assert.Equal(t, "connection refused", status.Checks["redis"])
	assert.Equal(t, "connection refused", h.LastResults()["redis"])
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 10*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}

func TestHealthChecker_Background(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("tick", func(ctx context.Context) error { return nil }, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartBackgroundChecks(ctx)

	assert.Eventually(t, func() bool {
		return h.LastResults()["tick"] == StatusHealthy
	}, time.Second, 5*time.Millisecond)
}
