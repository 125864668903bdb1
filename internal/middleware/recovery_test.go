package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/2beens/fitlog/internal/telemetry/metrics"
)

func Test_panicRecoveryMiddleware_nonPanic(t *testing.T) {
	metricsManager := metrics.NewTestManager()

	next := &panicRecTestHandler{}
	handlerFunc := PanicRecovery(metricsManager)(next)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/get-workouts", nil)
	handlerFunc.ServeHTTP(rr, req)

	assert.True(t, next.called)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(0), testutil.ToFloat64(metricsManager.CounterHandleRequestPanic))
}

func Test_panicRecoveryMiddleware_panic(t *testing.T) {
	metricsManager := metrics.NewTestManager()

	next := &panicRecTestHandler{panic: true}
	handlerFunc := PanicRecovery(metricsManager)(next)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/get-workouts", nil)
	handlerFunc.ServeHTTP(rr, req)

	assert.True(t, next.called)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterHandleRequestPanic))
}

func Test_panicRecoveryMiddleware_nilMetrics(t *testing.T) {
	handlerFunc := PanicRecovery(nil)(&panicRecTestHandler{panic: true})

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handlerFunc.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type panicRecTestHandler struct {
	panic  bool
	called bool
}

func (p *panicRecTestHandler) ServeHTTP(http.ResponseWriter, *http.Request) {
	p.called = true
	if p.panic {
		panic("YOLO")
	}
}
