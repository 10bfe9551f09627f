// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckoutAttempts 按终态统计客户端结账尝试。
	CheckoutAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by terminal outcome.",
	}, []string{"outcome"})

	PaymentIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Payment intents requested from the provider.",
	}, []string{"result"})

	VendorAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_assignments_total",
		Help: "Vendor assignment calls by result.",
	}, []string{"result"})

	OrdersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_recorded_total",
		Help: "Paid order inserts by result.",
	}, []string{"result"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "function_request_duration_seconds",
		Help:    "Latency of HTTP function requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)

// Middleware 记录每个请求的耗时，route 取 chi 的路由模板，避免高基数标签。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
