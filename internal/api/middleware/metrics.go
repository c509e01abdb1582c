package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
)

// DecisionTypeHeader carries the action type of a decision response so the
// collector can count decisions without reading bodies.
const DecisionTypeHeader = "X-Decision-Type"

// MetricsCollector counts requests, errors and decisions by action type.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	serverErrors atomic.Int64

	mu        sync.Mutex
	decisions map[string]int64
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		decisions:    make(map[string]int64),
	}
}

// Middleware returns middleware that counts requests, errors and decisions.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// 4xx and 5xx both count as errors
		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		if rw.statusCode >= 500 {
			mc.serverErrors.Add(1)
		}
		if t := rw.Header().Get(DecisionTypeHeader); t != "" && rw.statusCode < 400 {
			mc.mu.Lock()
			mc.decisions[t]++
			mc.mu.Unlock()
		}
	})
}

// ServerErrors returns the number of 5xx responses.
func (mc *MetricsCollector) ServerErrors() int64 {
	return mc.serverErrors.Load()
}

// Decisions returns a copy of the per action type decision counts.
func (mc *MetricsCollector) Decisions() map[string]int64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make(map[string]int64, len(mc.decisions))
	for k, v := range mc.decisions {
		out[k] = v
	}
	return out
}
