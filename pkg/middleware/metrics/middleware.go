package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/middleware"

	"github.com/joeydtaylor/steeze-pool/pkg/session"
)

// Collect records the request counters and latency histogram. worker
// labels the histogram so a scrape of the pool tells workers apart.
func Collect(worker string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				if isSkipPath(r) {
					return
				}
				code := strconv.Itoa(ww.Status())
				// ww.Status is 0 when a handler hijacked the connection.
				if ww.Status() == 0 {
					code = strconv.Itoa(http.StatusSwitchingProtocols)
				}

				requestsBySession.WithLabelValues(strconv.FormatBool(session.IsSignedIn(r.Context()))).Inc()
				requestsToURI.WithLabelValues(code, normalizePath(r), r.Method).Inc()
				requests.WithLabelValues(code, r.Method).Inc()
				responseTime.WithLabelValues(worker).Observe(time.Since(start).Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
