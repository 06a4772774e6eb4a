package dispatch

import (
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/middleware/logger"
	hmetrics "github.com/joeydtaylor/steeze-pool/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-pool/pkg/session"
	"github.com/joeydtaylor/steeze-pool/pkg/transport/httpx"
)

const HeartbeatPath = "/healthz"

type BuildDeps struct {
	Router     httpx.Router
	Sessions   *session.Manager
	LogMW      *logger.Middleware
	Metrics    http.Handler // nil disables /metrics
	Worker     string
	TrustProxy bool
	Log        *zap.Logger
}

// BuildRouter puts the shared middleware stack and the scrape endpoint in
// front of the dispatcher. Every other request reaches the dispatcher.
func BuildRouter(d *Dispatcher, deps BuildDeps) http.Handler {
	r := deps.Router
	if r == nil {
		r = httpx.NewChi()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat(HeartbeatPath))
	r.Use(SessionMiddleware(deps.Sessions, deps.TrustProxy, log))
	if deps.LogMW != nil {
		r.Use(deps.LogMW.Middleware())
	}
	r.Use(hmetrics.Collect(deps.Worker))

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics)
	}
	r.Fallback(d)
	return r.Mux()
}
