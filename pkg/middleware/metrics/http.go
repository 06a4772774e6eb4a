package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// NewPromHttpHandler returns the /metrics handler.
func NewPromHttpHandler() http.Handler { return promhttp.Handler() }

type Handler struct{ http.Handler }

// ProvideMetrics is the Fx provider for the scrape handler.
func ProvideMetrics() Handler { return Handler{NewPromHttpHandler()} }

var Module = fx.Options(
	fx.Provide(ProvideMetrics),
)
