// bundlefx/bundlefx.go
package bundlefx

import (
	"go.uber.org/fx"

	"github.com/joeydtaylor/steeze-pool/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-pool/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-pool/pkg/session"
)

// Module provided to fx: sessions, logging and the metrics scrape handler
// every process needs.
var Module = fx.Options(
	session.Module,
	logger.Module,
	metrics.Module,
)
