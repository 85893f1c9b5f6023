package httpserver

import (
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	Sessions SessionCounter
	Metrics  *metric.Registry
	Logger   logger.Logger
	Clock    clockwork.Clock
}

// NewRouter builds the admin handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", healthHandler(cfg.Sessions, clock))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	return Chain(mux, RequestID(), Recover(log), AccessLog(log))
}
