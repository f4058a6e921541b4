package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/observability"
)

// Trigger starts a pipeline run in the background.
type Trigger interface {
	Trigger()
	Running() bool
}

// Deps are the collaborators the HTTP layer reads from.
type Deps struct {
	Records *market.Service
	Jobs    *job.Service
	Sources *ingest.Registry
	Trigger Trigger
	// Ping checks store connectivity for /health.
	Ping    func(ctx context.Context) error
	Metrics *observability.Metrics

	// RateLimit requests per RateWindow per client IP. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(d Deps) http.Handler {
	return newMux(d)
}

func newMux(d Deps) http.Handler {
	h := &handler{
		records: d.Records,
		jobs:    d.Jobs,
		sources: d.Sources,
		trigger: d.Trigger,
		ping:    d.Ping,
		now:     time.Now,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /data", h.listRecords)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("GET /api/v1/sources", h.listSources)
	mux.HandleFunc("GET /api/v1/jobs", h.listJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.getJob)
	mux.HandleFunc("POST /api/v1/pipeline/run", h.runPipeline)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Outermost first: requestID -> logging -> recovery -> rate limit
	var handler http.Handler = mux
	if d.RateLimit > 0 {
		handler = newRateLimiter(d.RateLimit, d.RateWindow, d.Metrics).middleware(handler)
	}
	handler = recovery(handler)
	handler = logging(handler)
	handler = requestID(handler)

	return handler
}
