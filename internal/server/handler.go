package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ahmethakanbesel/market-ingest/internal/apperror"
	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
)

const (
	dbConnected    = "CONNECTED"
	dbDisconnected = "DISCONNECTED"
)

type handler struct {
	records *market.Service
	jobs    *job.Service
	sources *ingest.Registry
	trigger Trigger
	ping    func(ctx context.Context) error
	now     func() time.Time
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	DBConnectivity string    `json:"db_connectivity"`
}

// health reports UP while the process serves requests; store problems show
// up in db_connectivity only.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	db := dbDisconnected
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			db = "ERROR: " + err.Error()
		} else {
			db = dbConnected
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "UP",
		Timestamp:      h.now().UTC(),
		DBConnectivity: db,
	})
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "page must be a positive integer"))
		return
	}
	limit, err := intParam(q.Get("limit"), market.DefaultPageLimit)
	if err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "limit must be between 1 and 100"))
		return
	}

	req := market.ListRecordsRequest{
		Page:   page,
		Limit:  limit,
		Symbol: q.Get("symbol"),
	}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, r, appErr)
		return
	}

	resp, err := h.records.ListRecords(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.RequestID = requestIDFrom(r.Context())

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.jobs.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sources.Names())
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "invalid run id"))
		return
	}

	req := job.GetRunRequest{ID: id}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, r, appErr)
		return
	}

	run, err := h.jobs.Get(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeError(w, r, apperror.New(apperror.BadRequest, "limit must be between 1 and 500"))
		return
	}

	req := job.ListRunsRequest{
		Source: r.URL.Query().Get("source"),
		Limit:  limit,
	}

	runs, err := h.jobs.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

type triggerResponse struct {
	Status string `json:"status"`
}

func (h *handler) runPipeline(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, r, apperror.New(apperror.Unavailable, "pipeline trigger not configured"))
		return
	}
	if h.trigger.Running() {
		writeError(w, r, apperror.New(apperror.Conflict, "pipeline run already in progress"))
		return
	}
	h.trigger.Trigger()
	writeJSON(w, http.StatusAccepted, triggerResponse{Status: "triggered"})
}

// intParam parses a query value, returning def when it is empty.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
