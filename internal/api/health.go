package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports the state of a dependency: "ok", "degraded" or "fail".
type ReadinessChecker interface {
	CheckReady() (status, message string)
}

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// HealthHandler serves the liveness, readiness and metrics endpoints.
type HealthHandler struct {
	checkers    map[string]ReadinessChecker
	version     string
	promHandler http.Handler
}

// NewHealthHandler creates a HealthHandler. checkers are keyed by the name
// reported in the readiness body; a nil checker reports "fail".
func NewHealthHandler(version string, checkers map[string]ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		version:     version,
		promHandler: promhttp.Handler(),
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Service   string                 `json:"service"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

// Live answers 200 while the process runs.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Service:   "capcee-ingest",
	})
}

// Ready answers 200 when every dependency is ok or degraded, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Service:   "capcee-ingest",
		Checks:    make(map[string]checkResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers))
	for name, c := range h.checkers {
		res := checkResult{Status: statusFail, Message: "not initialized"}
		if c != nil {
			st, msg := c.CheckReady()
			res = checkResult{Status: st, Message: msg}
		}
		resp.Checks[name] = res
		statuses = append(statuses, res.Status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Metrics serves the Prometheus registry.
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func overallStatus(statuses ...string) string {
	degraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			degraded = true
		}
	}
	if degraded {
		return statusDegraded
	}
	return statusOK
}
