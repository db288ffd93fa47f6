package server

import (
	"net/http"

	"pricewatch/internal/job"
)

func (s Server) jobRun() http.HandlerFunc {
	type response struct {
		Queued  bool `json:"queued"`
		Running bool `json:"running"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tid := getTraceContext(r.Context()).traceID
		if !s.Scheduler.Trigger() {
			s.Logger.Debugf("jobRun: Cycle already running or queued, TraceID: %s", tid)
			s.writeJsonResponse(w, response{Queued: false, Running: s.Scheduler.Running()}, http.StatusConflict)
			return
		}
		s.Logger.Infof("jobRun: Cycle queued, TraceID: %s", tid)
		s.writeJsonResponse(w, response{Queued: true}, http.StatusAccepted)
	}
}

func (s Server) jobLast() http.HandlerFunc {
	type response struct {
		Report job.Report `json:"report"`
		Error  string     `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		last, ok := s.Scheduler.LastResult()
		if !ok {
			http.Error(w, "No cycle has run yet", http.StatusNotFound)
			return
		}
		resp := response{Report: last.Report}
		if last.Err != nil {
			resp.Error = last.Err.Error()
		}
		s.writeJsonResponse(w, resp, http.StatusOK)
	}
}
