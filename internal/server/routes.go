package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMw, s.maxBytesMw)
	r.NotFoundHandler = s.loggingMw(s.notFoundHandler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health()).Methods(http.MethodGet)
	api.HandleFunc("/admin/login", s.adminLogin()).Methods(http.MethodPost)

	jobAPI := api.PathPrefix("/job").Subrouter()
	jobAPI.Use(s.authMw)
	jobAPI.HandleFunc("/run", s.jobRun()).Methods(http.MethodPost)
	jobAPI.HandleFunc("/last", s.jobLast()).Methods(http.MethodGet)

	return r
}
