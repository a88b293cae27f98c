package server

import (
	"encoding/json"
	"net/http"

	"github.com/mattcodi/fleet-updater/internal/github"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
	"github.com/mattcodi/fleet-updater/internal/repository/state"
	"github.com/mattcodi/fleet-updater/internal/service/bootstrap"
	"github.com/mattcodi/fleet-updater/internal/service/distributor"
)

// service wires the HTTP routes to the distributor and bootstrap flows.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// distributor runs the apply pipeline.
	distributor *distributor.Service
	// client creates remote repositories.
	client *github.Client
	// git executes bootstrap init steps.
	git gitops.Runner
	// repo serves read-only apply records.
	repo state.Repository
	// projectsRoot overrides where bootstrapped projects are created.
	projectsRoot string
}

// response is the uniform JSON payload of every endpoint.
type response struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
	URL    string `json:"url,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// newService creates the HTTP facade over the provided collaborators.
func newService(dist *distributor.Service, client *github.Client, git gitops.Runner, repo state.Repository) *service {
	return &service{
		distributor: dist,
		client:      client,
		git:         git,
		repo:        repo,
	}
}

// routes builds the request multiplexer.
func (s *service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /update/{name}", s.handleUpdate)
	mux.HandleFunc("POST /create-repo/{name}", s.handleCreateRepo)
	mux.HandleFunc("GET /status", s.handleStatus)

	return mux
}

// handleUpdate triggers the apply pipeline for one project.
func (s *service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := logger.WithKV(r.Context(), "project", name)

	message, err := s.distributor.ApplyUpdate(ctx, name)
	if err != nil {
		logger.ErrorKV(ctx, "Update failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Status: "error", Detail: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, response{Status: "ok", Msg: message})
}

// handleCreateRepo bootstraps a new remote repository.
func (s *service) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	opts := &bootstrap.Options{
		Name:         r.PathValue("name"),
		Description:  r.URL.Query().Get("description"),
		ProjectsRoot: s.projectsRoot,
	}

	url, err := bootstrap.RunWithClient(r.Context(), s.client, s.git, opts)
	if err != nil {
		logger.ErrorKV(r.Context(), "Repository creation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Status: "error", Detail: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, response{Status: "ok", URL: url})
}

// handleStatus returns every recorded apply.
func (s *service) handleStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.All(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, response{Status: "error", Detail: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(records)
}

// writeJSON renders a response payload with the provided status code.
func writeJSON(w http.ResponseWriter, statusCode int, payload response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(payload)
}
