// Package api implements the service's public HTTP surface: thin
// request dispatch to the compile pipeline, session manager, build
// lock, and rebuild streamer. It holds no state of its own beyond the
// collaborators it was constructed with.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/fastled-compile-svc/internal/buildlock"
	"github.com/ocx/fastled-compile-svc/internal/buildstate"
	"github.com/ocx/fastled-compile-svc/internal/compile"
	"github.com/ocx/fastled-compile-svc/internal/config"
	"github.com/ocx/fastled-compile-svc/internal/dwarfsource"
	"github.com/ocx/fastled-compile-svc/internal/examples"
	"github.com/ocx/fastled-compile-svc/internal/librebuild"
	"github.com/ocx/fastled-compile-svc/internal/reqlog"
	"github.com/ocx/fastled-compile-svc/internal/session"
	"github.com/ocx/fastled-compile-svc/internal/uploadguard"
)

// Server exposes the compile service's HTTP surface. It is a thin
// dispatcher: every field it holds is a collaborator constructed and
// owned elsewhere.
type Server struct {
	Config   *config.Config
	Pipeline *compile.Pipeline
	Streamer *librebuild.Streamer
	Sessions *session.Manager
	Lock     *buildlock.Lock
	State    *buildstate.State
	Bundler  *examples.Bundler
	Resolver *dwarfsource.Resolver
	Upload   *uploadguard.Guard

	// Shutdown is invoked after the /shutdown response is flushed, when
	// ALLOW_SHUTDOWN is set. Tests may substitute a no-op.
	Shutdown func()
}

// Router builds the gorilla/mux router for the full endpoint table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(reqlog.Middleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/compile/wasm/inuse", s.handleInUse).Methods(http.MethodGet)
	r.HandleFunc("/project/init", s.handleProjectInitGet).Methods(http.MethodGet)
	r.HandleFunc("/project/init", s.handleProjectInitPost).Methods(http.MethodPost)
	r.HandleFunc("/dwarfsource", s.handleDwarfSource).Methods(http.MethodPost)
	r.Handle("/compile/wasm", s.requireBearer(http.HandlerFunc(s.handleCompileWasm))).Methods(http.MethodPost)
	r.Handle("/compile/libfastled", s.requireBearer(http.HandlerFunc(s.handleCompileLibfastled))).Methods(http.MethodPost)
	r.Handle("/shutdown", s.requireBearer(http.HandlerFunc(s.handleShutdown))).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, authorization, build, profile, strict, allow_libcompile, no_platformio, native, session_id, dry_run")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireBearer enforces the shared bearer token on protected
// endpoints. It is a low-assurance bot filter, not an authentication
// system, matching the single fixed opaque token spec'd for this
// service.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("authorization")
		want := s.Config.Security.AuthToken
		if got == "" || got != want {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server on the configured port.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%s", s.Config.Server.Port)
	slog.Info("api: listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}
