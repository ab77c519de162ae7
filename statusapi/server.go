// Package statusapi exposes a read-only HTTP diagnostics surface over the
// runtime's device roster, loaded track metadata, and waveform caches.
package statusapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nxslink/beatlink/beat"
	"github.com/nxslink/beatlink/connection"
	"github.com/nxslink/beatlink/device"
	"github.com/nxslink/beatlink/metadata"
	"github.com/nxslink/beatlink/waveform"
)

// Server holds the HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux

	devices     *device.Finder
	beats       *beat.Finder
	tracks      *metadata.Finder
	waveforms   *waveform.Finder
	connections *connection.Manager
}

// NewServer creates the diagnostics HTTP handler with all routes mounted.
// Any dependency may be nil if that component isn't running; its routes
// then report 503.
func NewServer(devices *device.Finder, beats *beat.Finder, tracks *metadata.Finder, waveforms *waveform.Finder, connections *connection.Manager) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		devices:     devices,
		beats:       beats,
		tracks:      tracks,
		waveforms:   waveforms,
		connections: connections,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(StructuredLogger)
	r.Use(Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/devices", s.handleDevices)
		r.Get("/tracks", s.handleTracks)
		r.Get("/tracks/{player}", s.handleTrackFor)
		r.Get("/waveforms/stats", s.handleWaveformStats)
		r.Get("/connections", s.handleConnections)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
