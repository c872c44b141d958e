// Package status defines the local status API: health, connections, the
// request log and metrics.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"goji.io"
	"goji.io/pat"

	"hop.computer/passage/app"
	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/metrics"
)

// Server is an http.Handler that serves the status endpoints.
type Server struct {
	*goji.Mux
	rt *app.Runtime
}

// New creates a Server. m may be nil, in which case /metrics is not served.
func New(rt *app.Runtime, m *metrics.Metrics) Server {
	s := Server{
		Mux: goji.NewMux(),
		rt:  rt,
	}
	s.Handle(pat.Get("/health"), http.HandlerFunc(s.health))
	s.Handle(pat.Get("/connections"), http.HandlerFunc(s.connections))
	s.Handle(pat.Get("/logs"), http.HandlerFunc(s.logs))
	s.Handle(pat.Get("/logs/:id"), http.HandlerFunc(s.logByID))
	if m != nil {
		s.Handle(pat.Get("/metrics"), m.Handler())
	}
	return s
}

// Handler wraps s for cross-origin use from a browser dashboard.
func (s Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s)
}

// HealthResponse is the JSON structure returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	App         string `json:"app"`
	Version     string `json:"version"`
	Online      int    `json:"online"`
	Connections int    `json:"connections"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.Debugf("status: encode response: %s", err)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	conns := s.rt.Connections()
	out := HealthResponse{
		Status:      "ok",
		App:         common.AppName,
		Version:     common.Version,
		Connections: len(conns),
	}
	for _, c := range conns {
		if c.State == core.Online {
			out.Online++
		}
	}
	if out.Online < out.Connections {
		out.Status = "degraded"
	}
	writeJSON(w, &out)
}

func (s *Server) connections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rt.Connections())
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	snap := s.rt.Ring().Snapshot()
	writeJSON(w, &snap)
}

func (s *Server) logByID(w http.ResponseWriter, r *http.Request) {
	id := pat.Param(r, "id")
	snap := s.rt.Ring().Snapshot()
	for i := len(snap.Records) - 1; i >= 0; i-- {
		if snap.Records[i].ID == id {
			writeJSON(w, &snap.Records[i])
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

// ListenAndServe serves h on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "status listen on %s", addr)
	}
	return Serve(ctx, ln, h)
}

// Serve serves h on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	logrus.Infof("status: serving on http://%s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
