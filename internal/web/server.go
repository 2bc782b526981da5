// Package web provides an HTTP status server for the recorder.
package web

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/plot"
	"github.com/sweeney/pwm-recorder/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	csvPath    string
	logger     *zap.SugaredLogger
}

// New creates a Server that reads state from the given tracker. csvPath
// is the recording rendered at /plot.png; empty disables the endpoint.
func New(addr string, tracker *status.Tracker, csvPath string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{tracker: tracker, csvPath: csvPath, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/plot.png", s.handlePlot)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.csvPath != ""); err != nil {
		s.logger.Warnf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handlePlot renders the most recent session in the CSV file.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if s.csvPath == "" {
		http.NotFound(w, r)
		return
	}
	if s.tracker.Snapshot().Active() {
		http.Error(w, "session in progress", http.StatusServiceUnavailable)
		return
	}

	tbl, err := csvsink.Read(s.csvPath)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no recording yet", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Warnf("web: read %s: %v", s.csvPath, err)
		http.Error(w, "recording unreadable", http.StatusInternalServerError)
		return
	}

	sessions := tbl.Sessions()
	if len(sessions) == 0 {
		http.Error(w, "no recording yet", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := plot.WritePNG(&buf, sessions[len(sessions)-1]); err != nil {
		s.logger.Warnf("web: render plot: %v", err)
		http.Error(w, "plot failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}
