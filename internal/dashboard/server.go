// Package dashboard is a tiny read-only HTTP status page: one page
// rendering the current state snapshot, active alerts, and fence
// status. It is not the REST control surface the spec explicitly
// excludes (no writes, no schema validation) — it exists purely so an
// operator can glance at boat state from a browser without a client
// app. The embed.FS template-loading and render pattern is adapted
// from the teacher's internal/web package.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/compendiumnav/boatrelay/internal/journal"
	"github.com/compendiumnav/boatrelay/internal/mqttbridge"
	"github.com/compendiumnav/boatrelay/internal/statebus"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Server is the status dashboard's HTTP server.
type Server struct {
	port      int
	bus       *statebus.Bus
	store     *journal.Store
	bridge    *mqttbridge.Bridge
	log       *slog.Logger
	templates *template.Template
	startedAt time.Time

	httpServer *http.Server
}

// New constructs a Server. store and bridge are optional (nil is
// tolerated): a deployment with no MQTT bridge configured, or no
// journal wired, still gets a dashboard with just the live snapshot.
func New(port int, bus *statebus.Bus, store *journal.Store, bridge *mqttbridge.Bridge, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		port:      port,
		bus:       bus,
		store:     store,
		bridge:    bridge,
		log:       log,
		templates: loadTemplates(),
		startedAt: time.Now(),
	}
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard: listening", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.render(w, "index.html", s.buildViewData())
}

// render executes the named template into a buffer and writes the
// result only on success, the same error-isolation render does in the
// teacher's internal/web package.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("dashboard: render failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// renderMarkdown converts a short markdown note (an alert/fence
// label or message) to HTML for template embedding. Conversion
// failure falls back to the HTML-escaped raw string rather than
// dropping the note.
func renderMarkdown(src string) template.HTML {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
