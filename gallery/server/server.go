// Package server serves the single-page annotation editor.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/editor"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/session"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/theme"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

//go:embed templates
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	sessionCookie = "gallery_session"
	sweepInterval = time.Minute
)

var funcMap = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// Options wires the server's collaborators.
type Options struct {
	AppName   string
	Editor    *editor.Editor
	Sessions  *session.Manager
	Clock     *theme.Clock
	LogoLight string
	LogoDark  string
}

type Server struct {
	opts    Options
	pages   map[string]*template.Template
	router  *mux.Router
	httpSrv *http.Server
	ln      net.Listener
	addr    string
	now     func() time.Time
	logger  zerolog.Logger
}

// New builds the router and parses the embedded templates.
func New(opts Options, logger zerolog.Logger) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:   opts,
		pages:  pages,
		now:    time.Now,
		logger: logger.With().Str("component", "server").Logger(),
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("getting static subfs: %w", err)
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/logo", s.handleLogo).Methods(http.MethodGet)

	r.HandleFunc("/", s.withSession(s.handleEditor)).Methods(http.MethodGet)
	r.HandleFunc("/records/{index:[0-9]+}", s.withSession(s.handleGoto)).Methods(http.MethodGet)
	r.HandleFunc("/image", s.withSession(s.handleImage)).Methods(http.MethodGet)

	r.HandleFunc("/login", s.withSession(s.handleLogin)).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.withSession(s.handleLogout)).Methods(http.MethodPost)
	r.HandleFunc("/random", s.withSession(s.handleRandom)).Methods(http.MethodPost)
	r.HandleFunc("/next", s.withSession(s.handleNext)).Methods(http.MethodPost)
	r.HandleFunc("/prev", s.withSession(s.handlePrev)).Methods(http.MethodPost)
	r.HandleFunc("/draft", s.withSession(s.handleGenerate)).Methods(http.MethodPost)
	r.HandleFunc("/records/{index:[0-9]+}/draft/save", s.withSession(s.handleSaveDraft)).Methods(http.MethodPost)
	r.HandleFunc("/records/{index:[0-9]+}/draft/discard", s.withSession(s.handleDiscardDraft)).Methods(http.MethodPost)
	r.HandleFunc("/records/{index:[0-9]+}/turns/{pos:[0-9]+}/save", s.withSession(s.handleEditPair)).Methods(http.MethodPost)
	r.HandleFunc("/records/{index:[0-9]+}/turns/{pos:[0-9]+}/delete", s.withSession(s.handleDeletePair)).Methods(http.MethodPost)
	r.HandleFunc("/reload", s.withSession(s.handleReload)).Methods(http.MethodPost)
	r.HandleFunc("/rewrite", s.withSession(s.handleRewrite)).Methods(http.MethodPost)

	s.router = r
	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// parsePages builds a template for each page by combining layout.html with the page template.
func parsePages() (map[string]*template.Template, error) {
	tmplFS, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("getting templates subfs: %w", err)
	}

	layoutBytes, err := fs.ReadFile(tmplFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}

	pageNames := []string{
		"editor.html",
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		pageBytes, err := fs.ReadFile(tmplFS, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		tmpl, err := template.New("layout.html").Funcs(funcMap).Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", name, err)
		}

		if _, err := tmpl.New(name).Parse(string(pageBytes)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}

		pages[name] = tmpl
	}
	return pages, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the server to addr. Call Serve to start handling requests.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	s.ln = ln
	s.addr = ln.Addr().String()
	return nil
}

// Serve starts handling HTTP requests. Blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("serve called before listen")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("shutdown")
		}
	}()
	go s.sweep(ctx)

	s.logger.Info().Str("addr", "http://"+s.addr).Msg("gallery running")

	if err := s.httpSrv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	s.logger.Info().Msg("shut down")
	return nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.opts.Sessions.Sweep()
		}
	}
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, st *session.State)

// withSession resolves the session cookie and runs h while holding the
// session's lock, so requests of one browser never interleave.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}

		st, release, err := s.opts.Sessions.Acquire(id)
		if err != nil {
			s.logger.Error().Err(err).Msg("starting session")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer release()

		if st.ID != id {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    st.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		h(w, r, st)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
