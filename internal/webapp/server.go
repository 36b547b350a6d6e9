// Package webapp serves the Telegram web app that lists and selects
// organizations for the chat that opened it.
package webapp

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/internal/profile"
	"github.com/m3rciful/sellerbot/internal/session"
)

const component = "http"

//go:embed static/profile.html
var static embed.FS

// Selector makes a profile the chat's active one.
type Selector interface {
	Select(ctx context.Context, chatID int64, profileID string) (*session.ChatSession, error)
}

// ChatLocker orders work on one chat with the bot's own update handlers.
type ChatLocker interface {
	Lock(chatID int64) func()
}

// Options configure a Server.
type Options struct {
	Listen         string
	BotToken       string
	InitDataTTL    time.Duration
	AllowedOrigins []string

	Store    session.Store
	Profiles Selector
	// OnSelected runs after a successful selection, e.g. to redraw the chat.
	OnSelected func(ctx context.Context, chatID int64)
	// Locker, when set, is held for the chat across the selection and OnSelected.
	Locker ChatLocker

	now func() time.Time
}

type Server struct {
	opts   Options
	router chi.Router
}

func New(opts Options) *Server {
	if opts.now == nil {
		opts.now = time.Now
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/app/profile", s.page)
	r.Route("/api/profile", func(r chi.Router) {
		r.Get("/list", s.list)
		r.Post("/select", s.selectProfile)
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, component, "http.listen", slog.String("listen", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webapp: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webapp: shutdown: %w", err)
	}
	logger.Info(ctx, component, "http.stopped")
	return nil
}

func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	body, err := static.ReadFile("static/profile.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

type listResponse struct {
	Profiles        []session.Profile `json:"profiles"`
	ActiveProfileID string            `json:"active_profile_id"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	data, ok := s.verify(w, r, r.URL.Query().Get("init_data"))
	if !ok {
		return
	}
	sess, err := s.opts.Store.Get(r.Context(), data.UserID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, err)
		return
	}
	resp := listResponse{Profiles: []session.Profile{}}
	if sess.IsAuthorized {
		resp.Profiles = sess.Profiles
		resp.ActiveProfileID = sess.ActiveProfileID
	}
	writeJSON(w, http.StatusOK, resp)
}

type selectRequest struct {
	InitData  string `json:"init_data"`
	ProfileID string `json:"profile_id"`
}

func (s *Server) selectProfile(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if strings.TrimSpace(req.ProfileID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, errors.New("profile_id required"))
		return
	}
	data, ok := s.verify(w, r, req.InitData)
	if !ok {
		return
	}

	ctx := logger.WithUpdateMeta(r.Context(), 0, data.UserID, data.UserID)
	if s.opts.Locker != nil {
		unlock := s.opts.Locker.Lock(data.UserID)
		defer unlock()
	}
	_, err := s.opts.Profiles.Select(ctx, data.UserID, req.ProfileID)
	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		writeError(ctx, w, http.StatusNotFound, err)
		return
	case errors.Is(err, profile.ErrNotAuthorized):
		writeError(ctx, w, http.StatusForbidden, err)
		return
	case err != nil:
		writeError(ctx, w, http.StatusInternalServerError, err)
		return
	}
	if s.opts.OnSelected != nil {
		s.opts.OnSelected(ctx, data.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request, raw string) (InitData, bool) {
	if raw == "" {
		writeError(r.Context(), w, http.StatusBadRequest, errors.New("init_data required"))
		return InitData{}, false
	}
	data, err := VerifyInitData(raw, s.opts.BotToken, s.opts.InitDataTTL, s.opts.now())
	switch {
	case errors.Is(err, ErrMalformed):
		writeError(r.Context(), w, http.StatusBadRequest, err)
		return InitData{}, false
	case err != nil:
		writeError(r.Context(), w, http.StatusUnauthorized, err)
		return InitData{}, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(ctx context.Context, w http.ResponseWriter, code int, err error) {
	level := slog.LevelInfo
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Event(ctx, component, level, "http.error",
		slog.Int("http_code", code),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	writeJSON(w, code, map[string]string{"error": http.StatusText(code)})
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.Debug(ctx, component, "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}
