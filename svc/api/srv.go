package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"lclpaste/cfg"
	"lclpaste/svc/auth"
	"lclpaste/svc/db"
	"lclpaste/svc/lim"
	"lclpaste/svc/svc"
	"lclpaste/svc/util"
)

type Server struct {
	router     *chi.Mux
	paste      *svc.Paste
	lim        *lim.Limiter
	cfg        *cfg.Cfg
	store      db.Store
	rdb        *db.Redis
	httpServer *http.Server
}

func NewServer(c *cfg.Cfg, p *svc.Paste, l *lim.Limiter, store db.Store, rdb *db.Redis, resolver *auth.Resolver) *Server {
	r := chi.NewRouter()
	mw := NewMw(l, c, resolver)
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		s := &Server{store: store, rdb: rdb, cfg: c}
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	r.Mount("/debug", middleware.Profiler())

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		if len(c.TrustedProxies) > 0 {
			r.Use(middleware.RealIP)
		}
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.JSONContentType)
		r.Use(mw.OptionalAuth)
		hdl := &Hdl{paste: p, cfg: c}
		// Both verbs create; the client's save shortcut issues PUT.
		r.With(mw.RateLimitWrite).Post("/pastes", hdl.CreatePaste)
		r.With(mw.RateLimitWrite).Put("/pastes", hdl.CreatePaste)
		r.With(mw.RateLimitRead).Get("/pastes/latest", hdl.GetLatest)
		r.With(mw.RateLimitRead, mw.RequireAuth).Get("/pastes/mine", hdl.GetMine)
		r.With(mw.RateLimitRead, mw.RequireAuth).Get("/pastes/ref/{ref}", hdl.GetPasteByRef)
		r.With(mw.RateLimitWrite, mw.RequireAuth).Patch("/pastes/ref/{ref}", hdl.UpdatePaste)
		r.With(mw.RateLimitRead).Get("/pastes/{id}", hdl.GetPaste)
		r.With(mw.RateLimitRead).Get("/config/languages", hdl.GetLanguages)
	})
	s := &Server{
		router: r,
		paste:  p,
		lim:    l,
		cfg:    c,
		store:  store,
		rdb:    rdb,
		httpServer: &http.Server{
			Addr:           ":" + c.Port,
			Handler:        r,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 256 * 1024,
		},
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
func (s *Server) SetTimeouts(read, write, idle time.Duration) {
	s.httpServer.ReadTimeout = read
	s.httpServer.WriteTimeout = write
	s.httpServer.IdleTimeout = idle
}
func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
