// Package server exposes publishing, post enhancement and credential lookup
// over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/blacktop/lipost/internal/credentials"
	"github.com/blacktop/lipost/internal/enhance"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxUploadBytes = 100 << 20
	shutdownTimeout       = 10 * time.Second
)

//go:generate go run go.uber.org/mock/mockgen -source=server.go -destination=mocks/mock.go -package=mocks
type Publisher interface {
	Name() string
	Publish(ctx context.Context, req share.PostRequest) (share.Result, error)
}

type Enhancer interface {
	Enhance(ctx context.Context, req enhance.Request, emit enhance.EmitFunc) (string, error)
}

type Resolver interface {
	Resolve(ctx context.Context, userID string) (credentials.Credentials, error)
}

// Defaults are the LinkedIn credentials used when a share request carries
// none of its own.
type Defaults struct {
	AccessToken string
	PersonID    string
}

// Options wires the server's collaborators. Enhancer and Resolver may be
// nil, in which case their routes answer with an error.
type Options struct {
	Publisher      Publisher
	Enhancer       Enhancer
	Resolver       Resolver
	Defaults       Defaults
	MaxUploadBytes int64
}

// Server is the HTTP front end.
type Server struct {
	opts   Options
	router chi.Router
}

// New builds the router.
func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logutil.Warnf("write error: %v", err)
		}
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/share", s.handleShare)
		r.Post("/chat", s.handleChat)
		r.Get("/getsub", s.handleGetSub)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logutil.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logutil.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logutil.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		).Info("request")
	})
}
