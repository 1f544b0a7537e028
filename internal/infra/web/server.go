package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the HTTP surface: batch submission, the review API, and the
// generation webhook. Everything except the webhook, login and health probes
// sits behind the reviewer session.
type Server struct {
	batchUC  usecase.BatchProcessor
	reviewUC usecase.ReviewUseCase
	executor usecase.JobExecutor
	jobs     repository.JobRepository
	batches  repository.BatchRepository
	auth     *AuthManager
	log      *zerolog.Logger
}

func NewServer(
	batchUC usecase.BatchProcessor,
	reviewUC usecase.ReviewUseCase,
	executor usecase.JobExecutor,
	jobs repository.JobRepository,
	batches repository.BatchRepository,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	sub := logger.With().Str("component", "web").Logger()
	return &Server{
		batchUC:  batchUC,
		reviewUC: reviewUC,
		executor: executor,
		jobs:     jobs,
		batches:  batches,
		auth:     auth,
		log:      &sub,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(traceID)
	r.Use(requestLog(s.log))
	r.Use(recoverer(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The backend calls this; it authenticates with the request id it was
	// given at submit time, not with a reviewer session.
	r.Post("/webhook/generation", s.webhookHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.loginHandler())
		r.Post("/logout", s.logoutHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.sessionRequired)

			r.Post("/batches", s.batchCreateHandler())
			r.Post("/batches/pipeline", s.pipelineBatchCreateHandler())
			r.Get("/batches/{id}", s.batchGetHandler())
			r.Get("/batches/{id}/jobs", s.batchJobsHandler())
			r.Post("/batches/{id}/caption/draft", s.draftCaptionHandler())

			r.Get("/jobs/{id}", s.jobGetHandler())
			r.Post("/jobs/{id}/approve", s.reviewActionHandler("approve"))
			r.Post("/jobs/{id}/reject", s.reviewActionHandler("reject"))
			r.Post("/jobs/{id}/repost", s.reviewActionHandler("repost"))
			r.Put("/jobs/{id}/overrides", s.setOverridesHandler())
			r.Delete("/jobs/{id}/overrides", s.resetOverridesHandler())
		})
	})

	return r
}

// sessionRequired rejects requests without a valid reviewer JWT.
func (s *Server) sessionRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
