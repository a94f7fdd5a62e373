package web

import (
	"net/http"
	"strings"

	"mediavault/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	ingestUC  usecase.IngestionUseCase
	captionUC usecase.CaptionUseCase
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(ingestUC usecase.IngestionUseCase, captionUC usecase.CaptionUseCase, apiKey string, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		ingestUC:  ingestUC,
		captionUC: captionUC,
		apiKey:    apiKey,
		log:       &compLog,
	}
}

// Router builds the full route tree. Health and metrics stay outside the
// auth wall; everything under /api/v1 requires the bearer key.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/ingest", ingestHandler(s.ingestUC, s.log))
		r.Post("/ingest/batch", ingestBatchHandler(s.ingestUC, s.log))
		r.Post("/jobs/{jobID}/cancel", cancelJobHandler(s.ingestUC))
		r.Post("/media/{mediaID}/caption", captionRequestHandler(s.captionUC))
		r.Get("/media/{mediaID}/caption/status", captionStatusHandler(s.captionUC))
	})

	return r
}

// authMiddleware provides simple bearer token authentication for the API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
