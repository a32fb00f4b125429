package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"inclusion-quiz-service/internal/app"
	"inclusion-quiz-service/internal/domain"
)

// RouterConfig holds what the router needs beyond the service itself.
type RouterConfig struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
}

// NewRouter mounts health, metrics, the attempt websocket and the attempt
// snapshot endpoint.
func NewRouter(service *app.QuizService, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ws := NewWSHandler(service, cfg.AllowedOrigins, cfg.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", ws.ServeWS)

	// websocket connections are long-lived; only plain requests get a timeout
	r.With(middleware.Timeout(15*time.Second)).Get("/attempts/{attemptID}", func(w http.ResponseWriter, req *http.Request) {
		session, err := service.Attempt(chi.URLParam(req, "attemptID"))
		if errors.Is(err, domain.ErrAttemptNotFound) {
			writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, session.View())
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
