package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const maxRequestBodyBytes = 1 << 20

// Options tune traffic control and instrumentation of the API handler.
type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	InFlightWait     time.Duration
	MetricsHandler   http.Handler
	InstrumentRoutes func(http.Handler) http.Handler
	Logger           *slog.Logger
	Now              func() time.Time
}

type Router struct {
	sessions     ports.DocentSessions
	searcher     ports.ArtifactSearcher
	database     *domain.ArtifactSet
	images       ports.ImageSource
	reservations ports.ReservationSubmitter
	opts         Options
}

func NewRouter(
	sessions ports.DocentSessions,
	searcher ports.ArtifactSearcher,
	database *domain.ArtifactSet,
	images ports.ImageSource,
	reservations ports.ReservationSubmitter,
	opts Options,
) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InFlightWait <= 0 {
		opts.InFlightWait = 100 * time.Millisecond
	}
	return &Router{
		sessions:     sessions,
		searcher:     searcher,
		database:     database,
		images:       images,
		reservations: reservations,
		opts:         opts,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware(rt.opts.Logger))
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.opts.Logger))

	r.Get("/healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", rt.opts.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if rt.opts.InstrumentRoutes != nil {
			r.Use(rt.opts.InstrumentRoutes)
		}
		if rt.opts.RateLimitRPS > 0 {
			r.Use(rateLimitMiddleware(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst))
		}
		if rt.opts.MaxInFlight > 0 {
			r.Use(func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.opts.MaxInFlight, rt.opts.InFlightWait)
			})
		}

		r.Post("/sessions", rt.createSession)
		r.Get("/sessions/{sessionID}", rt.getSession)
		r.Delete("/sessions/{sessionID}", rt.deleteSession)
		r.Post("/sessions/{sessionID}/move", rt.moveSession)
		r.Post("/sessions/{sessionID}/messages", rt.postMessage)

		r.Get("/artifacts/{artifactID}/image", rt.artifactImage)
		r.Post("/search", rt.search)

		r.Get("/reservations/options", rt.reservationOptions)
		r.Post("/reservations", rt.submitReservation)
		r.Get("/reservations/{reservationID}", rt.getReservation)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyDomainError(err)
	if status >= http.StatusInternalServerError {
		rt.opts.Logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
