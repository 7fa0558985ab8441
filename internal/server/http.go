package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"supplyline/internal/game"
	"supplyline/internal/observability"
	"supplyline/internal/query"
	"supplyline/internal/registry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server exposes the game engine over HTTP: game control endpoints,
// statistics replay, health probes, and the websocket gateway.
type Server struct {
	engine  *registry.Engine
	stats   *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
	mux     *chi.Mux
}

func New(
	engine *registry.Engine,
	stats *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	s := &Server{
		engine:  engine,
		stats:   stats,
		health:  health,
		metrics: metrics,
		log:     log,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1/games/{id}", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/stats", s.handleStats)
		r.Post("/stats", s.handleStats)
		r.Get("/state", s.handleState)
		r.Post("/start", s.handleStart)
		r.Post("/orders", s.handleOrder)
		r.Post("/stop", s.handleStop)
		r.Put("/classes", s.handleClasses)
		r.Get("/ws", s.handleWS)
	})
}

func (s *Server) gameID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, game.Errorf(game.KindBadRequest, "invalid game id")
	}
	return id, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "stats", err)
		return
	}

	kinds := query.AllStatKinds()
	switch r.Method {
	case http.MethodPost:
		var in struct {
			Kinds []query.StatKind `json:"kinds"`
		}
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, "stats", game.WrapErr(game.KindBadRequest, err, "decode body"))
			return
		}
		if len(in.Kinds) > 0 {
			kinds = in.Kinds
		}
	default:
		if raw := r.URL.Query().Get("kind"); raw != "" {
			kinds = nil
			for _, k := range strings.Split(raw, ",") {
				kinds = append(kinds, query.StatKind(strings.TrimSpace(k)))
			}
		}
	}

	stats, err := s.stats.Stats(r.Context(), gameID, kinds)
	if err != nil {
		s.writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "state", err)
		return
	}
	update, err := s.engine.CurrentUpdate(r.Context(), gameID)
	if err != nil {
		s.writeError(w, "state", err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "start", err)
		return
	}

	var in struct {
		Players []uuid.UUID                `json:"players"`
		Classes map[uuid.UUID]game.ClassID `json:"classes"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, "start", game.WrapErr(game.KindBadRequest, err, "decode body"))
		return
	}

	if err := s.engine.StartGame(r.Context(), gameID, in.Players, in.Classes); err != nil {
		s.writeError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "orders", err)
		return
	}

	var in struct {
		PlayerID uuid.UUID `json:"player_id"`
		Quantity int64     `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, "orders", game.WrapErr(game.KindBadRequest, err, "decode body"))
		return
	}
	if in.Quantity < 0 {
		s.writeError(w, "orders", game.Errorf(game.KindBadRequest, "quantity must not be negative"))
		return
	}

	if err := s.engine.SubmitRoundEnd(r.Context(), gameID, in.PlayerID, in.Quantity); err != nil {
		s.writeError(w, "orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "stop", err)
		return
	}
	if err := s.engine.StopGame(r.Context(), gameID); err != nil {
		s.writeError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "classes", err)
		return
	}

	var in struct {
		Classes map[uuid.UUID]game.ClassID `json:"classes"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, "classes", game.WrapErr(game.KindBadRequest, err, "decode body"))
		return
	}
	if len(in.Classes) == 0 {
		s.writeError(w, "classes", game.Errorf(game.KindBadRequest, "no class assignments"))
		return
	}

	if err := s.engine.UpdatePlayerClasses(r.Context(), gameID, in.Classes); err != nil {
		s.writeError(w, "classes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, err error) {
	kind := game.KindOf(err)
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, kind.String()).Inc()
	}
	writeJSON(w, statusForKind(kind), map[string]any{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

func statusForKind(kind game.Kind) int {
	switch kind {
	case game.KindBadRequest:
		return http.StatusBadRequest
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindConflict:
		return http.StatusConflict
	case game.KindConfig:
		return http.StatusUnprocessableEntity
	case game.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
