package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"renju/game"
	"renju/searcher"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Server answers move requests with a single search controller. Requests are
// served one at a time so that consecutive positions of a game can reuse the
// search tree.
type Server struct {
	mu     sync.Mutex
	mcts   *searcher.MCTS
	size   int
	router chi.Router
}

type coordDTO struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type moveRequest struct {
	Board       [][]int   `json:"board"`
	LastMove    *coordDTO `json:"last_move,omitempty"`
	MoveNumber  int       `json:"move_number"`
	Exploration bool      `json:"exploration"`
}

type moveResponse struct {
	Move      coordDTO  `json:"move"`
	Value     float64   `json:"value"`
	Pi        []float64 `json:"pi"`
	Episodes  int       `json:"episodes"`
	TreeReset bool      `json:"tree_reset"`
}

type candidatesRequest struct {
	Board   [][]int    `json:"board"`
	Color   int        `json:"color"`
	History []coordDTO `json:"history"` // Moves played so far, oldest first
	All     bool       `json:"all"`
}

type candidateDTO struct {
	coordDTO
	Score float64 `json:"score"`
}

func New(mcts *searcher.MCTS, size int) *Server {
	s := &Server{mcts: mcts, size: size}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Post("/move", s.handleMove)
	r.Post("/candidates", s.handleCandidates)
	r.Post("/reset", s.handleReset)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()
	log.Info().Str("addr", addr).Msg("move service listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err, ok := <-serverErrCh:
		if ok {
			return fmt.Errorf("move service: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		return server.Close()
	}
	return nil
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var payload moveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	board, err := s.parseBoard(payload.Board)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if finished(board) {
		writeError(w, http.StatusConflict, "game is already over")
		return
	}
	var lastMove game.Coord
	hasLast := payload.LastMove != nil
	if hasLast {
		lastMove = game.Coord{Row: payload.LastMove.Row, Col: payload.LastMove.Col}
		if board.At(lastMove) == game.Empty {
			writeError(w, http.StatusBadRequest, "last move is not on the board")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcts.SetExploration(payload.Exploration)
	decision, err := s.mcts.ChooseMove(r.Context(), board, lastMove, hasLast, payload.MoveNumber)
	switch {
	case errors.Is(err, searcher.ErrNoLegalChild):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("search failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, moveResponse{
		Move:      coordDTO{Row: decision.Move.Row, Col: decision.Move.Col},
		Value:     decision.Value,
		Pi:        decision.Pi,
		Episodes:  decision.Metric.Episodes,
		TreeReset: decision.Metric.IsTreeReset,
	})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var payload candidatesRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	board, err := s.parseBoard(payload.Board)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	color := board.ToMove()
	switch {
	case payload.Color > 0:
		color = game.Black
	case payload.Color < 0:
		color = game.White
	}

	generator := game.NewGenerator(color)
	for _, c := range payload.History {
		generator.Push(game.Coord{Row: c.Row, Col: c.Col})
	}
	// Without a history only a full scan finds anything
	ranked, err := generator.Rank(board, payload.All || len(payload.History) == 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	candidates := make([]candidateDTO, len(ranked))
	for i, c := range ranked {
		candidates[i] = candidateDTO{coordDTO: coordDTO{Row: c.Coord.Row, Col: c.Coord.Col}, Score: c.Score}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcts.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) parseBoard(rows [][]int) (*game.Board, error) {
	if len(rows) != s.size {
		return nil, fmt.Errorf("board must have %d rows, got %d", s.size, len(rows))
	}
	return game.FromRows(rows)
}

// finished reports whether some stone already completes five in a row.
func finished(board *game.Board) bool {
	for _, c := range board.Occupied() {
		if board.IsFive(c) {
			return true
		}
	}
	return false
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("request served")
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
