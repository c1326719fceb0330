// Package api exposes the reconciliation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/logging"
	"github.com/jask/bankrecon/internal/scheduler"
	"github.com/jask/bankrecon/internal/service"
)

// Batches runs passes over every active account.
type Batches interface {
	SyncAll(ctx context.Context) (scheduler.BatchResult, error)
	ReconcileAll(ctx context.Context) (scheduler.BatchResult, error)
}

// Server is the HTTP API server.
type Server struct {
	engine  *service.Engine
	batches Batches
	metrics http.Handler
	log     *zap.Logger
}

// NewServer creates a new API server. metrics may be nil to disable /metrics.
func NewServer(engine *service.Engine, batches Batches, metrics http.Handler, logger *zap.Logger) *Server {
	return &Server{engine: engine, batches: batches, metrics: metrics, log: logging.OrNop(logger)}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleConnect)
		r.Post("/accounts/{id}/sync", s.handleSync)
		r.Post("/accounts/{id}/deactivate", s.handleDeactivate)
		r.Get("/accounts/{id}/reconciliation", s.handleStatus)
		r.Get("/accounts/{id}/reviews", s.handleReviews)
		r.Post("/reconciliations", s.handleManual)
		r.Post("/sync-all", s.handleSyncAll)
		r.Post("/reconcile-all", s.handleReconcileAll)
	})
	return r
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.engine.ListAccounts(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accts})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req service.ConnectRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.ConnectAccount(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.SyncAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.ReconciliationStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.engine.PendingReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	var req service.ManualRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.engine.ManualReconcile(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":             rec.ID,
		"account_id":     rec.AccountID,
		"transaction_id": rec.TransactionID,
		"sale_id":        rec.SaleID,
		"type":           rec.Type,
		"confidence":     rec.Confidence,
		"notes":          rec.Notes,
		"created_by":     rec.CreatedBy,
		"created_at":     rec.CreatedAt,
	})
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	s.batch(w, r, s.batches.SyncAll)
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	s.batch(w, r, s.batches.ReconcileAll)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request, run func(context.Context) (scheduler.BatchResult, error)) {
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "batches are not enabled")
		return
	}
	res, err := run(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail maps engine errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrAlreadyReconciled),
		errors.Is(err, service.ErrSaleNotPending):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"status":  status,
		},
	})
}
