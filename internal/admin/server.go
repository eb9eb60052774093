// Package admin exposes the agent's HTTP surface: health probes,
// Prometheus metrics, recovery status reporting and the registry
// management entrypoints. Every non-probe request passes through the
// recovery coordinator middleware on its way in.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openwallet-foundation/agent-recovery/internal/codec"
	"github.com/openwallet-foundation/agent-recovery/internal/core/domain"
	"github.com/openwallet-foundation/agent-recovery/internal/recovery"
	"github.com/openwallet-foundation/agent-recovery/internal/revocation"
)

// HeaderResolver resolves the tenant from the X-Wallet-ID request header.
type HeaderResolver struct {
	enabled  bool
	disabled map[string]struct{}
}

// NewHeaderResolver builds a resolver. The enabled flag is the global
// recovery switch; tenants listed in disabledTenants have the feature off
// even when it is globally on.
func NewHeaderResolver(enabled bool, disabledTenants []string) *HeaderResolver {
	disabled := make(map[string]struct{}, len(disabledTenants))
	for _, id := range disabledTenants {
		disabled[id] = struct{}{}
	}
	return &HeaderResolver{enabled: enabled, disabled: disabled}
}

func (h *HeaderResolver) ResolveTenant(r *http.Request) (recovery.Tenant, bool) {
	id := r.Header.Get("X-Wallet-ID")
	if id == "" {
		return recovery.Tenant{}, false
	}
	_, off := h.disabled[id]
	return recovery.Tenant{ProfileID: id, RecoveryEnabled: h.enabled && !off}, true
}

// HealthChecker reports whether a named dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the admin HTTP server.
type Server struct {
	srv           *http.Server
	manager       *recovery.Manager
	registrar     *revocation.Registrar
	checkers      map[string]HealthChecker
	cleanupMaxAge time.Duration
	log           *slog.Logger
}

func NewServer(
	port int,
	manager *recovery.Manager,
	registrar *revocation.Registrar,
	coordinator *recovery.Coordinator,
	checkers map[string]HealthChecker,
	cleanupMaxAge time.Duration,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		manager:       manager,
		registrar:     registrar,
		checkers:      checkers,
		cleanupMaxAge: cleanupMaxAge,
		log:           log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleHealthDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /recovery/status", s.handleRecoveryStatus)
	mux.HandleFunc("GET /recovery/failed", s.handleRecoveryFailed)
	mux.HandleFunc("DELETE /recovery/completed", s.handleCleanup)
	mux.HandleFunc("POST /revocation/registries", s.handleCreateRegistry)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      coordinator.Middleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start blocks serving until Stop or a listener error.
func (s *Server) Start() error {
	s.log.Info("admin server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checkers))
	for name, checker := range s.checkers {
		if err := checker.Health(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
	})
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileFrom(w, r)
	if !ok {
		return
	}
	st, err := s.manager.Status(r.Context(), profileID)
	if err != nil {
		s.log.Error("recovery status failed", "profile", profileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status query failed"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRecoveryFailed(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileFrom(w, r)
	if !ok {
		return
	}
	records, err := s.manager.Failed(r.Context(), profileID)
	if err != nil {
		s.log.Error("failed-records query failed", "profile", profileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if records == nil {
		records = []*domain.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(records),
		"failed": records,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileFrom(w, r)
	if !ok {
		return
	}
	deleted, err := s.manager.CleanupOldEvents(r.Context(), profileID, s.cleanupMaxAge)
	if err != nil {
		s.log.Error("event cleanup failed", "profile", profileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type createRegistryRequest struct {
	IssuerID   string `json:"issuer_id"`
	CredDefID  string `json:"cred_def_id"`
	Tag        string `json:"tag"`
	MaxCredNum int    `json:"max_cred_num"`
}

func (s *Server) handleCreateRegistry(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileFrom(w, r)
	if !ok {
		return
	}

	var req createRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.IssuerID == "" || req.CredDefID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "issuer_id and cred_def_id are required"})
		return
	}
	if req.Tag == "" {
		req.Tag = "tag0"
	}
	if req.MaxCredNum <= 0 {
		req.MaxCredNum = 1000
	}

	def := domain.RegistryDefinition{
		IssuerID:   req.IssuerID,
		CredDefID:  req.CredDefID,
		Tag:        req.Tag,
		MaxCredNum: req.MaxCredNum,
	}
	correlationID, err := s.registrar.RequestDefinitionCreate(r.Context(), profileID, def, codec.Options{})
	if err != nil {
		s.log.Error("registry create request failed", "profile", profileID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registry creation failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"correlation_id": correlationID,
		"rev_reg_def_id": revocation.DefinitionID(def),
	})
}

func (s *Server) profileFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-Wallet-ID")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-Wallet-ID header is required"})
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
