package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelops/jitgate/internal/accessrequest"
	"github.com/kestrelops/jitgate/internal/audit"
	"github.com/kestrelops/jitgate/internal/config"
	"github.com/kestrelops/jitgate/internal/metrics"
	"github.com/kestrelops/jitgate/internal/version"
)

// RequestService is the request lifecycle boundary the API exposes.
type RequestService interface {
	DurationOptions(clusterID string, roles []string, resources []accessrequest.ResourceRef) ([]accessrequest.DurationOption, error)
	Create(input accessrequest.CreateInput) (accessrequest.Request, error)
	Get(id string) (accessrequest.Request, error)
	List(query accessrequest.Query) ([]accessrequest.Request, error)
	Approve(id string, decision accessrequest.DecisionInput) (accessrequest.Request, error)
	Deny(id string, decision accessrequest.DecisionInput) (accessrequest.Request, error)
}

type Server struct {
	cfg        config.ServerConfig
	service    RequestService
	auditor    *audit.Writer
	recorder   *metrics.RuntimeMetrics
	httpServer *http.Server
}

func New(cfg config.ServerConfig, service RequestService, auditor *audit.Writer, recorder *metrics.RuntimeMetrics) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18791
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:      cfg,
		service:  service,
		auditor:  auditor,
		recorder: recorder,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.service, s.auditor, s.recorder)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("request service listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// NewHandler builds the JSON API. An empty token disables auth; a nil
// auditor disables the audit trail; a nil recorder disables metrics.
func NewHandler(token string, service RequestService, auditor *audit.Writer, recorder *metrics.RuntimeMetrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": getRequestID(r),
		})
	})

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": getRequestID(r),
		})
	})

	mux.HandleFunc("GET /v1/metrics", authorized(token, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics":    recorder.Snapshot(),
			"request_id": getRequestID(r),
		})
	}))

	mux.HandleFunc("POST /v1/durations", authorized(token, func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		var req struct {
			ClusterID string                      `json:"cluster_id"`
			Roles     []string                    `json:"roles"`
			Resources []accessrequest.ResourceRef `json:"resources"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}

		options, err := service.DurationOptions(req.ClusterID, req.Roles, req.Resources)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"options":    options,
			"request_id": requestID,
		})
	}))

	mux.HandleFunc("POST /v1/requests", authorized(token, func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		var input accessrequest.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}

		created, err := service.Create(input)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		slog.Info("access request created",
			"request_id", requestID,
			"id", created.ID,
			"cluster_id", created.ClusterID,
			"requester", created.Requester)
		recordEvent(auditor, recorder, audit.Event{
			Time:      created.RequestedAt,
			Type:      "request.created",
			RequestID: created.ID,
			Actor:     created.Requester,
			Status:    string(created.Status),
			Note:      created.Reason,
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"request":    created,
			"request_id": requestID,
		})
	}))

	mux.HandleFunc("GET /v1/requests", authorized(token, func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		query := accessrequest.Query{
			Status:    accessrequest.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
			Requester: strings.TrimSpace(r.URL.Query().Get("requester")),
		}
		requests, err := service.List(query)
		if err != nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to list requests")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"requests":   requests,
			"request_id": requestID,
		})
	}))

	mux.HandleFunc("GET /v1/requests/{id}", authorized(token, func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		request, err := service.Get(r.PathValue("id"))
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"request":    request,
			"request_id": requestID,
		})
	}))

	mux.HandleFunc("POST /v1/requests/{id}/approve", authorized(token, decisionHandler(auditor, recorder, "request.approved", service.Approve)))
	mux.HandleFunc("POST /v1/requests/{id}/deny", authorized(token, decisionHandler(auditor, recorder, "request.denied", service.Deny)))

	return instrument(recorder, mux)
}

func decisionHandler(auditor *audit.Writer, recorder *metrics.RuntimeMetrics, eventType string, decide func(id string, decision accessrequest.DecisionInput) (accessrequest.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		var req struct {
			DecidedBy string `json:"decided_by"`
			Note      string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.DecidedBy) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "decided_by is required")
			return
		}

		request, err := decide(r.PathValue("id"), accessrequest.DecisionInput{
			DecidedBy: req.DecidedBy,
			Note:      req.Note,
		})
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		recordEvent(auditor, recorder, audit.Event{
			Time:      request.DecidedAt,
			Type:      eventType,
			RequestID: request.ID,
			Actor:     request.DecidedBy,
			Status:    string(request.Status),
			Note:      request.DecisionNote,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"request":    request,
			"request_id": requestID,
		})
	}
}

// recordEvent appends best-effort; a failed audit or metrics write
// never fails the request.
func recordEvent(auditor *audit.Writer, recorder *metrics.RuntimeMetrics, event audit.Event) {
	if auditor != nil {
		if err := auditor.Append(event); err != nil {
			slog.Warn("failed to append audit event", "type", event.Type, "error", err)
		}
	}
	if _, err := recorder.RecordLifecycleEvent(event.Type); err != nil {
		slog.Warn("failed to record lifecycle metric", "type", event.Type, "error", err)
	}
}

// instrument records latency and status code for every API request.
func instrument(recorder *metrics.RuntimeMetrics, next http.Handler) http.Handler {
	if recorder == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if _, err := recorder.RecordHTTPRequest(time.Since(start), sw.status); err != nil {
			slog.Warn("failed to record http metric", "error", err)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func authorized(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(token) != "" && !isAuthorized(r, token) {
			writeError(w, getRequestID(r), http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, accessrequest.ErrNotFound):
		writeError(w, requestID, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, accessrequest.ErrNotPending):
		writeError(w, requestID, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, accessrequest.ErrDeniedByPolicy):
		writeError(w, requestID, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
