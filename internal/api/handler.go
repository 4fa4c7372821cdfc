package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabquery/tabquery/internal/analytics"
	"github.com/tabquery/tabquery/internal/auth"
	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/config"
	"github.com/tabquery/tabquery/internal/history"
	"github.com/tabquery/tabquery/internal/maintenance"
	"github.com/tabquery/tabquery/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// Analytics is the part of analytics.Service served over HTTP.
type Analytics interface {
	ListDatasets(ctx context.Context, limit int) ([]catalog.Dataset, error)
	GetDataset(ctx context.Context, datasetID string) (catalog.Dataset, error)
	GetSchema(ctx context.Context, datasetID string) (catalog.Schema, error)
	DeleteDataset(ctx context.Context, datasetID string) error
	Ask(ctx context.Context, datasetID, question string) (history.Query, error)
	GetQuery(ctx context.Context, queryID string) (history.Query, error)
	ListQueries(ctx context.Context, datasetID string, limit int) ([]history.Query, error)
}

type MaintenanceRunner interface {
	RunRetentionOnce(ctx context.Context) (maintenance.RetentionSummary, error)
	RunIntegrityCheckOnce(ctx context.Context, datasetID string) (maintenance.IntegritySummary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Analytics         Analytics
	Maintenance       MaintenanceRunner
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxQuestionBytes = 16 << 10
)

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]func(Dependencies, http.ResponseWriter, *http.Request){
		"GET /v1/datasets":                      handleListDatasets,
		"GET /v1/datasets/{dataset}":            handleGetDataset,
		"DELETE /v1/datasets/{dataset}":         handleDeleteDataset,
		"GET /v1/datasets/{dataset}/schema":     handleGetSchema,
		"POST /v1/datasets/{dataset}/questions": handleAsk,
		"GET /v1/datasets/{dataset}/queries":    handleListQueries,
		"GET /v1/queries/{query}":               handleGetQuery,
		"POST /v1/integrity/run":                handleIntegrityRun,
		"POST /v1/retention/run":                handleRetentionRun,
	}

	protected := http.NewServeMux()
	for pattern, handle := range routes {
		protected.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// requireRole passes requests without an identity; those only reach handlers
// when authentication is disabled.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return errors.New("missing required role " + strconv.Quote(role))
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeServiceError maps an analytics error onto the envelope. Internal
// details stay in the log.
func writeServiceError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	kind := analytics.Classify(err)
	code := strings.ToUpper(string(kind))
	switch kind {
	case analytics.KindNotFound:
		writeError(r.Context(), w, http.StatusNotFound, code, analytics.UserMessage(kind), false, nil)
	case analytics.KindIngestion:
		writeError(r.Context(), w, http.StatusBadRequest, code, analytics.UserMessage(kind), false, nil)
	case analytics.KindExecutionTimeout:
		writeError(r.Context(), w, http.StatusGatewayTimeout, code, analytics.UserMessage(kind), true, nil)
	default:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusInternalServerError, code, analytics.UserMessage(kind), true, nil)
	}
}

func requireAnalytics(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Analytics == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ANALYTICS_NOT_CONFIGURED", "analytics service is not configured", false, nil)
		return false
	}
	return true
}
