package api

import (
	"net/http"
	"strings"

	"github.com/tabquery/tabquery/internal/auth"
)

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAnalytics(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}

	datasets, err := deps.Analytics.ListDatasets(r.Context(), limit)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAnalytics(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	dataset, err := deps.Analytics.GetDataset(r.Context(), strings.TrimSpace(r.PathValue("dataset")))
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAnalytics(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	schema, err := deps.Analytics.GetSchema(r.Context(), strings.TrimSpace(r.PathValue("dataset")))
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func handleDeleteDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAnalytics(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	datasetID := strings.TrimSpace(r.PathValue("dataset"))
	if err := deps.Analytics.DeleteDataset(r.Context(), datasetID); err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "dataset_id": datasetID})
}
