package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tabquery/tabquery/internal/auth"
)

type askRequest struct {
	Question string `json:"question"`
}

// handleAsk answers with the recorded query. Translation and execution
// failures are part of that record and still return 200.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAnalytics(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body is too large", false, nil)
			return
		}
		if errors.Is(err, io.EOF) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body is required", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid json", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false, nil)
		return
	}

	q, err := deps.Analytics.Ask(r.Context(), strings.TrimSpace(r.PathValue("dataset")), req.Question)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func handleGetQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAnalytics(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAnalyst); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	q, err := deps.Analytics.GetQuery(r.Context(), strings.TrimSpace(r.PathValue("query")))
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func handleListQueries(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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

	queries, err := deps.Analytics.ListQueries(r.Context(), strings.TrimSpace(r.PathValue("dataset")), limit)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
}
