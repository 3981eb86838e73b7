package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cscx/pulse/internal/adapters/repository"
	"github.com/cscx/pulse/internal/domain/calibration"
	"github.com/cscx/pulse/internal/domain/model"
)

const (
	defaultHistoryDays  = 90
	defaultHistoryLimit = 100
)

// ScoresHandler serves score reads and per-record feedback under
// /scores/.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleScores dispatches:
//
//	GET  /scores/{entity_id}           -> latest score + recommendations
//	GET  /scores/{entity_id}/history   -> score history
//	POST /scores/{record_id}/feedback  -> submit feedback
func (h *ScoresHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/scores/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		h.handleLatest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
		h.handleHistory(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "feedback" && r.Method == http.MethodPost:
		h.handleFeedback(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *ScoresHandler) handleLatest(w http.ResponseWriter, r *http.Request, entityID string) {
	const op = "api.get_score"
	rec, err := h.deps.LatestScore(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	// Recommendations are attached best-effort; the score itself is
	// still served when the lookup fails.
	recs, err := h.deps.RecommendationsFor(r.Context(), rec.RecordID)
	if err != nil {
		recs = nil
	}
	writeJSON(w, http.StatusOK, toScoreResponse(rec, recs))
}

func (h *ScoresHandler) handleHistory(w http.ResponseWriter, r *http.Request, entityID string) {
	const op = "api.get_history"
	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		days = v
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = v
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	recs, err := h.deps.ScoreHistory(r.Context(), entityID, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	out := make([]scoreResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toScoreResponse(rec, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": entityID,
		"days":      days,
		"records":   out,
	})
}

type feedbackRequest struct {
	Verdict          string `json:"verdict"`
	Outcome          string `json:"outcome"`
	RecommendationID string `json:"recommendation_id"`
}

func (h *ScoresHandler) handleFeedback(w http.ResponseWriter, r *http.Request, recordID string) {
	const op = "api.post_feedback"
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	fb, err := h.deps.SubmitFeedback(r.Context(), model.FeedbackRecord{
		RecordID:         recordID,
		RecommendationID: req.RecommendationID,
		Verdict:          model.FeedbackVerdict(req.Verdict),
		Outcome:          req.Outcome,
	})
	if err != nil {
		switch {
		case errors.Is(err, calibration.ErrInvalidFeedback):
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        fb.ID,
		"record_id": fb.RecordID,
		"status":    "recorded",
	})
}
