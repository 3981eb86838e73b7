package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cscx/pulse/internal/domain/calibration"
	"github.com/cscx/pulse/internal/domain/scoring"
)

// ModelsHandler serves scoring-model reads and recalibration.
type ModelsHandler struct {
	deps Dependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps Dependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// HandleModels dispatches:
//
//	GET  /models/{name}              -> all published versions
//	POST /models/{name}/recalibrate  -> run calibration, publish new version
func (h *ModelsHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/models/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "recalibrate" && r.Method == http.MethodPost:
		h.handleRecalibrate(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *ModelsHandler) handleGet(w http.ResponseWriter, r *http.Request, name string) {
	const op = "api.get_model"
	versions, err := h.deps.ModelVersions(r.Context(), name)
	if err != nil {
		if errors.Is(err, scoring.ErrModelNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	out := make([]modelDTO, 0, len(versions))
	for _, m := range versions {
		out = append(out, toModelDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     name,
		"current":  out[len(out)-1].Version,
		"versions": out,
	})
}

func (h *ModelsHandler) handleRecalibrate(w http.ResponseWriter, r *http.Request, name string) {
	const op = "api.recalibrate"
	published, err := h.deps.Recalibrate(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, scoring.ErrModelNotFound):
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		case errors.Is(err, calibration.ErrInsufficientOutcomes):
			writeError(w, http.StatusConflict, "insufficient_outcomes", err)
		case errors.Is(err, calibration.ErrCalibrationDivergence):
			writeError(w, http.StatusUnprocessableEntity, "calibration_divergence", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "published",
		"model":  toModelDTO(published),
	})
}
