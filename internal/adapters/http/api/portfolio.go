package api

import (
	"net/http"
	"strconv"

	"github.com/cscx/pulse/internal/adapters/repository"
	"github.com/cscx/pulse/internal/domain/model"
)

const defaultPortfolioLimit = 50

// PortfolioHandler serves the ranked portfolio view.
type PortfolioHandler struct {
	deps Dependencies
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(deps Dependencies) *PortfolioHandler {
	return &PortfolioHandler{deps: deps}
}

type portfolioStatsDTO struct {
	Total    int     `json:"total"`
	Unscored int     `json:"unscored"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Healthy  int     `json:"healthy"`
	Warning  int     `json:"warning"`
	Critical int     `json:"critical"`
}

// HandleGetPortfolio handles GET /portfolio/scores requests. Filters:
// entity_type, portfolio, band; pagination: limit, offset.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_portfolio"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	filter := repository.PortfolioFilter{
		Portfolio: q.Get("portfolio"),
		Limit:     defaultPortfolioLimit,
	}
	if raw := q.Get("entity_type"); raw != "" {
		et := model.EntityType(raw)
		if !et.Valid() {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		filter.EntityType = et
	}
	if raw := q.Get("band"); raw != "" {
		switch model.Band(raw) {
		case model.BandHealthy, model.BandWarning, model.BandCritical:
			filter.Band = model.Band(raw)
		default:
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		filter.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		filter.Offset = v
	}

	page, err := h.deps.PortfolioScores(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	records := make([]scoreResponse, 0, len(page.Records))
	for _, rec := range page.Records {
		records = append(records, toScoreResponse(rec, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"stats": portfolioStatsDTO{
			Total:    page.Stats.Total,
			Unscored: page.Stats.Unscored,
			Mean:     page.Stats.Mean,
			Min:      page.Stats.Min,
			Max:      page.Stats.Max,
			Healthy:  page.Stats.Healthy,
			Warning:  page.Stats.Warning,
			Critical: page.Stats.Critical,
		},
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}
