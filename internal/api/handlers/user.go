package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/service"
)

// UserHandler serves the belief and profile routes of one user.
type UserHandler struct {
	engine *service.Engine
}

func NewUserHandler(engine *service.Engine) *UserHandler {
	return &UserHandler{engine: engine}
}

type signalRequest struct {
	Field  string  `json:"field"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

func (h *UserHandler) ApplySignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.engine.ApplySignal(r.Context(), userID, req.Field, req.Value, req.Weight); err != nil {
		writeServiceError(w, err, "failed to apply signal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ApplyPrediction(w http.ResponseWriter, r *http.Request) {
	var req domain.Prediction
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.engine.ApplyPrediction(r.Context(), userID, req); err != nil {
		writeServiceError(w, err, "failed to apply prediction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ApplyPerception(w http.ResponseWriter, r *http.Request) {
	var req domain.Perception
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.ApplyPerception(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		writeServiceError(w, err, "failed to apply perception")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type symptomRequest struct {
	Symptom string `json:"symptom"`
}

func (h *UserHandler) ReportSymptom(w http.ResponseWriter, r *http.Request) {
	var req symptomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Symptom == "" {
		writeError(w, http.StatusBadRequest, "symptom is required")
		return
	}

	if err := h.engine.ReportSymptom(r.Context(), chi.URLParam(r, "userID"), req.Symptom); err != nil {
		writeServiceError(w, err, "failed to report symptom")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileRequest struct {
	Stage         domain.Stage `json:"stage"`
	Breastfeeding bool         `json:"breastfeeding"`
	Age           int          `json:"age"`
}

func (h *UserHandler) SetProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.engine.SetProfile(r.Context(), userID, req.Stage, req.Breastfeeding, req.Age); err != nil {
		writeServiceError(w, err, "failed to update profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type foodRequest struct {
	Food string `json:"food"`
}

// AddAllergy, AddDislike and AddContraindication share one request shape.
func (h *UserHandler) AddAllergy(w http.ResponseWriter, r *http.Request) {
	h.addFood(w, r, h.engine.AddAllergy)
}

func (h *UserHandler) AddDislike(w http.ResponseWriter, r *http.Request) {
	h.addFood(w, r, h.engine.AddDislike)
}

func (h *UserHandler) AddContraindication(w http.ResponseWriter, r *http.Request) {
	h.addFood(w, r, h.engine.AddContraindication)
}

func (h *UserHandler) addFood(w http.ResponseWriter, r *http.Request, add func(ctx context.Context, userID, food string) error) {
	var req foodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Food == "" {
		writeError(w, http.StatusBadRequest, "food is required")
		return
	}

	if err := add(r.Context(), chi.URLParam(r, "userID"), req.Food); err != nil {
		writeServiceError(w, err, "failed to update food list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.engine.GetStateSummary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err, "failed to load summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *UserHandler) Insights(w http.ResponseWriter, r *http.Request) {
	in, err := h.engine.Insights(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err, "failed to load insights")
		return
	}
	writeJSON(w, http.StatusOK, in)
}

type patternResponse struct {
	Food       domain.FoodID        `json:"food"`
	Failing    bool                 `json:"failing"`
	Succeeding bool                 `json:"succeeding"`
	Stats      service.PatternStats `json:"stats"`
}

// Pattern reports whether a food is a learned success or failure for the user.
func (h *UserHandler) Pattern(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	food := chi.URLParam(r, "food")

	stats, failing, err := h.engine.DetectPatternFailure(r.Context(), userID, food)
	if err != nil {
		writeServiceError(w, err, "failed to load pattern")
		return
	}
	_, succeeding, err := h.engine.DetectPatternSuccess(r.Context(), userID, food)
	if err != nil {
		writeServiceError(w, err, "failed to load pattern")
		return
	}

	writeJSON(w, http.StatusOK, patternResponse{
		Food:       domain.NormalizeFood(food),
		Failing:    failing,
		Succeeding: succeeding,
		Stats:      stats,
	})
}
