package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/nutrimama/nutrimama/internal/api/middleware"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/service"
)

// DecisionHandler serves decision cycles and the action log.
type DecisionHandler struct {
	engine *service.Engine
}

func NewDecisionHandler(engine *service.Engine) *DecisionHandler {
	return &DecisionHandler{engine: engine}
}

func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Decide(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err, "failed to decide")
		return
	}
	w.Header().Set(mw.DecisionTypeHeader, string(d.ActionType))
	writeJSON(w, http.StatusOK, d)
}

type recordActionRequest struct {
	ActionType        domain.ActionType     `json:"action_type"`
	Kind              domain.SuggestionKind `json:"kind"`
	ActionText        string                `json:"action_text"`
	Reason            string                `json:"reason"`
	Food              domain.FoodID         `json:"food"`
	NutrientsTargeted []domain.NutrientID   `json:"nutrients_targeted"`
}

type recordActionResponse struct {
	ID uuid.UUID `json:"id"`
}

func (h *DecisionHandler) RecordAction(w http.ResponseWriter, r *http.Request) {
	var req recordActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ActionType == "" {
		writeError(w, http.StatusBadRequest, "action_type is required")
		return
	}

	a := domain.Action{
		ActionType:        req.ActionType,
		Kind:              req.Kind,
		ActionText:        req.ActionText,
		Reason:            req.Reason,
		Food:              req.Food,
		NutrientsTargeted: req.NutrientsTargeted,
	}
	id, err := h.engine.RecordAction(r.Context(), chi.URLParam(r, "userID"), a)
	if err != nil {
		writeServiceError(w, err, "failed to record action")
		return
	}
	writeJSON(w, http.StatusCreated, recordActionResponse{ID: id})
}

type outcomeRequest struct {
	Outcome domain.Outcome `json:"outcome"`
	Text    string         `json:"text"`
}

func (h *DecisionHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	actionID, err := uuid.Parse(chi.URLParam(r, "actionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	var req outcomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !domain.ValidResolvedOutcome(string(req.Outcome)) {
		writeError(w, http.StatusBadRequest, "outcome must be positive, negative or neutral")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.engine.LearnFromOutcome(r.Context(), userID, actionID, req.Outcome, req.Text); err != nil {
		writeServiceError(w, err, "failed to record outcome")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
