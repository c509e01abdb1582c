package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActionType string

const (
	ActionAlertMedical ActionType = "ALERT_MEDICAL"
	ActionBlock        ActionType = "BLOCK"
	ActionSuggestFood  ActionType = "SUGGEST_FOOD"
	ActionCheckIn      ActionType = "CHECK_IN"
	ActionObserve      ActionType = "OBSERVE"
)

func ValidActionType(s string) bool {
	switch ActionType(s) {
	case ActionAlertMedical, ActionBlock, ActionSuggestFood, ActionCheckIn, ActionObserve:
		return true
	}
	return false
}

// IsSuggestion reports whether the action type is suggestion-class, meaning
// it is recorded in memory and counts against the daily cap.
func (t ActionType) IsSuggestion() bool {
	return t == ActionSuggestFood
}

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomePositive Outcome = "positive"
	OutcomeNegative Outcome = "negative"
	OutcomeNeutral  Outcome = "neutral"
)

// ValidResolvedOutcome reports whether s is an outcome an action may move to.
func ValidResolvedOutcome(s string) bool {
	switch Outcome(s) {
	case OutcomePositive, OutcomeNegative, OutcomeNeutral:
		return true
	}
	return false
}

// SuggestionKind classifies what an action asks the user to do.
type SuggestionKind string

const (
	KindFood       SuggestionKind = "food"
	KindRest       SuggestionKind = "rest"
	KindHydration  SuggestionKind = "hydration"
	KindLifestyle  SuggestionKind = "lifestyle"
	KindMedication SuggestionKind = "medication"
	KindTreatment  SuggestionKind = "treatment"
	KindProcedure  SuggestionKind = "procedure"
)

func ValidSuggestionKind(s string) bool {
	switch SuggestionKind(s) {
	case KindFood, KindRest, KindHydration, KindLifestyle, KindMedication, KindTreatment, KindProcedure:
		return true
	}
	return false
}

// Action is a recorded recommendation and its eventual outcome.
type Action struct {
	ID                uuid.UUID      `json:"id"`
	Timestamp         time.Time      `json:"timestamp"`
	ActionType        ActionType     `json:"action_type"`
	Kind              SuggestionKind `json:"kind,omitempty"`
	ActionText        string         `json:"action_text"`
	Reason            string         `json:"reason"`
	Food              FoodID         `json:"food,omitempty"`
	NutrientsTargeted []NutrientID   `json:"nutrients_targeted"`
	Outcome           Outcome        `json:"outcome"`
	OutcomeText       string         `json:"outcome_text,omitempty"`
	OutcomeRecordedAt *time.Time     `json:"outcome_recorded_at,omitempty"`
}

// Targets reports whether n is among the action's targeted nutrients.
func (a *Action) Targets(n NutrientID) bool {
	for _, t := range a.NutrientsTargeted {
		if t == n {
			return true
		}
	}
	return false
}

// Decision is the single action chosen for one decision cycle.
type Decision struct {
	ActionType ActionType     `json:"action_type"`
	Rule       string         `json:"rule"`
	Reason     string         `json:"reason"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SafetyViolation describes why a proposed food or suggestion was refused.
// It travels inside BLOCK decisions and is never returned as an error.
type SafetyViolation struct {
	Food   FoodID `json:"food,omitempty"`
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}
