package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nutrimama/nutrimama/internal/domain"
	"go.uber.org/zap"
)

// Insights is a read-only digest of what has been learned about a user.
type Insights struct {
	TotalActions int     `json:"total_actions"`
	Pending      int     `json:"pending"`
	Positive     int     `json:"positive"`
	Negative     int     `json:"negative"`
	Neutral      int     `json:"neutral"`
	SuccessRate  float64 `json:"success_rate"`

	SuccessPatterns []PatternStats `json:"success_patterns"`
	FailurePatterns []PatternStats `json:"failure_patterns"`

	Dislikes          []domain.FoodID `json:"dislikes"`
	Allergies         []domain.FoodID `json:"allergies"`
	Contraindications []domain.FoodID `json:"contraindications"`
}

// AdaptationEngine turns outcome reports into memory and belief updates. It
// is the only component that writes both at once.
type AdaptationEngine struct {
	settings Settings
	memory   *MemoryService
	logger   *zap.Logger
}

func NewAdaptationEngine(settings Settings, memory *MemoryService, logger *zap.Logger) *AdaptationEngine {
	return &AdaptationEngine{settings: settings, memory: memory, logger: logger}
}

// LearnFromOutcome resolves action id and adjusts beliefs for every nutrient
// it targeted. All checks run before the first write, so an error leaves b
// and m untouched. An already resolved action is reported as not found; the
// error also matches domain.ErrAlreadyRecorded.
func (a *AdaptationEngine) LearnFromOutcome(b *domain.BeliefState, m *domain.Memory, id uuid.UUID, outcome domain.Outcome, text string, now time.Time) error {
	if !domain.ValidResolvedOutcome(string(outcome)) {
		return fmt.Errorf("%w: invalid outcome %q", domain.ErrValidation, outcome)
	}
	action := m.ActionByID(id)
	if action == nil {
		return fmt.Errorf("%w: action %s", domain.ErrNotFound, id)
	}
	if action.Outcome != domain.OutcomePending {
		return fmt.Errorf("%w: action %s: %w", domain.ErrNotFound, id, domain.ErrAlreadyRecorded)
	}
	if err := a.memory.RecordOutcome(m, id, outcome, text, now); err != nil {
		return err
	}

	for _, n := range action.NutrientsTargeted {
		conf := b.Get(domain.ConfidenceField(n))
		value := b.Get(domain.NutritionField(n))
		switch outcome {
		case domain.OutcomePositive:
			b.Confidence[n] = domain.Clamp01(conf + a.settings.ConfidenceStep)
			b.Nutrition[n] = Dampen(value, value+a.settings.NutritionNudge, a.settings.DampeningWeight)
		case domain.OutcomeNegative:
			// A failed suggestion makes the estimate less certain; it says
			// nothing about the nutrient level itself.
			b.Confidence[n] = math.Max(domain.Clamp01(conf-a.settings.ConfidenceStep), math.Min(conf, a.settings.ConfidenceFloor))
		}
	}
	if outcome != domain.OutcomeNeutral && len(action.NutrientsTargeted) > 0 {
		touch(b, now)
	}

	a.logger.Info("outcome learned",
		zap.String("user_id", m.UserID),
		zap.String("action_id", id.String()),
		zap.String("outcome", string(outcome)),
		zap.String("food", string(action.Food)),
	)
	return nil
}

// DetectPatternFailure exposes the ratio behind ShouldAvoid.
func (a *AdaptationEngine) DetectPatternFailure(m *domain.Memory, food domain.FoodID) (PatternStats, bool) {
	return a.memory.DetectPatternFailure(m, domain.NormalizeFood(string(food)))
}

func (a *AdaptationEngine) DetectPatternSuccess(m *domain.Memory, food domain.FoodID) (PatternStats, bool) {
	return a.memory.DetectPatternSuccess(m, domain.NormalizeFood(string(food)))
}

// Insights summarizes outcomes and food patterns.
func (a *AdaptationEngine) Insights(m *domain.Memory) Insights {
	in := Insights{
		TotalActions:      len(m.Actions),
		SuccessPatterns:   []PatternStats{},
		FailurePatterns:   []PatternStats{},
		Dislikes:          m.Dislikes.Sorted(),
		Allergies:         m.Allergies.Sorted(),
		Contraindications: m.Contraindications.Sorted(),
	}
	for _, act := range m.Actions {
		switch act.Outcome {
		case domain.OutcomePending:
			in.Pending++
		case domain.OutcomePositive:
			in.Positive++
		case domain.OutcomeNegative:
			in.Negative++
		case domain.OutcomeNeutral:
			in.Neutral++
		}
	}
	if resolved := in.Positive + in.Negative + in.Neutral; resolved > 0 {
		in.SuccessRate = float64(in.Positive) / float64(resolved)
	}

	foods := make(map[domain.FoodID]struct{})
	for f := range m.SuccessfulSuggestions {
		foods[f] = struct{}{}
	}
	for f := range m.FailedSuggestions {
		foods[f] = struct{}{}
	}
	sorted := make([]domain.FoodID, 0, len(foods))
	for f := range foods {
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, f := range sorted {
		if st, ok := a.memory.DetectPatternSuccess(m, f); ok {
			in.SuccessPatterns = append(in.SuccessPatterns, st)
		}
		if st, ok := a.memory.DetectPatternFailure(m, f); ok {
			in.FailurePatterns = append(in.FailurePatterns, st)
		}
	}
	return in
}
