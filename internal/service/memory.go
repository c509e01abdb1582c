package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nutrimama/nutrimama/internal/domain"
	"go.uber.org/zap"
)

// PatternStats summarizes how a food's past suggestions went.
type PatternStats struct {
	Food         domain.FoodID `json:"food"`
	Successes    int           `json:"successes"`
	Failures     int           `json:"failures"`
	Attempts     int           `json:"attempts"`
	SuccessRatio float64       `json:"success_ratio"`
	FailureRatio float64       `json:"failure_ratio"`
}

// MemoryService owns the rules for writing to and reading from a user's
// action log.
type MemoryService struct {
	settings Settings
	kb       domain.KnowledgeBase
	safety   *SafetyChecker
	logger   *zap.Logger
}

func NewMemoryService(settings Settings, kb domain.KnowledgeBase, safety *SafetyChecker, logger *zap.Logger) *MemoryService {
	return &MemoryService{settings: settings, kb: kb, safety: safety, logger: logger}
}

// RecordAction validates a and appends it with a pending outcome. An ID and
// timestamp are assigned when missing.
func (s *MemoryService) RecordAction(m *domain.Memory, a domain.Action, now time.Time) (uuid.UUID, error) {
	if !domain.ValidActionType(string(a.ActionType)) {
		return uuid.Nil, fmt.Errorf("%w: invalid action type %q", domain.ErrValidation, a.ActionType)
	}
	if a.Outcome != "" && a.Outcome != domain.OutcomePending {
		return uuid.Nil, fmt.Errorf("%w: new actions must be pending", domain.ErrValidation)
	}
	for _, n := range a.NutrientsTargeted {
		if !domain.ValidNutrient(string(n)) {
			return uuid.Nil, fmt.Errorf("%w: unknown nutrient %q", domain.ErrValidation, n)
		}
	}
	a.Food = domain.NormalizeFood(string(a.Food))

	if a.ActionType.IsSuggestion() {
		if len(a.NutrientsTargeted) == 0 {
			return uuid.Nil, fmt.Errorf("%w: nutrients_targeted is required for %s", domain.ErrValidation, a.ActionType)
		}
		if a.Food == "" {
			return uuid.Nil, fmt.Errorf("%w: food is required for %s", domain.ErrValidation, a.ActionType)
		}
		if s.kb != nil {
			if _, ok := s.kb.Food(a.Food); !ok {
				return uuid.Nil, fmt.Errorf("%w: unknown food %q", domain.ErrValidation, a.Food)
			}
		}
		if a.Kind == "" {
			a.Kind = domain.KindFood
		}
	}
	if a.Kind != "" {
		if !domain.ValidSuggestionKind(string(a.Kind)) {
			return uuid.Nil, fmt.Errorf("%w: invalid kind %q", domain.ErrValidation, a.Kind)
		}
		if !s.safety.CheckSuggestionValidity(a.ActionText, a.Kind) {
			return uuid.Nil, fmt.Errorf("%w: %s suggestions are outside what the assistant may give", domain.ErrValidation, a.Kind)
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	} else if m.ActionByID(a.ID) != nil {
		return uuid.Nil, fmt.Errorf("%w: action %s already exists", domain.ErrValidation, a.ID)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	a.NutrientsTargeted = dedupeNutrients(a.NutrientsTargeted)
	a.Outcome = domain.OutcomePending
	a.OutcomeText = ""
	a.OutcomeRecordedAt = nil

	m.Actions = append(m.Actions, a)
	m.LastUpdated = now

	s.logger.Debug("action recorded",
		zap.String("user_id", m.UserID),
		zap.String("action_id", a.ID.String()),
		zap.String("action_type", string(a.ActionType)),
	)
	return a.ID, nil
}

// RecordOutcome resolves a pending action exactly once and updates the
// per-food counters for food suggestions.
func (s *MemoryService) RecordOutcome(m *domain.Memory, id uuid.UUID, outcome domain.Outcome, text string, now time.Time) error {
	if !domain.ValidResolvedOutcome(string(outcome)) {
		return fmt.Errorf("%w: invalid outcome %q", domain.ErrValidation, outcome)
	}
	a := m.ActionByID(id)
	if a == nil {
		return fmt.Errorf("%w: action %s", domain.ErrNotFound, id)
	}
	if a.Outcome != domain.OutcomePending {
		return fmt.Errorf("%w: action %s is %s", domain.ErrAlreadyRecorded, id, a.Outcome)
	}

	a.Outcome = outcome
	a.OutcomeText = text
	at := now
	a.OutcomeRecordedAt = &at

	if a.ActionType == domain.ActionSuggestFood && a.Food != "" {
		switch outcome {
		case domain.OutcomePositive:
			m.SuccessfulSuggestions[a.Food]++
		case domain.OutcomeNegative:
			m.FailedSuggestions[a.Food]++
		}
	}
	m.LastUpdated = now
	return nil
}

// GetSuccessfulFor returns the food with the most successes among those
// known to target n and not excluded by the user. Ties go to the food whose
// latest success is most recent.
func (s *MemoryService) GetSuccessfulFor(m *domain.Memory, n domain.NutrientID) (domain.FoodID, bool) {
	var (
		best      domain.FoodID
		bestCount int
		bestAt    time.Time
	)
	for food, count := range m.SuccessfulSuggestions {
		if count <= 0 || m.Excluded(food) || !s.targets(m, food, n) {
			continue
		}
		at := lastSuccessAt(m, food)
		switch {
		case count > bestCount,
			count == bestCount && at.After(bestAt),
			count == bestCount && at.Equal(bestAt) && food < best:
			best, bestCount, bestAt = food, count, at
		}
	}
	return best, bestCount > 0
}

// ShouldAvoid reports whether food is excluded by the user or has failed
// often enough to stop suggesting it.
func (s *MemoryService) ShouldAvoid(m *domain.Memory, food domain.FoodID) bool {
	if m.Excluded(food) {
		return true
	}
	_, failing := s.DetectPatternFailure(m, food)
	return failing
}

// Stats computes the success and failure ratios for food.
func (s *MemoryService) Stats(m *domain.Memory, food domain.FoodID) PatternStats {
	st := PatternStats{
		Food:      food,
		Successes: m.SuccessfulSuggestions[food],
		Failures:  m.FailedSuggestions[food],
	}
	st.Attempts = st.Successes + st.Failures
	if st.Attempts > 0 {
		st.SuccessRatio = float64(st.Successes) / float64(st.Attempts)
		st.FailureRatio = float64(st.Failures) / float64(st.Attempts)
	}
	return st
}

// DetectPatternFailure reports whether food fails more often than the
// failure ratio allows, given enough attempts to judge.
func (s *MemoryService) DetectPatternFailure(m *domain.Memory, food domain.FoodID) (PatternStats, bool) {
	st := s.Stats(m, food)
	return st, st.Attempts >= s.settings.PatternMinAttempts && st.FailureRatio > s.settings.PatternFailureRatio
}

// DetectPatternSuccess is the mirror of DetectPatternFailure.
func (s *MemoryService) DetectPatternSuccess(m *domain.Memory, food domain.FoodID) (PatternStats, bool) {
	st := s.Stats(m, food)
	return st, st.Attempts >= s.settings.PatternMinAttempts && st.SuccessRatio > s.settings.PatternSuccessRatio
}

// AddAllergy records an allergy. An allergen is also a contraindication.
func (s *MemoryService) AddAllergy(m *domain.Memory, food string, now time.Time) error {
	f, err := foodArg(food)
	if err != nil {
		return err
	}
	m.Allergies.Add(f)
	m.Contraindications.Add(f)
	m.LastUpdated = now
	return nil
}

func (s *MemoryService) AddDislike(m *domain.Memory, food string, now time.Time) error {
	f, err := foodArg(food)
	if err != nil {
		return err
	}
	m.Dislikes.Add(f)
	m.LastUpdated = now
	return nil
}

func (s *MemoryService) AddContraindication(m *domain.Memory, food string, now time.Time) error {
	f, err := foodArg(food)
	if err != nil {
		return err
	}
	m.Contraindications.Add(f)
	m.LastUpdated = now
	return nil
}

// RecentActions returns actions newer than now-window, newest first.
func (s *MemoryService) RecentActions(m *domain.Memory, window time.Duration, now time.Time) []domain.Action {
	cutoff := now.Add(-window)
	var out []domain.Action
	for i := len(m.Actions) - 1; i >= 0; i-- {
		if m.Actions[i].Timestamp.After(cutoff) {
			out = append(out, m.Actions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// LatestPendingFor returns the newest pending suggestion of food.
func (s *MemoryService) LatestPendingFor(m *domain.Memory, food domain.FoodID) *domain.Action {
	for i := len(m.Actions) - 1; i >= 0; i-- {
		a := &m.Actions[i]
		if a.Food == food && a.Outcome == domain.OutcomePending {
			return a
		}
	}
	return nil
}

// targets reports whether any recorded action for food aimed at n, or the
// knowledge base lists food as a source of n.
func (s *MemoryService) targets(m *domain.Memory, food domain.FoodID, n domain.NutrientID) bool {
	for i := range m.Actions {
		if m.Actions[i].Food == food && m.Actions[i].Targets(n) {
			return true
		}
	}
	if s.kb != nil {
		if info, ok := s.kb.Food(food); ok {
			return info.Provides(n)
		}
	}
	return false
}

func lastSuccessAt(m *domain.Memory, food domain.FoodID) time.Time {
	var last time.Time
	for _, a := range m.Actions {
		if a.Food != food || a.Outcome != domain.OutcomePositive {
			continue
		}
		at := a.Timestamp
		if a.OutcomeRecordedAt != nil {
			at = *a.OutcomeRecordedAt
		}
		if at.After(last) {
			last = at
		}
	}
	return last
}

func foodArg(food string) (domain.FoodID, error) {
	f := domain.NormalizeFood(food)
	if f == "" || strings.Trim(string(f), "_") == "" {
		return "", fmt.Errorf("%w: food is required", domain.ErrValidation)
	}
	return f, nil
}

func dedupeNutrients(ns []domain.NutrientID) []domain.NutrientID {
	out := make([]domain.NutrientID, 0, len(ns))
	for _, n := range ns {
		dup := false
		for _, x := range out {
			if x == n {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, n)
		}
	}
	return out
}
