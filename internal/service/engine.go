package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/store"
	"go.uber.org/zap"
)

const (
	maxUserIDLength    = 128
	recentActionWindow = 7 * 24 * time.Hour
)

// errUnchanged lets an update finish without writing the profile back.
var errUnchanged = errors.New("profile unchanged")

// StateSummary is a read-only snapshot for rendering and telemetry. It keeps
// full precision; callers decide what to show end users.
type StateSummary struct {
	UserID           string              `json:"user_id"`
	Belief           *domain.BeliefState `json:"belief"`
	PressingNutrient domain.NutrientID   `json:"pressing_nutrient,omitempty"`
	Pressure         float64             `json:"pressure,omitempty"`
	ActionsToday     int                 `json:"actions_today"`
	LastActionAt     *time.Time          `json:"last_action_at,omitempty"`
	RecentActions    []domain.Action     `json:"recent_actions"`
	Insights         Insights            `json:"insights"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// PerceptionResult reports what a perception record changed.
type PerceptionResult struct {
	SymptomsAdded   []domain.SymptomID `json:"symptoms_added"`
	PendingFoods    []domain.FoodID    `json:"pending_foods"`
	LearnedActionID *uuid.UUID         `json:"learned_action_id,omitempty"`
}

// Engine is the per-user entry point to the decision core. Operations on one
// user run one at a time; each loads the profile, applies the change to a
// copy and saves it only if the change succeeded.
type Engine struct {
	profiles   domain.ProfileStore
	belief     *BeliefService
	memory     *MemoryService
	safety     *SafetyChecker
	reasoning  *ReasoningEngine
	adaptation *AdaptationEngine
	locks      *userLocks
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine wires the core components. kb may be nil.
func NewEngine(profiles domain.ProfileStore, kb domain.KnowledgeBase, settings Settings, logger *zap.Logger) *Engine {
	safety := NewSafetyChecker(kb)
	memory := NewMemoryService(settings, kb, safety, logger)
	return &Engine{
		profiles:   profiles,
		belief:     NewBeliefService(settings, logger),
		memory:     memory,
		safety:     safety,
		reasoning:  NewReasoningEngine(settings, safety, memory, kb),
		adaptation: NewAdaptationEngine(settings, memory, logger),
		locks:      newUserLocks(),
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// ApplySignal dampens one belief field toward value. field accepts the forms
// domain.ParseField understands; a zero weight uses the default.
func (e *Engine) ApplySignal(ctx context.Context, userID, field string, value, weight float64) error {
	f, err := domain.ParseField(field)
	if err != nil {
		return err
	}
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.belief.ApplySignal(p.Belief, f, value, weight, now)
	})
}

func (e *Engine) ReportSymptom(ctx context.Context, userID, symptom string) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.belief.ReportSymptom(p.Belief, symptom, now)
	})
}

func (e *Engine) ApplyPrediction(ctx context.Context, userID string, pred domain.Prediction) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.belief.ApplyPrediction(p.Belief, pred, now)
	})
}

// ApplyPerception folds a structured perception into the profile: symptoms,
// a sentiment nudge, foods about to be eaten and outcome feedback. Either
// all of it applies or none of it does.
func (e *Engine) ApplyPerception(ctx context.Context, userID string, in domain.Perception) (*PerceptionResult, error) {
	res := &PerceptionResult{}
	err := e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		for _, s := range in.Symptoms {
			if err := e.belief.ReportSymptom(p.Belief, s, now); err != nil {
				return err
			}
			res.SymptomsAdded = append(res.SymptomsAdded, domain.NormalizeSymptom(s))
		}
		if err := e.belief.ApplySentiment(p.Belief, in.Sentiment, in.SentimentScale(), now); err != nil {
			return err
		}
		e.belief.AddPendingFoods(p.Belief, in.FoodsMentioned, now)
		res.PendingFoods = append([]domain.FoodID(nil), p.Belief.PendingFoods...)

		if in.FeedbackOutcome == "" {
			return nil
		}
		id, ok, err := e.feedbackTarget(p.Memory, in.FeedbackTarget)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Info("feedback without a pending suggestion",
				zap.String("user_id", userID),
				zap.String("target", in.FeedbackTarget),
			)
			return nil
		}
		if err := e.adaptation.LearnFromOutcome(p.Belief, p.Memory, id, domain.Outcome(in.FeedbackOutcome), "", now); err != nil {
			return err
		}
		res.LearnedActionID = &id
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(in.NutrientsMentioned) > 0 {
		e.logger.Debug("perception mentioned nutrients",
			zap.String("user_id", userID),
			zap.Strings("nutrients", in.NutrientsMentioned),
		)
	}
	return res, nil
}

// feedbackTarget resolves a perception's feedback target. An action id must
// exist; a food or an empty target picks the latest pending suggestion.
func (e *Engine) feedbackTarget(m *domain.Memory, target string) (uuid.UUID, bool, error) {
	if id, err := uuid.Parse(strings.TrimSpace(target)); err == nil {
		if m.ActionByID(id) == nil {
			return uuid.Nil, false, fmt.Errorf("%w: action %s", domain.ErrNotFound, id)
		}
		return id, true, nil
	}
	if target != "" {
		if a := e.memory.LatestPendingFor(m, domain.NormalizeFood(target)); a != nil {
			return a.ID, true, nil
		}
		return uuid.Nil, false, nil
	}
	for i := len(m.Actions) - 1; i >= 0; i-- {
		if a := m.Actions[i]; a.ActionType.IsSuggestion() && a.Outcome == domain.OutcomePending {
			return a.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (e *Engine) SetProfile(ctx context.Context, userID string, stage domain.Stage, breastfeeding bool, age int) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.belief.SetProfile(p.Belief, stage, breastfeeding, age, now)
	})
}

func (e *Engine) AddAllergy(ctx context.Context, userID, food string) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.memory.AddAllergy(p.Memory, food, now)
	})
}

func (e *Engine) AddDislike(ctx context.Context, userID, food string) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.memory.AddDislike(p.Memory, food, now)
	})
}

func (e *Engine) AddContraindication(ctx context.Context, userID, food string) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.memory.AddContraindication(p.Memory, food, now)
	})
}

// Decide produces this cycle's decision. A SUGGEST_FOOD decision is recorded
// as an action, and its id is returned in the payload under "action_id".
// Pending foods are consumed once the unsafe-food rule has seen them; an
// alert leaves them pending.
func (e *Engine) Decide(ctx context.Context, userID string) (domain.Decision, error) {
	var d domain.Decision
	err := e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		d = e.reasoning.Decide(p.Belief, p.Memory, now)
		if d.ActionType.IsSuggestion() {
			id, err := e.memory.RecordAction(p.Memory, suggestionAction(d), now)
			if err != nil {
				return err
			}
			d.Payload["action_id"] = id.String()
		}
		if d.Rule != RuleSymptomAlert && d.Rule != RuleStateAlert {
			p.Belief.PendingFoods = nil
		}
		return nil
	})
	if err != nil {
		return domain.Decision{}, err
	}
	e.logger.Info("decision made",
		zap.String("user_id", userID),
		zap.String("action_type", string(d.ActionType)),
		zap.String("rule", d.Rule),
	)
	if d.ActionType != domain.ActionBlock {
		e.logRefused(userID, d)
	}
	return d, nil
}

// logRefused records violations that ride along on a non-BLOCK decision.
func (e *Engine) logRefused(userID string, d domain.Decision) {
	for _, key := range []string{"violations", "pending_violations"} {
		v, _ := d.Payload[key].([]domain.SafetyViolation)
		for _, sv := range v {
			e.logger.Warn("food refused",
				zap.String("user_id", userID),
				zap.String("rule", d.Rule),
				zap.String("food", string(sv.Food)),
				zap.String("safety_rule", sv.Rule),
				zap.String("reason", sv.Reason),
			)
		}
	}
}

func suggestionAction(d domain.Decision) domain.Action {
	a := domain.Action{
		ActionType: d.ActionType,
		Kind:       domain.KindFood,
		Reason:     d.Reason,
		Timestamp:  d.Timestamp,
	}
	if f, ok := d.Payload["food"].(domain.FoodID); ok {
		a.Food = f
	}
	if n, ok := d.Payload["nutrient"].(domain.NutrientID); ok {
		a.NutrientsTargeted = []domain.NutrientID{n}
	}
	if text, ok := d.Payload["action_text"].(string); ok {
		a.ActionText = text
	}
	return a
}

// RecordAction appends an externally chosen action and returns its id.
func (e *Engine) RecordAction(ctx context.Context, userID string, a domain.Action) (uuid.UUID, error) {
	var id uuid.UUID
	err := e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		var err error
		id, err = e.memory.RecordAction(p.Memory, a, now)
		return err
	})
	return id, err
}

func (e *Engine) LearnFromOutcome(ctx context.Context, userID string, actionID uuid.UUID, outcome domain.Outcome, text string) error {
	return e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		return e.adaptation.LearnFromOutcome(p.Belief, p.Memory, actionID, outcome, text, now)
	})
}

// GetStateSummary returns a snapshot without changing anything. A user with
// no stored profile gets the neutral defaults.
func (e *Engine) GetStateSummary(ctx context.Context, userID string) (*StateSummary, error) {
	var sum *StateSummary
	err := e.view(ctx, userID, func(p *domain.Profile, now time.Time) {
		sum = &StateSummary{
			UserID:        userID,
			Belief:        p.Belief,
			ActionsToday:  e.reasoning.ActionsToday(p.Memory, now),
			RecentActions: e.memory.RecentActions(p.Memory, recentActionWindow, now),
			Insights:      e.adaptation.Insights(p.Memory),
			GeneratedAt:   now,
		}
		if sum.RecentActions == nil {
			sum.RecentActions = []domain.Action{}
		}
		if n, pressure, ok := e.reasoning.PressingNutrient(p.Belief, p.Memory); ok {
			sum.PressingNutrient, sum.Pressure = n, pressure
		}
		if last, ok := p.Memory.LastActionAt(); ok {
			sum.LastActionAt = &last
		}
	})
	return sum, err
}

func (e *Engine) Insights(ctx context.Context, userID string) (Insights, error) {
	var in Insights
	err := e.view(ctx, userID, func(p *domain.Profile, _ time.Time) {
		in = e.adaptation.Insights(p.Memory)
	})
	return in, err
}

// DetectPatternFailure and DetectPatternSuccess report a food's ratios.
func (e *Engine) DetectPatternFailure(ctx context.Context, userID, food string) (PatternStats, bool, error) {
	var (
		st PatternStats
		ok bool
	)
	err := e.view(ctx, userID, func(p *domain.Profile, _ time.Time) {
		st, ok = e.adaptation.DetectPatternFailure(p.Memory, domain.FoodID(food))
	})
	return st, ok, err
}

func (e *Engine) DetectPatternSuccess(ctx context.Context, userID, food string) (PatternStats, bool, error) {
	var (
		st PatternStats
		ok bool
	)
	err := e.view(ctx, userID, func(p *domain.Profile, _ time.Time) {
		st, ok = e.adaptation.DetectPatternSuccess(p.Memory, domain.FoodID(food))
	})
	return st, ok, err
}

// ExpireSymptoms drops symptoms last reported before cutoff. It is used by
// the sweeper and writes only when something was removed.
func (e *Engine) ExpireSymptoms(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	var n int
	err := e.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		n = e.belief.ExpireSymptoms(p.Belief, cutoff)
		if n == 0 {
			return errUnchanged
		}
		touch(p.Belief, now)
		return nil
	})
	return n, err
}

func (e *Engine) update(ctx context.Context, userID string, fn func(p *domain.Profile, now time.Time) error) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	unlock := e.locks.lock(userID)
	defer unlock()

	now := e.now()
	current, err := e.load(ctx, userID, now)
	if err != nil {
		return err
	}
	draft := &domain.Profile{Belief: current.Belief.Clone(), Memory: current.Memory.Clone()}
	if err := fn(draft, now); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if err := e.profiles.Save(ctx, draft); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (e *Engine) view(ctx context.Context, userID string, fn func(p *domain.Profile, now time.Time)) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	unlock := e.locks.lock(userID)
	defer unlock()

	now := e.now()
	p, err := e.load(ctx, userID, now)
	if err != nil {
		return err
	}
	fn(&domain.Profile{Belief: p.Belief.Clone(), Memory: p.Memory.Clone()}, now)
	return nil
}

// load returns the stored profile, or fresh neutral state for a new user.
func (e *Engine) load(ctx context.Context, userID string, now time.Time) (*domain.Profile, error) {
	p, err := e.profiles.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		p = &domain.Profile{}
	}
	if p.Belief == nil {
		p.Belief = domain.NewBeliefState(userID, now)
	}
	if p.Memory == nil {
		p.Memory = domain.NewMemory(userID, now)
	}
	p.Normalize()
	return p, nil
}

func validUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if len(id) > maxUserIDLength {
		return fmt.Errorf("%w: user id longer than %d bytes", domain.ErrValidation, maxUserIDLength)
	}
	return nil
}
