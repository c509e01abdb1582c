package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nutrimama/nutrimama/internal/domain"
)

// Rule names, in precedence order.
const (
	RuleSymptomAlert   = "symptom-alert"
	RuleStateAlert     = "state-alert"
	RuleUnsafePending  = "unsafe-pending-food"
	RuleDailyCap       = "daily-cap"
	RuleComfortable    = "comfortable"
	RuleRememberedFood = "remembered-food"
	RuleClarify        = "clarify"
)

const maxClarifyOptions = 3

// Rule is one step of the decision procedure. Match returns false to pass
// control to the next rule.
type Rule struct {
	Name  string
	Match func(ev *evaluation) (domain.Decision, bool)
}

// DefaultRules is the decision procedure: safety first, then the daily cap,
// then the pressing nutrient, then the fallback question.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleSymptomAlert, Match: symptomAlert},
		{Name: RuleStateAlert, Match: stateAlert},
		{Name: RuleUnsafePending, Match: unsafePendingFood},
		{Name: RuleDailyCap, Match: dailyCap},
		{Name: RuleComfortable, Match: comfortable},
		{Name: RuleRememberedFood, Match: rememberedFood},
		{Name: RuleClarify, Match: clarify},
	}
}

// ReasoningEngine picks one action per cycle. It holds no per-user state;
// Decide is a pure function of its arguments.
type ReasoningEngine struct {
	settings Settings
	safety   *SafetyChecker
	memory   *MemoryService
	kb       domain.KnowledgeBase
	rules    []Rule
}

func NewReasoningEngine(settings Settings, safety *SafetyChecker, memory *MemoryService, kb domain.KnowledgeBase) *ReasoningEngine {
	return &ReasoningEngine{
		settings: settings,
		safety:   safety,
		memory:   memory,
		kb:       kb,
		rules:    DefaultRules(),
	}
}

// evaluation carries one decision cycle through the rule list.
type evaluation struct {
	r      *ReasoningEngine
	belief *domain.BeliefState
	memory *domain.Memory
	now    time.Time

	symptoms []domain.SymptomID
	pressing domain.NutrientID
	pressure float64

	// refused collects foods a rule wanted to suggest but could not.
	refused []domain.SafetyViolation
}

// Decide runs the rules in order and returns the first match. It never
// mutates b or m.
func (r *ReasoningEngine) Decide(b *domain.BeliefState, m *domain.Memory, now time.Time) domain.Decision {
	ev := &evaluation{
		r:        r,
		belief:   b,
		memory:   m,
		now:      now,
		symptoms: b.SymptomList(),
	}
	for _, rule := range r.rules {
		if d, ok := rule.Match(ev); ok {
			d.Rule = rule.Name
			d.Timestamp = now
			return d
		}
	}
	d, _ := clarify(ev)
	d.Rule = RuleClarify
	d.Timestamp = now
	return d
}

// ActionsToday counts actions recorded on now's calendar date.
func (r *ReasoningEngine) ActionsToday(m *domain.Memory, now time.Time) int {
	n := 0
	for _, a := range m.Actions {
		if sameDay(a.Timestamp, now, r.settings.location()) {
			n++
		}
	}
	return n
}

// PressingNutrient returns the uncomfortable nutrient under the most
// pressure, where low value and low confidence both add pressure. ok is
// false when every nutrient is at or above the comfortable threshold.
func (r *ReasoningEngine) PressingNutrient(b *domain.BeliefState, m *domain.Memory) (n domain.NutrientID, pressure float64, ok bool) {
	var bestAt time.Time
	for _, cand := range b.Nutrients() {
		value := b.Nutrition[cand]
		if value >= r.settings.ComfortableThreshold {
			continue
		}
		p := r.pressure(value, b.Get(domain.ConfidenceField(cand)))
		at, _ := m.LastTargeted(cand)
		switch {
		case !ok, p > pressure+pressureEpsilon:
		case math.Abs(p-pressure) <= pressureEpsilon && at.Before(bestAt):
		default:
			continue
		}
		n, pressure, bestAt, ok = cand, p, at, true
	}
	return n, pressure, ok
}

func (r *ReasoningEngine) pressure(value, confidence float64) float64 {
	return (1 - value) * (1 - r.settings.ConfidenceDiscount*confidence)
}

func symptomAlert(ev *evaluation) (domain.Decision, bool) {
	critical := ev.r.safety.CriticalSymptoms(ev.symptoms)
	if len(critical) == 0 {
		return domain.Decision{}, false
	}
	d := domain.Decision{
		ActionType: domain.ActionAlertMedical,
		Reason:     "critical symptoms reported: " + joinSymptoms(critical),
		Payload: map[string]any{
			"critical_symptoms": critical,
			"urgent":            true,
		},
	}
	attachPendingViolations(ev, d.Payload)
	return d, true
}

func stateAlert(ev *evaluation) (domain.Decision, bool) {
	alerts := ev.r.safety.CheckStateForAlert(ev.belief)
	if len(alerts) == 0 {
		return domain.Decision{}, false
	}
	d := domain.Decision{
		ActionType: domain.ActionAlertMedical,
		Reason:     "belief state needs professional attention: " + strings.Join(alerts, ", "),
		Payload: map[string]any{
			"alerts": alerts,
			"urgent": false,
		},
	}
	attachPendingViolations(ev, d.Payload)
	return d, true
}

// attachPendingViolations reports unsafe pending foods alongside an alert.
// The foods stay pending so the next cycle can still block them.
func attachPendingViolations(ev *evaluation, payload map[string]any) {
	if v := pendingViolations(ev); len(v) > 0 {
		payload["pending_violations"] = v
	}
}

func pendingViolations(ev *evaluation) []domain.SafetyViolation {
	var violations []domain.SafetyViolation
	for _, f := range ev.belief.PendingFoods {
		switch {
		case ev.memory.Allergies.Has(f):
			violations = append(violations, domain.SafetyViolation{Food: f, Rule: "allergy", Reason: "allergic to " + string(f)})
		case ev.memory.Contraindications.Has(f):
			violations = append(violations, domain.SafetyViolation{Food: f, Rule: "contraindication", Reason: string(f) + " is contraindicated"})
		default:
			if v, ok := ev.r.safety.CheckFood(f, ev.belief.PregnancyStage, ev.belief.Breastfeeding); !ok {
				violations = append(violations, v)
			}
		}
	}
	return violations
}

func unsafePendingFood(ev *evaluation) (domain.Decision, bool) {
	violations := pendingViolations(ev)
	if len(violations) == 0 {
		return domain.Decision{}, false
	}
	foods := make([]domain.FoodID, len(violations))
	reasons := make([]string, len(violations))
	for i, v := range violations {
		foods[i] = v.Food
		reasons[i] = v.Reason
	}
	return domain.Decision{
		ActionType: domain.ActionBlock,
		Reason:     strings.Join(reasons, "; "),
		Payload: map[string]any{
			"foods":      foods,
			"violations": violations,
		},
	}, true
}

func dailyCap(ev *evaluation) (domain.Decision, bool) {
	last, ok := ev.memory.LastActionAt()
	if !ok || !sameDay(last, ev.now, ev.r.settings.location()) {
		return domain.Decision{}, false
	}
	return domain.Decision{
		ActionType: domain.ActionObserve,
		Reason:     "an action was already taken today",
		Payload: map[string]any{
			"last_action_at": last,
			"actions_today":  ev.r.ActionsToday(ev.memory, ev.now),
		},
	}, true
}

func comfortable(ev *evaluation) (domain.Decision, bool) {
	n, p, ok := ev.r.PressingNutrient(ev.belief, ev.memory)
	if ok {
		ev.pressing, ev.pressure = n, p
		return domain.Decision{}, false
	}
	return domain.Decision{
		ActionType: domain.ActionCheckIn,
		Reason:     "all nutrients are at a comfortable level",
		Payload: map[string]any{
			"question":       "How are you feeling today?",
			"watch_symptoms": ev.r.safety.WarningSymptoms(ev.symptoms),
		},
	}, true
}

func rememberedFood(ev *evaluation) (domain.Decision, bool) {
	if ev.pressing == "" {
		return domain.Decision{}, false
	}
	r := ev.r
	food, ok := r.memory.GetSuccessfulFor(ev.memory, ev.pressing)
	if !ok || r.memory.ShouldAvoid(ev.memory, food) {
		return domain.Decision{}, false
	}
	if v, ok := r.safety.CheckFood(food, ev.belief.PregnancyStage, ev.belief.Breastfeeding); !ok {
		ev.refused = append(ev.refused, v)
		return domain.Decision{}, false
	}
	text := fmt.Sprintf("Try adding %s to a meal today, it has helped your %s before.", humanize(string(food)), ev.pressing)
	if !r.safety.CheckSuggestionValidity(text, domain.KindFood) {
		ev.refused = append(ev.refused, domain.SafetyViolation{
			Food:   food,
			Rule:   "medical-advice",
			Reason: "suggestion text for " + string(food) + " reads as medical advice",
		})
		return domain.Decision{}, false
	}
	return domain.Decision{
		ActionType: domain.ActionSuggestFood,
		Reason:     fmt.Sprintf("%s is the most pressing nutrient and %s worked before", ev.pressing, food),
		Payload: map[string]any{
			"food":          food,
			"nutrient":      ev.pressing,
			"pressure":      ev.pressure,
			"success_count": ev.memory.SuccessfulSuggestions[food],
			"action_text":   text,
		},
	}, true
}

func clarify(ev *evaluation) (domain.Decision, bool) {
	payload := map[string]any{
		"watch_symptoms": ev.r.safety.WarningSymptoms(ev.symptoms),
	}
	if len(ev.refused) > 0 {
		payload["violations"] = ev.refused
	}
	if ev.pressing == "" {
		payload["question"] = "How have you been eating lately?"
		return domain.Decision{
			ActionType: domain.ActionCheckIn,
			Reason:     "not enough information to suggest anything",
			Payload:    payload,
		}, true
	}

	payload["nutrient"] = ev.pressing
	payload["pressure"] = ev.pressure
	payload["question"] = fmt.Sprintf("Have you had any foods rich in %s recently?", ev.pressing)
	payload["options"] = ev.r.safeOptions(ev, ev.pressing)
	return domain.Decision{
		ActionType: domain.ActionCheckIn,
		Reason:     fmt.Sprintf("%s looks low but no remembered food can be suggested", ev.pressing),
		Payload:    payload,
	}, true
}

// safeOptions lists knowledge base sources of n that pass every safety and
// preference check.
func (r *ReasoningEngine) safeOptions(ev *evaluation, n domain.NutrientID) []domain.FoodID {
	out := []domain.FoodID{}
	if r.kb == nil {
		return out
	}
	for _, f := range r.kb.FoodsFor(n) {
		if len(out) == maxClarifyOptions {
			break
		}
		if r.memory.ShouldAvoid(ev.memory, f.ID) {
			continue
		}
		if !r.safety.IsFoodSafe(f.ID, ev.belief.PregnancyStage, ev.belief.Breastfeeding) {
			continue
		}
		out = append(out, f.ID)
	}
	return out
}

func humanize(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}

func joinSymptoms(s []domain.SymptomID) string {
	parts := make([]string, len(s))
	for i, x := range s {
		parts[i] = humanize(string(x))
	}
	return strings.Join(parts, ", ")
}
