package service

import (
	"sort"
	"strings"
	"unicode"

	"github.com/nutrimama/nutrimama/internal/domain"
)

const (
	// A nutrient this low with this much confidence is an alert by itself.
	DefaultCriticalNutrientValue      = 0.2
	DefaultCriticalNutrientConfidence = 0.8
	// Energy and sleep both below this together raise an alert.
	DefaultExhaustionLevel = 0.3
)

// DefaultSafetyRules are used for any table the knowledge base leaves empty.
func DefaultSafetyRules() domain.SafetyRules {
	return domain.SafetyRules{
		UnsafeDuringPregnancy: []domain.FoodID{
			"raw_milk", "unpasteurized_cheese", "raw_eggs", "high_mercury_fish",
			"pate", "undercooked_meat", "alcohol", "raw_sprouts", "unwashed_vegetables",
		},
		UnsafeDuringBreastfeeding: []domain.FoodID{
			"sage", "peppermint_tea_excess", "parsley_excess", "alcohol",
		},
		CriticalSymptoms: []domain.SymptomID{
			"severe_bleeding", "severe_abdominal_pain", "sudden_severe_headache",
			"vision_changes", "seizures", "loss_of_consciousness", "severe_allergic_reaction",
		},
		WarningSymptoms: []domain.SymptomID{
			"persistent_vomiting", "severe_dizziness", "swelling_with_headache",
			"chest_pain", "shortness_of_breath",
		},
		MedicalKeywords: []string{"treat", "cure", "disease", "infection", "medicine"},
	}
}

// SafetyChecker evaluates the hard safety rules. Its tables are fixed at
// construction and every predicate is computed fresh on each call, so a
// checker is safe for concurrent use.
type SafetyChecker struct {
	kb domain.KnowledgeBase

	unsafePregnancy     domain.FoodSet
	unsafeBreastfeeding domain.FoodSet
	critical            map[domain.SymptomID]struct{}
	warning             map[domain.SymptomID]struct{}
	medicalKeywords     []string

	CriticalNutrientValue      float64
	CriticalNutrientConfidence float64
	ExhaustionLevel            float64
}

// NewSafetyChecker builds a checker from the knowledge base's rule tables.
// kb may be nil, in which case only the built-in tables apply.
func NewSafetyChecker(kb domain.KnowledgeBase) *SafetyChecker {
	rules := DefaultSafetyRules()
	if kb != nil {
		r := kb.Rules()
		if len(r.UnsafeDuringPregnancy) > 0 {
			rules.UnsafeDuringPregnancy = r.UnsafeDuringPregnancy
		}
		if len(r.UnsafeDuringBreastfeeding) > 0 {
			rules.UnsafeDuringBreastfeeding = r.UnsafeDuringBreastfeeding
		}
		if len(r.CriticalSymptoms) > 0 {
			rules.CriticalSymptoms = r.CriticalSymptoms
		}
		if len(r.WarningSymptoms) > 0 {
			rules.WarningSymptoms = r.WarningSymptoms
		}
		if len(r.MedicalKeywords) > 0 {
			rules.MedicalKeywords = r.MedicalKeywords
		}
	}

	c := &SafetyChecker{
		kb:                         kb,
		unsafePregnancy:            domain.NewFoodSet(),
		unsafeBreastfeeding:        domain.NewFoodSet(),
		critical:                   make(map[domain.SymptomID]struct{}),
		warning:                    make(map[domain.SymptomID]struct{}),
		CriticalNutrientValue:      DefaultCriticalNutrientValue,
		CriticalNutrientConfidence: DefaultCriticalNutrientConfidence,
		ExhaustionLevel:            DefaultExhaustionLevel,
	}
	for _, f := range rules.UnsafeDuringPregnancy {
		c.unsafePregnancy.Add(domain.NormalizeFood(string(f)))
	}
	for _, f := range rules.UnsafeDuringBreastfeeding {
		c.unsafeBreastfeeding.Add(domain.NormalizeFood(string(f)))
	}
	for _, s := range rules.CriticalSymptoms {
		c.critical[domain.NormalizeSymptom(string(s))] = struct{}{}
	}
	for _, s := range rules.WarningSymptoms {
		c.warning[domain.NormalizeSymptom(string(s))] = struct{}{}
	}
	for _, kw := range rules.MedicalKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			c.medicalKeywords = append(c.medicalKeywords, kw)
		}
	}
	return c
}

// IsFoodSafe reports whether food may be suggested at this stage.
func (c *SafetyChecker) IsFoodSafe(food domain.FoodID, stage domain.Stage, breastfeeding bool) bool {
	_, ok := c.CheckFood(food, stage, breastfeeding)
	return ok
}

// CheckFood is IsFoodSafe with the reason attached when the food is refused.
func (c *SafetyChecker) CheckFood(food domain.FoodID, stage domain.Stage, breastfeeding bool) (domain.SafetyViolation, bool) {
	food = domain.NormalizeFood(string(food))
	breastfeeding = breastfeeding || stage == domain.StageBreastfeeding

	if stage == domain.StagePregnant && c.unsafePregnancy.Has(food) {
		return domain.SafetyViolation{Food: food, Rule: "unsafe-during-pregnancy", Reason: string(food) + " is not safe during pregnancy"}, false
	}
	if breastfeeding && c.unsafeBreastfeeding.Has(food) {
		return domain.SafetyViolation{Food: food, Rule: "unsafe-during-breastfeeding", Reason: string(food) + " is not recommended while breastfeeding"}, false
	}
	if c.kb != nil {
		if info, ok := c.kb.Food(food); ok && len(info.SafeDuring) > 0 {
			if !info.SafeFor(stage) {
				return domain.SafetyViolation{Food: food, Rule: "not-listed-safe", Reason: string(food) + " is not listed as safe while " + string(stage)}, false
			}
			if breastfeeding && stage != domain.StageBreastfeeding && !info.SafeFor(domain.StageBreastfeeding) {
				return domain.SafetyViolation{Food: food, Rule: "not-listed-safe", Reason: string(food) + " is not listed as safe while breastfeeding"}, false
			}
		}
	}
	return domain.SafetyViolation{}, true
}

// CheckSymptomsForAlert reports whether any symptom is critical. Adding
// symptoms can only turn the result from false to true.
func (c *SafetyChecker) CheckSymptomsForAlert(symptoms []domain.SymptomID) bool {
	return len(c.CriticalSymptoms(symptoms)) > 0
}

// CriticalSymptoms returns the critical members of symptoms, sorted.
func (c *SafetyChecker) CriticalSymptoms(symptoms []domain.SymptomID) []domain.SymptomID {
	return intersect(symptoms, c.critical)
}

// WarningSymptoms returns the watch-list members of symptoms, sorted.
func (c *SafetyChecker) WarningSymptoms(symptoms []domain.SymptomID) []domain.SymptomID {
	return intersect(symptoms, c.warning)
}

// CheckSuggestionValidity refuses anything that is medical advice: the
// medication, treatment and procedure kinds, and any text using a medical
// keyword.
func (c *SafetyChecker) CheckSuggestionValidity(suggestion string, kind domain.SuggestionKind) bool {
	switch kind {
	case domain.KindFood, domain.KindRest, domain.KindHydration, domain.KindLifestyle:
	default:
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(suggestion), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		for _, kw := range c.medicalKeywords {
			if strings.HasPrefix(w, kw) {
				return false
			}
		}
	}
	return true
}

// CheckStateForAlert looks for belief patterns serious enough to send the
// user to a professional: a nutrient confidently near zero, or exhaustion.
// It returns one message per finding.
func (c *SafetyChecker) CheckStateForAlert(b *domain.BeliefState) []string {
	var alerts []string
	for _, n := range b.Nutrients() {
		if b.Nutrition[n] < c.CriticalNutrientValue && b.Confidence[n] > c.CriticalNutrientConfidence {
			alerts = append(alerts, "very low "+string(n)+" levels")
		}
	}
	if b.EnergyLevel < c.ExhaustionLevel && b.SleepQuality < c.ExhaustionLevel {
		alerts = append(alerts, "severe exhaustion")
	}
	return alerts
}

func intersect(symptoms []domain.SymptomID, set map[domain.SymptomID]struct{}) []domain.SymptomID {
	seen := make(map[domain.SymptomID]struct{})
	var out []domain.SymptomID
	for _, s := range symptoms {
		s = domain.NormalizeSymptom(string(s))
		if _, ok := set[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
