package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NeutralBelief is the value every continuous belief starts at.
const NeutralBelief = 0.5

// BeliefState is the smoothed per-user estimate of nutritional and physical
// status. Values are tendencies in [0,1], not measurements.
type BeliefState struct {
	UserID     string                 `json:"user_id"`
	Nutrition  map[NutrientID]float64 `json:"nutrition"`
	Confidence map[NutrientID]float64 `json:"confidence"`

	EnergyLevel    float64 `json:"energy_level"`
	SleepQuality   float64 `json:"sleep_quality"`
	HydrationLevel float64 `json:"hydration_level"`
	StressLevel    float64 `json:"stress_level"`

	// Symptoms maps each reported symptom to when it was last reported.
	Symptoms map[SymptomID]time.Time `json:"symptoms"`
	// PendingFoods are foods the user said they are about to eat.
	PendingFoods []FoodID `json:"pending_foods,omitempty"`

	PregnancyStage Stage `json:"pregnancy_stage"`
	Breastfeeding  bool  `json:"breastfeeding"`
	Age            int   `json:"age,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	UpdateCount int       `json:"update_count"`
}

func NewBeliefState(userID string, now time.Time) *BeliefState {
	b := &BeliefState{
		UserID:         userID,
		Nutrition:      make(map[NutrientID]float64, len(AllNutrients)),
		Confidence:     make(map[NutrientID]float64, len(AllNutrients)),
		EnergyLevel:    NeutralBelief,
		SleepQuality:   NeutralBelief,
		HydrationLevel: NeutralBelief,
		StressLevel:    NeutralBelief,
		Symptoms:       make(map[SymptomID]time.Time),
		PregnancyStage: StagePlanning,
		CreatedAt:      now,
		LastUpdated:    now,
	}
	for _, n := range AllNutrients {
		b.Nutrition[n] = NeutralBelief
		b.Confidence[n] = NeutralBelief
	}
	return b
}

// Clone returns a deep copy.
func (b *BeliefState) Clone() *BeliefState {
	c := *b
	c.Nutrition = make(map[NutrientID]float64, len(b.Nutrition))
	for k, v := range b.Nutrition {
		c.Nutrition[k] = v
	}
	c.Confidence = make(map[NutrientID]float64, len(b.Confidence))
	for k, v := range b.Confidence {
		c.Confidence[k] = v
	}
	c.Symptoms = make(map[SymptomID]time.Time, len(b.Symptoms))
	for k, v := range b.Symptoms {
		c.Symptoms[k] = v
	}
	c.PendingFoods = append([]FoodID(nil), b.PendingFoods...)
	return &c
}

func (b *BeliefState) HasSymptom(s SymptomID) bool {
	_, ok := b.Symptoms[s]
	return ok
}

// SymptomList returns the reported symptoms in lexical order.
func (b *BeliefState) SymptomList() []SymptomID {
	out := make([]SymptomID, 0, len(b.Symptoms))
	for s := range b.Symptoms {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Nutrients returns the nutrients present in the state in canonical order.
func (b *BeliefState) Nutrients() []NutrientID {
	out := make([]NutrientID, 0, len(b.Nutrition))
	for _, n := range AllNutrients {
		if _, ok := b.Nutrition[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// FieldKind selects which belief a signal targets.
type FieldKind string

const (
	FieldNutrition  FieldKind = "nutrition"
	FieldConfidence FieldKind = "confidence"
	FieldEnergy     FieldKind = "energy_level"
	FieldSleep      FieldKind = "sleep_quality"
	FieldHydration  FieldKind = "hydration_level"
	FieldStress     FieldKind = "stress_level"
)

// Field addresses one continuous value of a BeliefState. Nutrient is set
// only for nutrition and confidence fields.
type Field struct {
	Kind     FieldKind
	Nutrient NutrientID
}

func NutritionField(n NutrientID) Field  { return Field{Kind: FieldNutrition, Nutrient: n} }
func ConfidenceField(n NutrientID) Field { return Field{Kind: FieldConfidence, Nutrient: n} }

func (f Field) String() string {
	if f.Nutrient != "" {
		return string(f.Kind) + "." + string(f.Nutrient)
	}
	return string(f.Kind)
}

// ParseField accepts "nutrition.iron", "confidence.iron", a bare nutrient
// ("iron", meaning its nutrition value) or a physiological field name.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if kind, nutrient, ok := strings.Cut(s, "."); ok {
		if !ValidNutrient(nutrient) {
			return Field{}, fmt.Errorf("%w: unknown nutrient %q", ErrValidation, nutrient)
		}
		switch FieldKind(kind) {
		case FieldNutrition, FieldConfidence:
			return Field{Kind: FieldKind(kind), Nutrient: NutrientID(nutrient)}, nil
		}
		return Field{}, fmt.Errorf("%w: unknown field %q", ErrValidation, s)
	}
	if ValidNutrient(s) {
		return NutritionField(NutrientID(s)), nil
	}
	switch FieldKind(s) {
	case FieldEnergy, FieldSleep, FieldHydration, FieldStress:
		return Field{Kind: FieldKind(s)}, nil
	}
	return Field{}, fmt.Errorf("%w: unknown field %q", ErrValidation, s)
}

// Get returns the current value of f. Nutrients absent from the state read
// as neutral.
func (b *BeliefState) Get(f Field) float64 {
	switch f.Kind {
	case FieldNutrition:
		if v, ok := b.Nutrition[f.Nutrient]; ok {
			return v
		}
	case FieldConfidence:
		if v, ok := b.Confidence[f.Nutrient]; ok {
			return v
		}
	case FieldEnergy:
		return b.EnergyLevel
	case FieldSleep:
		return b.SleepQuality
	case FieldHydration:
		return b.HydrationLevel
	case FieldStress:
		return b.StressLevel
	}
	return NeutralBelief
}

// Set stores v clamped to [0,1].
func (b *BeliefState) Set(f Field, v float64) {
	v = Clamp01(v)
	switch f.Kind {
	case FieldNutrition:
		b.Nutrition[f.Nutrient] = v
	case FieldConfidence:
		b.Confidence[f.Nutrient] = v
	case FieldEnergy:
		b.EnergyLevel = v
	case FieldSleep:
		b.SleepQuality = v
	case FieldHydration:
		b.HydrationLevel = v
	case FieldStress:
		b.StressLevel = v
	}
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
