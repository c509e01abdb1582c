package domain

import "strings"

// NutrientID names a tracked nutrient. The set is closed.
type NutrientID string

const (
	NutrientIron       NutrientID = "iron"
	NutrientProtein    NutrientID = "protein"
	NutrientCalcium    NutrientID = "calcium"
	NutrientFolic      NutrientID = "folic"
	NutrientVitaminB12 NutrientID = "vitamin_b12"
	NutrientIodine     NutrientID = "iodine"
	NutrientVitaminD   NutrientID = "vitamin_d"
)

// AllNutrients lists the tracked nutrients in their canonical order.
var AllNutrients = []NutrientID{
	NutrientIron,
	NutrientProtein,
	NutrientCalcium,
	NutrientFolic,
	NutrientVitaminB12,
	NutrientIodine,
	NutrientVitaminD,
}

func ValidNutrient(s string) bool {
	switch NutrientID(s) {
	case NutrientIron, NutrientProtein, NutrientCalcium, NutrientFolic,
		NutrientVitaminB12, NutrientIodine, NutrientVitaminD:
		return true
	}
	return false
}

// FoodID names a food. Validity is decided by the knowledge base.
type FoodID string

// SymptomID names a reported symptom.
type SymptomID string

// NormalizeSymptom lowercases and snake-cases free-form symptom names so
// "Severe Bleeding" and "severe_bleeding" collapse to one id.
func NormalizeSymptom(s string) SymptomID {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "_")
	return SymptomID(strings.ReplaceAll(s, "-", "_"))
}

// NormalizeFood applies the same normalization to food ids.
func NormalizeFood(s string) FoodID {
	return FoodID(NormalizeSymptom(s))
}

type Stage string

const (
	StagePlanning      Stage = "planning"
	StagePregnant      Stage = "pregnant"
	StageBreastfeeding Stage = "breastfeeding"
)

func ValidStage(s string) bool {
	switch Stage(s) {
	case StagePlanning, StagePregnant, StageBreastfeeding:
		return true
	}
	return false
}

// FoodInfo is a knowledge base entry for a single food.
type FoodInfo struct {
	ID         FoodID                `json:"id" yaml:"id"`
	Nutrients  map[NutrientID]string `json:"nutrients" yaml:"nutrients"`
	SafeDuring []Stage               `json:"safe_during" yaml:"safe_during"`
	Cautions   string                `json:"cautions,omitempty" yaml:"cautions,omitempty"`
}

// Provides reports whether the food is a listed source of the nutrient.
func (f FoodInfo) Provides(n NutrientID) bool {
	_, ok := f.Nutrients[n]
	return ok
}

// SafeFor reports whether the stage is listed in SafeDuring.
func (f FoodInfo) SafeFor(stage Stage) bool {
	for _, s := range f.SafeDuring {
		if s == stage {
			return true
		}
	}
	return false
}

// SafetyRules are the fixed tables the safety checker evaluates against.
type SafetyRules struct {
	UnsafeDuringPregnancy     []FoodID    `json:"unsafe_during_pregnancy" yaml:"unsafe_during_pregnancy"`
	UnsafeDuringBreastfeeding []FoodID    `json:"unsafe_during_breastfeeding" yaml:"unsafe_during_breastfeeding"`
	CriticalSymptoms          []SymptomID `json:"critical_symptoms" yaml:"critical_symptoms"`
	WarningSymptoms           []SymptomID `json:"warning_symptoms" yaml:"warning_symptoms"`
	MedicalKeywords           []string    `json:"medical_keywords" yaml:"medical_keywords"`
}

// KnowledgeBase is the read-only nutrition lookup consumed by the core.
type KnowledgeBase interface {
	Food(id FoodID) (FoodInfo, bool)
	FoodsFor(n NutrientID) []FoodInfo
	Rules() SafetyRules
}
