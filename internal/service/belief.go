package service

import (
	"fmt"
	"math"
	"time"

	"github.com/nutrimama/nutrimama/internal/domain"
	"go.uber.org/zap"
)

// Dampen blends current toward target: (1-weight)*current + weight*target,
// clamped to [0,1].
func Dampen(current, target, weight float64) float64 {
	return domain.Clamp01((1-weight)*current + weight*target)
}

// BeliefService applies incoming signals to a BeliefState. It never touches
// storage; callers own the state and its persistence.
type BeliefService struct {
	settings Settings
	logger   *zap.Logger
}

func NewBeliefService(settings Settings, logger *zap.Logger) *BeliefService {
	return &BeliefService{settings: settings, logger: logger}
}

// ApplySignal dampens field f toward value. A zero weight selects the
// configured default.
func (s *BeliefService) ApplySignal(b *domain.BeliefState, f domain.Field, value, weight float64, now time.Time) error {
	if !finite(value) {
		return fmt.Errorf("%w: signal value must be a finite number", domain.ErrValidation)
	}
	if weight == 0 {
		weight = s.settings.DampeningWeight
	}
	if !finite(weight) || weight < 0 || weight > 1 {
		return fmt.Errorf("%w: weight %v outside [0,1]", domain.ErrValidation, weight)
	}
	if (f.Kind == domain.FieldNutrition || f.Kind == domain.FieldConfidence) && !domain.ValidNutrient(string(f.Nutrient)) {
		return fmt.Errorf("%w: unknown nutrient %q", domain.ErrValidation, f.Nutrient)
	}

	before := b.Get(f)
	b.Set(f, Dampen(before, value, weight))
	touch(b, now)

	s.logger.Debug("signal applied",
		zap.String("user_id", b.UserID),
		zap.String("field", f.String()),
		zap.Float64("before", before),
		zap.Float64("after", b.Get(f)),
	)
	return nil
}

// ReportSymptom records a symptom as present. Symptoms are categorical and
// are not dampened.
func (s *BeliefService) ReportSymptom(b *domain.BeliefState, symptom string, now time.Time) error {
	id := domain.NormalizeSymptom(symptom)
	if id == "" {
		return fmt.Errorf("%w: symptom is required", domain.ErrValidation)
	}
	b.Symptoms[id] = now
	touch(b, now)
	return nil
}

// ApplyPrediction blends a model estimate into the nutrient's value with the
// dampening weight and into its confidence with the confidence weight.
func (s *BeliefService) ApplyPrediction(b *domain.BeliefState, p domain.Prediction, now time.Time) error {
	if !domain.ValidNutrient(string(p.Nutrient)) {
		return fmt.Errorf("%w: unknown nutrient %q", domain.ErrValidation, p.Nutrient)
	}
	if !finite(p.Value) || !finite(p.ModelConfidence) {
		return fmt.Errorf("%w: prediction values must be finite numbers", domain.ErrValidation)
	}
	value := b.Get(domain.NutritionField(p.Nutrient))
	conf := b.Get(domain.ConfidenceField(p.Nutrient))
	b.Nutrition[p.Nutrient] = Dampen(value, domain.Clamp01(p.Value), s.settings.DampeningWeight)
	b.Confidence[p.Nutrient] = Dampen(conf, domain.Clamp01(p.ModelConfidence), s.settings.ConfidenceWeight)
	touch(b, now)
	return nil
}

// ApplySentiment nudges energy up or down by the sentiment step. scale in
// [0,1] shrinks the weight for low-confidence perceptions; 0 ignores the
// sentiment.
func (s *BeliefService) ApplySentiment(b *domain.BeliefState, sentiment domain.Sentiment, scale float64, now time.Time) error {
	if math.IsNaN(scale) || scale < 0 || scale > 1 {
		return fmt.Errorf("%w: perception confidence %v outside [0,1]", domain.ErrValidation, scale)
	}
	var delta float64
	switch sentiment {
	case domain.SentimentPositive:
		delta = s.settings.SentimentStep
	case domain.SentimentNegative:
		delta = -s.settings.SentimentStep
	case domain.SentimentNeutral, "":
		return nil
	default:
		return fmt.Errorf("%w: unknown sentiment %q", domain.ErrValidation, sentiment)
	}
	if scale == 0 {
		return nil
	}
	b.EnergyLevel = Dampen(b.EnergyLevel, b.EnergyLevel+delta, s.settings.DampeningWeight*scale)
	touch(b, now)
	return nil
}

// SetProfile updates the life-stage facts the safety rules depend on.
func (s *BeliefService) SetProfile(b *domain.BeliefState, stage domain.Stage, breastfeeding bool, age int, now time.Time) error {
	if !domain.ValidStage(string(stage)) {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrValidation, stage)
	}
	if age < 0 || age > 120 {
		return fmt.Errorf("%w: age %d out of range", domain.ErrValidation, age)
	}
	b.PregnancyStage = stage
	b.Breastfeeding = breastfeeding || stage == domain.StageBreastfeeding
	if age > 0 {
		b.Age = age
	}
	touch(b, now)
	return nil
}

// AddPendingFoods marks foods the user is about to eat so the next decision
// can check them.
func (s *BeliefService) AddPendingFoods(b *domain.BeliefState, foods []string, now time.Time) {
	added := false
	for _, raw := range foods {
		f := domain.NormalizeFood(raw)
		if f == "" || containsFood(b.PendingFoods, f) {
			continue
		}
		b.PendingFoods = append(b.PendingFoods, f)
		added = true
	}
	if added {
		touch(b, now)
	}
}

// ExpireSymptoms removes symptoms last reported before cutoff and returns
// how many were removed.
func (s *BeliefService) ExpireSymptoms(b *domain.BeliefState, cutoff time.Time) int {
	n := 0
	for id, at := range b.Symptoms {
		if at.Before(cutoff) {
			delete(b.Symptoms, id)
			n++
		}
	}
	return n
}

func touch(b *domain.BeliefState, now time.Time) {
	b.LastUpdated = now
	b.UpdateCount++
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func containsFood(foods []domain.FoodID, f domain.FoodID) bool {
	for _, x := range foods {
		if x == f {
			return true
		}
	}
	return false
}
