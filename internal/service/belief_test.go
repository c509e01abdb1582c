package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestBeliefService() *BeliefService {
	return NewBeliefService(DefaultSettings(), zap.NewNop())
}

func TestDampen(t *testing.T) {
	assert.InDelta(t, 0.315, Dampen(0.3, 0.35, 0.3), 1e-12)
	assert.Equal(t, 1.0, Dampen(0.9, 5, 0.5))
	assert.Equal(t, 0.0, Dampen(0.1, -5, 0.5))
}

func TestApplySignal_DampeningBound(t *testing.T) {
	s := newTestBeliefService()
	field := domain.NutritionField(domain.NutrientIron)
	values := []float64{0, 0.1, 0.3, 0.5, 0.77, 1}
	weights := []float64{0.05, 0.3, 0.5, 0.9, 1}

	for _, start := range values {
		for _, target := range values {
			for _, w := range weights {
				b := domain.NewBeliefState("u", testNow)
				b.Nutrition[domain.NutrientIron] = start
				require.NoError(t, s.ApplySignal(b, field, target, w, testNow))

				got := b.Nutrition[domain.NutrientIron]
				lo, hi := math.Min(start, target), math.Max(start, target)
				if got < lo-1e-12 || got > hi+1e-12 {
					t.Fatalf("start=%v target=%v w=%v: got %v outside [%v,%v]", start, target, w, got, lo, hi)
				}
				if got < 0 || got > 1 {
					t.Fatalf("got %v outside [0,1]", got)
				}
			}
		}
	}
}

func TestApplySignal_DefaultWeight(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)
	require.NoError(t, s.ApplySignal(b, domain.Field{Kind: domain.FieldEnergy}, 1, 0, testNow))
	assert.InDelta(t, 0.65, b.EnergyLevel, 1e-12)
	assert.Equal(t, 1, b.UpdateCount)
	assert.Equal(t, testNow, b.LastUpdated)
}

func TestApplySignal_ConfidenceMovesIndependently(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)
	require.NoError(t, s.ApplySignal(b, domain.ConfidenceField(domain.NutrientCalcium), 1, 0.5, testNow))
	assert.InDelta(t, 0.75, b.Confidence[domain.NutrientCalcium], 1e-12)
	assert.Equal(t, 0.5, b.Nutrition[domain.NutrientCalcium])
}

func TestApplySignal_OutOfRangeTargetIsClamped(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)
	require.NoError(t, s.ApplySignal(b, domain.Field{Kind: domain.FieldSleep}, 40, 1, testNow))
	assert.Equal(t, 1.0, b.SleepQuality)
}

func TestApplySignal_Rejects(t *testing.T) {
	s := newTestBeliefService()
	cases := []struct {
		name   string
		field  domain.Field
		value  float64
		weight float64
	}{
		{"nan value", domain.NutritionField(domain.NutrientIron), math.NaN(), 0.3},
		{"inf value", domain.NutritionField(domain.NutrientIron), math.Inf(1), 0.3},
		{"negative weight", domain.NutritionField(domain.NutrientIron), 0.5, -0.1},
		{"weight above one", domain.NutritionField(domain.NutrientIron), 0.5, 1.5},
		{"unknown nutrient", domain.NutritionField("zinc"), 0.5, 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := domain.NewBeliefState("u", testNow)
			before := b.Clone()
			err := s.ApplySignal(b, tc.field, tc.value, tc.weight, testNow)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			assert.Equal(t, before, b)
		})
	}
}

func TestReportSymptom(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)

	require.NoError(t, s.ReportSymptom(b, "  Severe Bleeding ", testNow))
	assert.True(t, b.HasSymptom("severe_bleeding"))
	assert.Equal(t, testNow, b.LastUpdated)

	err := s.ReportSymptom(b, "   ", testNow)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyPrediction(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)

	err := s.ApplyPrediction(b, domain.Prediction{Nutrient: domain.NutrientIron, Value: 0.2, ModelConfidence: 0.9}, testNow)
	require.NoError(t, err)
	assert.InDelta(t, 0.41, b.Nutrition[domain.NutrientIron], 1e-12)
	assert.InDelta(t, 0.7, b.Confidence[domain.NutrientIron], 1e-12)

	err = s.ApplyPrediction(b, domain.Prediction{Nutrient: "zinc", Value: 0.2}, testNow)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplySentiment(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)

	require.NoError(t, s.ApplySentiment(b, domain.SentimentPositive, 1, testNow))
	assert.InDelta(t, 0.53, b.EnergyLevel, 1e-12)

	require.NoError(t, s.ApplySentiment(b, domain.SentimentNeutral, 1, testNow))
	assert.InDelta(t, 0.53, b.EnergyLevel, 1e-12)

	require.NoError(t, s.ApplySentiment(b, domain.SentimentNegative, 0.5, testNow))
	assert.InDelta(t, 0.515, b.EnergyLevel, 1e-12)

	require.NoError(t, s.ApplySentiment(b, domain.SentimentNegative, 0, testNow))
	assert.InDelta(t, 0.515, b.EnergyLevel, 1e-12)

	assert.ErrorIs(t, s.ApplySentiment(b, "ecstatic", 1, testNow), domain.ErrValidation)
	assert.ErrorIs(t, s.ApplySentiment(b, domain.SentimentPositive, -0.1, testNow), domain.ErrValidation)
	assert.ErrorIs(t, s.ApplySentiment(b, domain.SentimentPositive, 1.01, testNow), domain.ErrValidation)
}

func TestSetProfile(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)

	require.NoError(t, s.SetProfile(b, domain.StageBreastfeeding, false, 29, testNow))
	assert.Equal(t, domain.StageBreastfeeding, b.PregnancyStage)
	assert.True(t, b.Breastfeeding)
	assert.Equal(t, 29, b.Age)

	assert.ErrorIs(t, s.SetProfile(b, "trimester", false, 0, testNow), domain.ErrValidation)
	assert.ErrorIs(t, s.SetProfile(b, domain.StagePregnant, false, -1, testNow), domain.ErrValidation)
}

func TestAddPendingFoods(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)
	s.AddPendingFoods(b, []string{"Raw Milk", "raw_milk", "", "spinach"}, testNow)
	assert.Equal(t, []domain.FoodID{"raw_milk", "spinach"}, b.PendingFoods)
}

func TestExpireSymptoms(t *testing.T) {
	s := newTestBeliefService()
	b := domain.NewBeliefState("u", testNow)
	b.Symptoms["nausea"] = testNow.Add(-80 * time.Hour)
	b.Symptoms["fatigue"] = testNow.Add(-time.Hour)

	n := s.ExpireSymptoms(b, testNow.Add(-72*time.Hour))
	assert.Equal(t, 1, n)
	assert.False(t, b.HasSymptom("nausea"))
	assert.True(t, b.HasSymptom("fatigue"))
}
