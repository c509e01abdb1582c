package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMemoryService() *MemoryService {
	kb := knowledge.Default()
	return NewMemoryService(DefaultSettings(), kb, NewSafetyChecker(kb), zap.NewNop())
}

func foodAction(food domain.FoodID, nutrients ...domain.NutrientID) domain.Action {
	return domain.Action{
		ActionType:        domain.ActionSuggestFood,
		ActionText:        "Try some " + string(food),
		Food:              food,
		NutrientsTargeted: nutrients,
	}
}

func TestRecordAction(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)

	id, err := s.RecordAction(m, foodAction("spinach", domain.NutrientIron), testNow)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	a := m.ActionByID(id)
	require.NotNil(t, a)
	assert.Equal(t, domain.OutcomePending, a.Outcome)
	assert.Equal(t, domain.KindFood, a.Kind)
	assert.Equal(t, testNow, a.Timestamp)
}

func TestRecordAction_Validation(t *testing.T) {
	s := newTestMemoryService()

	cases := []struct {
		name   string
		action domain.Action
	}{
		{"no nutrients", foodAction("spinach")},
		{"unknown nutrient", foodAction("spinach", "zinc")},
		{"no food", foodAction("", domain.NutrientIron)},
		{"unknown food", foodAction("moon_cheese", domain.NutrientIron)},
		{"bad type", domain.Action{ActionType: "SHOUT"}},
		{"medication kind", domain.Action{ActionType: domain.ActionCheckIn, Kind: domain.KindMedication, ActionText: "Take iron"}},
		{"medical text", domain.Action{ActionType: domain.ActionSuggestFood, Food: "spinach", ActionText: "Spinach cures anemia", NutrientsTargeted: []domain.NutrientID{domain.NutrientIron}}},
		{"already resolved", domain.Action{ActionType: domain.ActionObserve, Outcome: domain.OutcomePositive}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := domain.NewMemory("u", testNow)
			_, err := s.RecordAction(m, tc.action, testNow)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, m.Actions)
		})
	}
}

func TestRecordAction_NonSuggestionNeedsNoNutrients(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)
	_, err := s.RecordAction(m, domain.Action{ActionType: domain.ActionCheckIn, ActionText: "How are you?"}, testNow)
	require.NoError(t, err)
	assert.Len(t, m.Actions, 1)
}

func TestRecordOutcome_WriteOnce(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)
	id, err := s.RecordAction(m, foodAction("spinach", domain.NutrientIron), testNow)
	require.NoError(t, err)

	require.NoError(t, s.RecordOutcome(m, id, domain.OutcomePositive, "felt good", testNow))

	err = s.RecordOutcome(m, id, domain.OutcomeNegative, "changed my mind", testNow)
	assert.ErrorIs(t, err, domain.ErrAlreadyRecorded)

	a := m.ActionByID(id)
	assert.Equal(t, domain.OutcomePositive, a.Outcome)
	assert.Equal(t, "felt good", a.OutcomeText)
	assert.Equal(t, 1, m.SuccessfulSuggestions["spinach"])
	assert.Zero(t, m.FailedSuggestions["spinach"])
}

func TestRecordOutcome_Errors(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)

	err := s.RecordOutcome(m, uuid.New(), domain.OutcomePositive, "", testNow)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id, _ := s.RecordAction(m, foodAction("spinach", domain.NutrientIron), testNow)
	err = s.RecordOutcome(m, id, domain.OutcomePending, "", testNow)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordOutcome_Counters(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)

	for _, o := range []domain.Outcome{domain.OutcomePositive, domain.OutcomeNegative, domain.OutcomeNegative, domain.OutcomeNeutral} {
		id, err := s.RecordAction(m, foodAction("lentils", domain.NutrientProtein), testNow)
		require.NoError(t, err)
		require.NoError(t, s.RecordOutcome(m, id, o, "", testNow))
	}
	assert.Equal(t, 1, m.SuccessfulSuggestions["lentils"])
	assert.Equal(t, 2, m.FailedSuggestions["lentils"])
}

func TestShouldAvoid_Pattern(t *testing.T) {
	s := newTestMemoryService()

	m := domain.NewMemory("u", testNow)
	m.SuccessfulSuggestions["eggs"] = 1
	m.FailedSuggestions["eggs"] = 3
	assert.True(t, s.ShouldAvoid(m, "eggs"))

	m = domain.NewMemory("u", testNow)
	m.SuccessfulSuggestions["eggs"] = 1
	m.FailedSuggestions["eggs"] = 1
	assert.False(t, s.ShouldAvoid(m, "eggs"), "a 50% failure ratio is not above the threshold")

	m = domain.NewMemory("u", testNow)
	m.FailedSuggestions["eggs"] = 1
	assert.False(t, s.ShouldAvoid(m, "eggs"), "one attempt is not enough evidence")
}

func TestShouldAvoid_Sets(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)
	require.NoError(t, s.AddDislike(m, "Okra", testNow))
	require.NoError(t, s.AddAllergy(m, "peanuts", testNow))
	require.NoError(t, s.AddContraindication(m, "liquorice", testNow))

	assert.True(t, s.ShouldAvoid(m, "okra"))
	assert.True(t, s.ShouldAvoid(m, "peanuts"))
	assert.True(t, s.ShouldAvoid(m, "liquorice"))
	assert.False(t, s.ShouldAvoid(m, "spinach"))

	assert.True(t, m.Contraindications.Has("peanuts"), "an allergen is also a contraindication")
	assert.ErrorIs(t, s.AddDislike(m, "  ", testNow), domain.ErrValidation)
}

func TestGetSuccessfulFor(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)

	record := func(food domain.FoodID, n domain.NutrientID, o domain.Outcome, at time.Time) {
		t.Helper()
		id, err := s.RecordAction(m, foodAction(food, n), at)
		require.NoError(t, err)
		require.NoError(t, s.RecordOutcome(m, id, o, "", at))
	}

	_, ok := s.GetSuccessfulFor(m, domain.NutrientIron)
	assert.False(t, ok)

	record("lentils", domain.NutrientIron, domain.OutcomePositive, testNow.Add(-72*time.Hour))
	record("spinach", domain.NutrientIron, domain.OutcomePositive, testNow.Add(-48*time.Hour))
	record("spinach", domain.NutrientIron, domain.OutcomePositive, testNow.Add(-24*time.Hour))
	record("milk", domain.NutrientCalcium, domain.OutcomePositive, testNow.Add(-24*time.Hour))

	food, ok := s.GetSuccessfulFor(m, domain.NutrientIron)
	require.True(t, ok)
	assert.Equal(t, domain.FoodID("spinach"), food)

	// The knowledge base lists spinach as a calcium source too.
	food, ok = s.GetSuccessfulFor(m, domain.NutrientCalcium)
	require.True(t, ok)
	assert.Equal(t, domain.FoodID("spinach"), food)

	food, ok = s.GetSuccessfulFor(m, domain.NutrientIodine)
	assert.False(t, ok, "no successful food targets iodine")

	require.NoError(t, s.AddDislike(m, "spinach", testNow))
	food, ok = s.GetSuccessfulFor(m, domain.NutrientIron)
	require.True(t, ok)
	assert.Equal(t, domain.FoodID("lentils"), food)
}

func TestGetSuccessfulFor_TieGoesToMostRecentSuccess(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)

	for _, tc := range []struct {
		food domain.FoodID
		at   time.Time
	}{
		{"dates", testNow.Add(-10 * time.Hour)},
		{"jaggery", testNow.Add(-2 * time.Hour)},
		{"chicken", testNow.Add(-5 * time.Hour)},
	} {
		id, err := s.RecordAction(m, foodAction(tc.food, domain.NutrientIron), tc.at)
		require.NoError(t, err)
		require.NoError(t, s.RecordOutcome(m, id, domain.OutcomePositive, "", tc.at))
	}

	food, ok := s.GetSuccessfulFor(m, domain.NutrientIron)
	require.True(t, ok)
	assert.Equal(t, domain.FoodID("jaggery"), food)
}

func TestDetectPatterns(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)
	m.SuccessfulSuggestions["milk"] = 3
	m.FailedSuggestions["milk"] = 1

	st, ok := s.DetectPatternSuccess(m, "milk")
	assert.True(t, ok)
	assert.Equal(t, 4, st.Attempts)
	assert.InDelta(t, 0.75, st.SuccessRatio, 1e-12)

	_, ok = s.DetectPatternFailure(m, "milk")
	assert.False(t, ok)
}

func TestRecentActions(t *testing.T) {
	s := newTestMemoryService()
	m := domain.NewMemory("u", testNow)
	for _, age := range []time.Duration{200 * time.Hour, 30 * time.Hour, time.Hour} {
		_, err := s.RecordAction(m, domain.Action{ActionType: domain.ActionCheckIn, Timestamp: testNow.Add(-age)}, testNow)
		require.NoError(t, err)
	}
	recent := s.RecentActions(m, 7*24*time.Hour, testNow)
	require.Len(t, recent, 2)
	assert.Equal(t, testNow.Add(-time.Hour), recent[0].Timestamp)
}
