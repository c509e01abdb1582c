package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/knowledge"
	"github.com/nutrimama/nutrimama/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *testClock) {
	t.Helper()
	profiles := store.NewMemoryStore()
	clock := &testClock{now: testNow}
	e := NewEngine(profiles, knowledge.Default(), DefaultSettings(), nopLogger())
	e.SetClock(clock.Now)
	return e, profiles, clock
}

func TestEngine_IronScenario(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.ApplySignal(ctx, "amara", "nutrition.iron", 0.3, 1))
	require.NoError(t, e.ApplySignal(ctx, "amara", "confidence.iron", 0.4, 1))

	d, err := e.Decide(ctx, "amara")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCheckIn, d.ActionType)

	id, err := e.RecordAction(ctx, "amara", domain.Action{
		ActionType:        domain.ActionSuggestFood,
		ActionText:        "Add spinach to dinner",
		Food:              "spinach",
		NutrientsTargeted: []domain.NutrientID{domain.NutrientIron},
	})
	require.NoError(t, err)
	require.NoError(t, e.LearnFromOutcome(ctx, "amara", id, domain.OutcomePositive, "felt more energetic"))

	sum, err := e.GetStateSummary(ctx, "amara")
	require.NoError(t, err)
	assert.InDelta(t, 0.315, sum.Belief.Nutrition[domain.NutrientIron], 1e-12)
	assert.InDelta(t, 0.5, sum.Belief.Confidence[domain.NutrientIron], 1e-12)

	d, err = e.Decide(ctx, "amara")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionObserve, d.ActionType)
}

func TestEngine_OneSuggestionPerDay(t *testing.T) {
	ctx := context.Background()
	e, _, clock := newTestEngine(t)

	// Teach the engine that spinach works, then move to the next day.
	id, err := e.RecordAction(ctx, "u1", foodAction("spinach", domain.NutrientIron))
	require.NoError(t, err)
	require.NoError(t, e.LearnFromOutcome(ctx, "u1", id, domain.OutcomePositive, ""))
	require.NoError(t, e.ApplySignal(ctx, "u1", "iron", 0.1, 1))
	clock.Advance(24 * time.Hour)

	first, err := e.Decide(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.ActionSuggestFood, first.ActionType)
	actionID, ok := first.Payload["action_id"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(actionID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := e.Decide(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionObserve, second.ActionType)
}

func TestEngine_AlertRepeatsDespiteDailyCap(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.RecordAction(ctx, "u1", foodAction("spinach", domain.NutrientIron))
	require.NoError(t, err)
	require.NoError(t, e.ReportSymptom(ctx, "u1", "Vision Changes"))

	for i := 0; i < 2; i++ {
		d, err := e.Decide(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, domain.ActionAlertMedical, d.ActionType)
	}
}

func TestEngine_DecideConsumesPendingFoods(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.SetProfile(ctx, "u1", domain.StagePregnant, false, 30))

	res, err := e.ApplyPerception(ctx, "u1", domain.Perception{FoodsMentioned: []string{"raw milk"}})
	require.NoError(t, err)
	assert.Equal(t, []domain.FoodID{"raw_milk"}, res.PendingFoods)

	d, err := e.Decide(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBlock, d.ActionType)

	d, err = e.Decide(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, domain.ActionBlock, d.ActionType)
}

func TestEngine_AlertKeepsUnsafePendingFoods(t *testing.T) {
	ctx := context.Background()
	e, _, clock := newTestEngine(t)
	require.NoError(t, e.SetProfile(ctx, "u1", domain.StagePregnant, false, 30))

	_, err := e.ApplyPerception(ctx, "u1", domain.Perception{
		Symptoms:       []string{"seizures"},
		FoodsMentioned: []string{"raw milk"},
	})
	require.NoError(t, err)

	d, err := e.Decide(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAlertMedical, d.ActionType)
	require.Contains(t, d.Payload, "pending_violations")
	pending := d.Payload["pending_violations"].([]domain.SafetyViolation)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.FoodID("raw_milk"), pending[0].Food)

	clock.Advance(time.Hour)
	n, err := e.ExpireSymptoms(ctx, "u1", clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err = e.Decide(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBlock, d.ActionType)
	assert.Equal(t, []domain.FoodID{"raw_milk"}, d.Payload["foods"])

	d, err = e.Decide(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, domain.ActionBlock, d.ActionType)
}

func TestEngine_PerceptionConfidence(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	zero, half, tooHigh := 0.0, 0.5, 1.5
	_, err := e.ApplyPerception(ctx, "u1", domain.Perception{Sentiment: domain.SentimentPositive, Confidence: &zero})
	require.NoError(t, err)
	sum, err := e.GetStateSummary(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sum.Belief.EnergyLevel, 1e-12, "zero confidence ignores the sentiment")

	_, err = e.ApplyPerception(ctx, "u1", domain.Perception{Sentiment: domain.SentimentPositive, Confidence: &half})
	require.NoError(t, err)
	sum, err = e.GetStateSummary(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.515, sum.Belief.EnergyLevel, 1e-12)

	_, err = e.ApplyPerception(ctx, "u1", domain.Perception{Sentiment: domain.SentimentPositive, Confidence: &tooHigh})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEngine_ApplyPerception(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	id, err := e.RecordAction(ctx, "u1", foodAction("lentils", domain.NutrientProtein))
	require.NoError(t, err)

	res, err := e.ApplyPerception(ctx, "u1", domain.Perception{
		Symptoms:        []string{"Nausea"},
		Sentiment:       domain.SentimentPositive,
		FeedbackTarget:  "lentils",
		FeedbackOutcome: "positive",
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.SymptomID{"nausea"}, res.SymptomsAdded)
	require.NotNil(t, res.LearnedActionID)
	assert.Equal(t, id, *res.LearnedActionID)

	sum, err := e.GetStateSummary(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, sum.Belief.HasSymptom("nausea"))
	assert.InDelta(t, 0.53, sum.Belief.EnergyLevel, 1e-12)
	assert.InDelta(t, 0.6, sum.Belief.Confidence[domain.NutrientProtein], 1e-12)
	assert.Equal(t, 1, sum.Insights.Positive)
}

func TestEngine_ApplyPerceptionIsAtomic(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.ApplyPerception(ctx, "u1", domain.Perception{
		Symptoms:        []string{"fatigue"},
		FeedbackTarget:  uuid.NewString(),
		FeedbackOutcome: "positive",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sum, err := e.GetStateSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, sum.Belief.HasSymptom("fatigue"), "symptoms must not stick when feedback fails")
}

func TestEngine_FeedbackWithoutPendingSuggestionIsIgnored(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	res, err := e.ApplyPerception(ctx, "u1", domain.Perception{FeedbackOutcome: "negative"})
	require.NoError(t, err)
	assert.Nil(t, res.LearnedActionID)
}

func TestEngine_LearnTwice(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	id, err := e.RecordAction(ctx, "u1", foodAction("milk", domain.NutrientCalcium))
	require.NoError(t, err)
	require.NoError(t, e.LearnFromOutcome(ctx, "u1", id, domain.OutcomePositive, ""))

	err = e.LearnFromOutcome(ctx, "u1", id, domain.OutcomeNegative, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyRecorded)

	in, err := e.Insights(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, in.Positive)
	assert.Zero(t, in.Negative)
}

func TestEngine_ValidationLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	e, profiles, _ := newTestEngine(t)

	err := e.ApplySignal(ctx, "u1", "nutrition.zinc", 0.5, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.RecordAction(ctx, "u1", foodAction("spinach"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	ids, err := profiles.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_RejectsBadUserID(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.Decide(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.GetStateSummary(ctx, string(make([]byte, 200)))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEngine_SummaryDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	e, profiles, _ := newTestEngine(t)

	sum, err := e.GetStateSummary(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.NeutralBelief, sum.Belief.Nutrition[domain.NutrientIron])
	assert.NotEmpty(t, sum.PressingNutrient)
	assert.NotNil(t, sum.RecentActions)

	_, err = profiles.Load(ctx, "fresh")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_ExpireSymptoms(t *testing.T) {
	ctx := context.Background()
	e, _, clock := newTestEngine(t)

	require.NoError(t, e.ReportSymptom(ctx, "u1", "nausea"))
	clock.Advance(80 * time.Hour)
	require.NoError(t, e.ReportSymptom(ctx, "u1", "fatigue"))

	n, err := e.ExpireSymptoms(ctx, "u1", clock.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.ExpireSymptoms(ctx, "u1", clock.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	sum, err := e.GetStateSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SymptomID{"fatigue"}, sum.Belief.SymptomList())
}

func TestEngine_ConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	e, profiles, _ := newTestEngine(t)

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		userID := fmt.Sprintf("user-%d", u)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, e.ReportSymptom(ctx, userID, fmt.Sprintf("symptom_%d", i)))
			}()
		}
	}
	wg.Wait()

	ids, err := profiles.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 8)
	for _, id := range ids {
		sum, err := e.GetStateSummary(ctx, id)
		require.NoError(t, err)
		assert.Len(t, sum.Belief.Symptoms, 10, "lost update for %s", id)
		assert.Equal(t, 10, sum.Belief.UpdateCount)
	}
	assert.Zero(t, e.locks.size())
}

func TestEngine_OneRecordingPerDayUnderContention(t *testing.T) {
	ctx := context.Background()
	e, _, clock := newTestEngine(t)

	id, err := e.RecordAction(ctx, "u1", foodAction("spinach", domain.NutrientIron))
	require.NoError(t, err)
	require.NoError(t, e.LearnFromOutcome(ctx, "u1", id, domain.OutcomePositive, ""))
	require.NoError(t, e.ApplySignal(ctx, "u1", "iron", 0.1, 1))
	clock.Advance(24 * time.Hour)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		suggestions int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := e.Decide(ctx, "u1")
			if !assert.NoError(t, err) {
				return
			}
			if d.ActionType == domain.ActionSuggestFood {
				mu.Lock()
				suggestions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, suggestions)
}

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) Load(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*domain.Profile)
	return p, args.Error(1)
}

func (m *mockProfileStore) Save(ctx context.Context, p *domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProfileStore) ListUserIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func TestEngine_StoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")

	ps := &mockProfileStore{}
	ps.On("Load", mock.Anything, "u1").Return(nil, store.ErrNotFound)
	ps.On("Save", mock.Anything, mock.Anything).Return(boom)
	ps.On("Load", mock.Anything, "u2").Return(nil, boom)

	e := NewEngine(ps, knowledge.Default(), DefaultSettings(), nopLogger())
	e.SetClock(func() time.Time { return testNow })

	err := e.ReportSymptom(ctx, "u1", "nausea")
	assert.ErrorIs(t, err, boom)

	_, err = e.Decide(ctx, "u2")
	assert.ErrorIs(t, err, boom)
	ps.AssertExpectations(t)
}
