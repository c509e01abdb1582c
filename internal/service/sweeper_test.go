package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSymptomSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	e, profiles, clock := newTestEngine(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.ReportSymptom(ctx, fmt.Sprintf("old-%d", i), "nausea"))
	}
	clock.Advance(100 * time.Hour)
	require.NoError(t, e.ReportSymptom(ctx, "recent", "fatigue"))

	s := NewSymptomSweeper(e, profiles, nopLogger())
	s.SetTTL(72 * time.Hour)
	s.SetParallelism(2)

	removed, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	sum, err := e.GetStateSummary(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, sum.Belief.HasSymptom("fatigue"))

	removed, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSymptomSweeper_ListFailure(t *testing.T) {
	ps := &mockProfileStore{}
	ps.On("ListUserIDs", mock.Anything).Return(nil, errors.New("db down"))

	e := NewEngine(ps, nil, DefaultSettings(), nopLogger())
	s := NewSymptomSweeper(e, ps, nopLogger())

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSymptomSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, profiles, _ := newTestEngine(t)
	s := NewSymptomSweeper(e, profiles, nopLogger())
	s.SetInterval(5 * time.Millisecond)

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()
}
