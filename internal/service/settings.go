package service

import (
	"time"

	"github.com/nutrimama/nutrimama/internal/config"
)

const (
	DefaultDampeningWeight      = 0.3
	DefaultConfidenceWeight     = 0.5
	DefaultSentimentStep        = 0.1
	DefaultComfortableThreshold = 0.6
	DefaultConfidenceDiscount   = 0.5
	DefaultPatternFailureRatio  = 0.5
	DefaultPatternSuccessRatio  = 0.7
	DefaultPatternMinAttempts   = 2
	DefaultConfidenceStep       = 0.1
	DefaultNutritionNudge       = 0.05
	DefaultConfidenceFloor      = 0.3

	// pressureEpsilon is the tolerance under which two pressures tie.
	pressureEpsilon = 1e-9
)

// Settings holds the engine's design constants. None of them were fitted to
// outcome data, so every one can be overridden from the environment.
type Settings struct {
	DampeningWeight      float64
	ConfidenceWeight     float64
	SentimentStep        float64
	ComfortableThreshold float64
	ConfidenceDiscount   float64
	PatternFailureRatio  float64
	PatternSuccessRatio  float64
	PatternMinAttempts   int
	ConfidenceStep       float64
	NutritionNudge       float64

	// ConfidenceFloor is as low as a negative outcome can push confidence.
	// It never raises a confidence that is already below it.
	ConfidenceFloor float64

	// DayLocation decides where a calendar day ends for the daily cap.
	DayLocation *time.Location
}

func DefaultSettings() Settings {
	return Settings{
		DampeningWeight:      DefaultDampeningWeight,
		ConfidenceWeight:     DefaultConfidenceWeight,
		SentimentStep:        DefaultSentimentStep,
		ComfortableThreshold: DefaultComfortableThreshold,
		ConfidenceDiscount:   DefaultConfidenceDiscount,
		PatternFailureRatio:  DefaultPatternFailureRatio,
		PatternSuccessRatio:  DefaultPatternSuccessRatio,
		PatternMinAttempts:   DefaultPatternMinAttempts,
		ConfidenceStep:       DefaultConfidenceStep,
		NutritionNudge:       DefaultNutritionNudge,
		ConfidenceFloor:      DefaultConfidenceFloor,
		DayLocation:          time.UTC,
	}
}

// SettingsFromEnv reads the thresholds through the config package.
func SettingsFromEnv() Settings {
	return Settings{
		DampeningWeight:      config.DampeningWeight(),
		ConfidenceWeight:     config.ConfidenceWeight(),
		SentimentStep:        config.SentimentStep(),
		ComfortableThreshold: config.ComfortableThreshold(),
		ConfidenceDiscount:   config.ConfidenceDiscount(),
		PatternFailureRatio:  config.PatternFailureRatio(),
		PatternSuccessRatio:  config.PatternSuccessRatio(),
		PatternMinAttempts:   config.PatternMinAttempts(),
		ConfidenceStep:       config.ConfidenceStep(),
		NutritionNudge:       config.NutritionNudge(),
		ConfidenceFloor:      config.ConfidenceFloor(),
		DayLocation:          config.DayLocation(),
	}
}

func (s Settings) location() *time.Location {
	if s.DayLocation == nil {
		return time.UTC
	}
	return s.DayLocation
}

// sameDay reports whether a and b fall on the same calendar date in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
