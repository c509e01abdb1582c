package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by NUTRIMAMA_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("NUTRIMAMA_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process environment still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StorageBackend returns the configured persistence backend.
// Defaults to "local" if not set.
// Valid values: postgres, local, memory
func StorageBackend() string {
	b := os.Getenv("STORAGE_BACKEND")
	if b == "" {
		return "local"
	}
	return b
}

func LocalDBPath() string {
	p := os.Getenv("LOCAL_DB_PATH")
	if p == "" {
		return "data/nutrimama.db"
	}
	return p
}

// LocalPassphrase is the secret the local store derives its encryption key
// from. Keep it in the .secret sidecar.
func LocalPassphrase() string {
	return os.Getenv("LOCAL_PASSPHRASE")
}

// KnowledgePath returns an optional YAML file overriding the built-in
// nutrition knowledge base.
func KnowledgePath() string {
	return os.Getenv("KNOWLEDGE_PATH")
}

// APIKey is the bearer token required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// DayLocation is the time zone that decides where one day ends for the
// one-action-per-day rule. Defaults to UTC.
func DayLocation() *time.Location {
	name := os.Getenv("DAY_TIMEZONE")
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Engine thresholds. These were never tuned against outcome data, so they
// stay overridable per deployment.

func DampeningWeight() float64      { return floatEnv("DAMPENING_WEIGHT", 0.3) }
func ConfidenceWeight() float64     { return floatEnv("CONFIDENCE_WEIGHT", 0.5) }
func SentimentStep() float64        { return floatEnv("SENTIMENT_STEP", 0.1) }
func ComfortableThreshold() float64 { return floatEnv("COMFORTABLE_THRESHOLD", 0.6) }
func ConfidenceDiscount() float64   { return floatEnv("CONFIDENCE_DISCOUNT", 0.5) }
func PatternFailureRatio() float64  { return floatEnv("PATTERN_FAILURE_RATIO", 0.5) }
func PatternSuccessRatio() float64  { return floatEnv("PATTERN_SUCCESS_RATIO", 0.7) }
func ConfidenceStep() float64       { return floatEnv("CONFIDENCE_STEP", 0.1) }
func NutritionNudge() float64       { return floatEnv("NUTRITION_NUDGE", 0.05) }
func ConfidenceFloor() float64      { return floatEnv("CONFIDENCE_FLOOR", 0.3) }

func PatternMinAttempts() int {
	n, err := strconv.Atoi(os.Getenv("PATTERN_MIN_ATTEMPTS"))
	if err != nil || n < 1 {
		return 2
	}
	return n
}

// SymptomTTL is how long a reported symptom stays active before the sweeper
// ages it out. Defaults to 72h.
func SymptomTTL() time.Duration {
	h := floatEnv("SYMPTOM_TTL_HOURS", 72)
	return time.Duration(h * float64(time.Hour))
}

// SweepInterval returns how often the symptom sweeper runs.
// Defaults to 1h if not set.
func SweepInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}
