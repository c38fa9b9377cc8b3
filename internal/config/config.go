// Package config handles worker configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Built-in defaults used when neither the request nor the environment sets a value.
const (
	DefaultAutoGainWeakThresholdDBFS = -18.0
	DefaultAutoGainTargetPeakDBFS    = -10.0
	DefaultAutoGainMaxDB             = 18.0

	DefaultMaxActiveServers      = 1
	DefaultMaxParallelModelLoads = 1
	DefaultModelLoadWaitTimeout  = 120 * time.Second
)

// Config holds all worker configuration, resolved once at startup.
type Config struct {
	// Paths
	StateDir           string
	LogFile            string
	UserDictionaryPath string

	// Audio preprocessing
	NoiseReduction bool
	AutoGain       AutoGainDefaults

	// VAD
	VADStrict bool

	// Instance coordination
	MaxActiveServers      int
	MaxParallelModelLoads int
	ModelLoadWaitTimeout  time.Duration

	// External engines
	FFmpegPath        string
	PythonPath        string
	EngineScript      string
	EngineProfilePath string

	// Whisper (passed to the engine process via env)
	WhisperModel       string
	WhisperDevice      string
	WhisperComputeType string

	// Observability
	LogLevel        string
	MetricsTextfile string
	ResultsAMQPURL  string
}

// AutoGainDefaults is the process-wide auto-gain policy. Requests may
// override each field independently.
type AutoGainDefaults struct {
	Enabled           bool
	WeakThresholdDBFS float64
	TargetPeakDBFS    float64
	MaxGainDB         float64
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.StateDir = getEnv("KOTOTYPE_STATE_DIR", defaultStateDir())
	cfg.LogFile = getEnv("KOTOTYPE_LOG_FILE", filepath.Join(cfg.StateDir, "server.log"))
	cfg.UserDictionaryPath = getEnv("KOTOTYPE_USER_DICTIONARY", filepath.Join(cfg.StateDir, "user_dictionary.json"))

	cfg.NoiseReduction = getBool("KOTOTYPE_ENABLE_NOISE_REDUCTION", true)
	cfg.AutoGain = AutoGainDefaults{
		Enabled:           getBool("KOTOTYPE_AUTO_GAIN_ENABLED", true),
		WeakThresholdDBFS: getFloat("KOTOTYPE_AUTO_GAIN_WEAK_THRESHOLD_DBFS", DefaultAutoGainWeakThresholdDBFS),
		TargetPeakDBFS:    getFloat("KOTOTYPE_AUTO_GAIN_TARGET_PEAK_DBFS", DefaultAutoGainTargetPeakDBFS),
		MaxGainDB:         getFloat("KOTOTYPE_AUTO_GAIN_MAX_DB", DefaultAutoGainMaxDB),
	}

	cfg.VADStrict = getBool("KOTOTYPE_VAD_STRICT", true)

	cfg.MaxActiveServers = getPositiveInt("KOTOTYPE_MAX_ACTIVE_SERVERS", DefaultMaxActiveServers)
	cfg.MaxParallelModelLoads = getPositiveInt("KOTOTYPE_MAX_PARALLEL_MODEL_LOADS", DefaultMaxParallelModelLoads)
	cfg.ModelLoadWaitTimeout = DefaultModelLoadWaitTimeout
	if secs := getFloat("KOTOTYPE_MODEL_LOAD_WAIT_TIMEOUT_SECONDS", 0); secs > 0 {
		cfg.ModelLoadWaitTimeout = time.Duration(secs * float64(time.Second))
	}

	cfg.FFmpegPath = getEnv("KOTOTYPE_FFMPEG_PATH", "ffmpeg")
	cfg.PythonPath = getEnv("KOTOTYPE_PYTHON_PATH", "python3")
	cfg.EngineScript = getEnv("KOTOTYPE_ASR_SCRIPT", "python/asr_engine.py")
	cfg.EngineProfilePath = getEnv("KOTOTYPE_ENGINE_PROFILE", "")

	cfg.WhisperModel = getEnv("KOTOTYPE_WHISPER_MODEL", "large-v3-turbo")
	cfg.WhisperDevice = getEnv("KOTOTYPE_WHISPER_DEVICE", "cpu")
	cfg.WhisperComputeType = getEnv("KOTOTYPE_WHISPER_COMPUTE_TYPE", "int8")

	cfg.LogLevel = strings.ToLower(getEnv("KOTOTYPE_LOG_LEVEL", "info"))
	cfg.MetricsTextfile = getEnv("KOTOTYPE_METRICS_TEXTFILE", "")
	cfg.ResultsAMQPURL = getEnv("KOTOTYPE_RESULTS_AMQP_URL", "")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the worker cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("state dir cannot be empty")
	}
	if c.MaxActiveServers < 1 {
		return fmt.Errorf("max active servers must be at least 1, got %d", c.MaxActiveServers)
	}
	if c.MaxParallelModelLoads < 1 {
		return fmt.Errorf("max parallel model loads must be at least 1, got %d", c.MaxParallelModelLoads)
	}
	if c.ModelLoadWaitTimeout <= 0 {
		return fmt.Errorf("model load wait timeout must be positive, got %s", c.ModelLoadWaitTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of [debug, info, warn, error], got '%s'", c.LogLevel)
	}
	return nil
}

// CoordinatorStatePath is the shared instance state file.
func (c *Config) CoordinatorStatePath() string {
	return filepath.Join(c.StateDir, "server_state.json")
}

// CoordinatorLockPath is the sibling lock file guarding the state file.
func (c *Config) CoordinatorLockPath() string {
	return filepath.Join(c.StateDir, "server_state.lock")
}

// EngineEnv returns environment variables to pass to the ASR engine process.
func (c *Config) EngineEnv() []string {
	return []string{
		fmt.Sprintf("WHISPER_MODEL=%s", c.WhisperModel),
		fmt.Sprintf("WHISPER_DEVICE=%s", c.WhisperDevice),
		fmt.Sprintf("WHISPER_COMPUTE_TYPE=%s", c.WhisperComputeType),
	}
}

// ParseBool accepts 1/true/yes/on and 0/false/no/off. ok is false for
// anything else, including empty input.
func ParseBool(raw string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "koto-type")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".koto-type")
	}
	return filepath.Join(os.TempDir(), "koto-type")
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, ok := ParseBool(os.Getenv(key)); ok {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getPositiveInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
