package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	StoragePath    string
	StorageBaseURL string
	MockMode       bool

	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	DashScopeAPIKey  string
	DashScopeBaseURL string
	WanModel         string

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	MaxConcurrentJobs  int
	ConcurrencyRetry   time.Duration
	AdmissionAllowlist []string

	RenderPollInterval time.Duration
	ShotTimeout        time.Duration
	MaxParallelShots   int
	JobTimeout         time.Duration
	SubmitMaxRetries   int
	SweepInterval      time.Duration

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	EdgeRatePerSecond  float64
	EdgeBurst          int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		MockMode:       getEnvBool("MOCK_MODE", false),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		WanModel:         getEnv("WAN_MODEL", "wan2.6-t2v"),

		RateLimitPerWindow: getEnvInt("RATE_LIMIT_PER_WINDOW", 10),
		RateLimitWindow:    time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 5),
		ConcurrencyRetry:   time.Second * time.Duration(getEnvInt("CONCURRENCY_RETRY_SECONDS", 30)),
		AdmissionAllowlist: getEnvList("ADMISSION_ALLOWLIST"),

		RenderPollInterval: time.Second * time.Duration(getEnvInt("RENDER_POLL_INTERVAL_SECONDS", 5)),
		ShotTimeout:        time.Second * time.Duration(getEnvInt("SHOT_TIMEOUT_SECONDS", 600)),
		MaxParallelShots:   getEnvInt("MAX_PARALLEL_SHOTS", 4),
		JobTimeout:         time.Minute * time.Duration(getEnvInt("JOB_TIMEOUT_MINUTES", 30)),
		SubmitMaxRetries:   getEnvInt("SUBMIT_MAX_RETRIES", 3),
		SweepInterval:      time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		EdgeRatePerSecond:  getEnvFloat("EDGE_RATE_PER_SECOND", 5),
		EdgeBurst:          getEnvInt("EDGE_BURST", 20),
	}

	if cfg.RateLimitPerWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_WINDOW must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if cfg.MaxConcurrentJobs <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}
	if !cfg.MockMode && cfg.DashScopeAPIKey == "" {
		return nil, fmt.Errorf("DASHSCOPE_API_KEY is required unless MOCK_MODE is enabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
