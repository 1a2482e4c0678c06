package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Token settings
	JWTSecret             string
	RefreshJWTSecret      string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int

	// Seed admin
	AdminEmail    string
	AdminPassword string
	AdminFullName string

	// Face detection service
	DetectorBaseURL string
	DetectorTimeout time.Duration

	// Identity matching
	MatchThreshold float64

	// Capture
	CaptureFrames     int
	CaptureFrameDelay time.Duration
	CaptureInitTime   time.Duration
	FeedStaleAfter    time.Duration

	// Monitoring loop
	SilentCheckInterval time.Duration
	MismatchCooldown    time.Duration
	LockThreshold       int

	// Evidence
	EvidenceDir string

	// Worker
	MinWorkerVersion string
}

func Load() *Config {
	return &Config{
		Port:       getenv("PORT", "8080"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "proctor_db"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		JWTSecret:             getenv("JWT_SECRET", "supersecret_change_me"),
		RefreshJWTSecret:      getenv("REFRESH_JWT_SECRET", getenv("JWT_SECRET", "supersecret_change_me")),
		AccessTokenTTLMinutes: getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getint("REFRESH_TOKEN_TTL_DAYS", 30),

		AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),

		DetectorBaseURL: getenv("DETECTOR_URL", "http://localhost:8500"),
		DetectorTimeout: getdur("DETECTOR_TIMEOUT", 10*time.Second),

		MatchThreshold: getfloat("MATCH_THRESHOLD", 0.55),

		CaptureFrames:     getint("CAPTURE_FRAMES", 3),
		CaptureFrameDelay: getdur("CAPTURE_FRAME_DELAY", 300*time.Millisecond),
		CaptureInitTime:   getdur("CAPTURE_INIT_TIMEOUT", 45*time.Second),
		FeedStaleAfter:    getdur("FEED_STALE_AFTER", 10*time.Second),

		SilentCheckInterval: getdur("SILENT_CHECK_INTERVAL", 3*time.Minute),
		MismatchCooldown:    getdur("MISMATCH_COOLDOWN", 30*time.Second),
		LockThreshold:       getint("LOCK_THRESHOLD", 3),

		EvidenceDir: getenv("EVIDENCE_DIR", "./evidence"),

		MinWorkerVersion: getenv("MIN_WORKER_VERSION", "1.0.0"),
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
