package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/cita-scheduler/internal/italcambio"
	"github.com/example/cita-scheduler/internal/state"
)

type Config struct {
	ListenAddr    string
	VendorBaseURL string
	// DatabaseURL enables the Postgres booking archive when set.
	DatabaseURL string

	SessionHashKey  []byte
	SessionBlockKey []byte
	// AdminPasswordHash is the bcrypt hash of the operator password.
	AdminPasswordHash string

	Target      state.PollTarget
	MinimumHour string

	PollInterval    time.Duration
	BackoffInterval time.Duration
	FlushInterval   time.Duration
	RequestTimeout  time.Duration

	Timezone       *time.Location
	LogFile        string
	SuccessPhrases []string
	SESFromEmail   string
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		VendorBaseURL: getenv("VENDOR_BASE_URL", "https://www.italcambio.com"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MinimumHour:   getenv("MINIMUM_HOUR", "08:00"),
		LogFile:       getenv("LOG_FILE", "citasched.log"),
		SESFromEmail:  strings.TrimSpace(os.Getenv("SES_FROM_EMAIL")),
	}

	loc, err := strconv.Atoi(getenv("TARGET_LOCATION", "12"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TARGET_LOCATION")
	}
	cfg.Target = state.PollTarget{LocationID: loc, Date: strings.TrimSpace(os.Getenv("TARGET_DATE"))}
	if err := cfg.Target.Validate(); err != nil {
		return Config{}, fmt.Errorf("target: %w", err)
	}

	cfg.PollInterval, err = intervalSeconds("POLL_SECONDS", "10")
	if err != nil {
		return Config{}, err
	}
	cfg.BackoffInterval, err = intervalSeconds("BACKOFF_SECONDS", "30")
	if err != nil {
		return Config{}, err
	}

	flushMin, err := strconv.Atoi(getenv("FLUSH_MINUTES", "60"))
	if err != nil || flushMin < 1 {
		return Config{}, fmt.Errorf("invalid FLUSH_MINUTES")
	}
	cfg.FlushInterval = time.Duration(flushMin) * time.Minute

	timeoutSec, err := strconv.Atoi(getenv("REQUEST_TIMEOUT_SECONDS", "30"))
	if err != nil || timeoutSec < 1 {
		return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS")
	}
	cfg.RequestTimeout = time.Duration(timeoutSec) * time.Second

	cfg.Timezone, err = time.LoadLocation(getenv("TIMEZONE", "America/Caracas"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg.SuccessPhrases = italcambio.DefaultSuccessPhrases
	if v := strings.TrimSpace(os.Getenv("BOOKING_SUCCESS_PHRASES")); v != "" {
		cfg.SuccessPhrases = splitCSV(v)
	}

	cfg.AdminPasswordHash = strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH"))
	if cfg.AdminPasswordHash == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD_HASH is required (bcrypt)")
	}
	cfg.SessionHashKey, err = mustB64("SESSION_HASH_KEY")
	if err != nil {
		return Config{}, err
	}
	cfg.SessionBlockKey, err = mustB64("SESSION_BLOCK_KEY")
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// intervalSeconds reads a polling cadence that must evenly divide a minute
// so waits align to synchronized wall-clock ticks.
func intervalSeconds(key, def string) (time.Duration, error) {
	sec, err := strconv.Atoi(getenv(key, def))
	if err != nil || sec < 1 || sec > 60 || 60%sec != 0 {
		return 0, fmt.Errorf("invalid %s: must be a divisor of 60", key)
	}
	return time.Duration(sec) * time.Second, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func mustB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
