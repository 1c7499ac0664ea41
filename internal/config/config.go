// Package config loads agent defaults from the environment. A .env file in
// the working directory is honored when present; explicit environment
// variables and command-line flags take precedence over it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries environment-sourced settings. Every field has a usable
// default so the agent starts with nothing but a broker and service URL.
type Config struct {
	BaseURL          string        // ATTENDANCE_BASE_URL
	StudentID        int           // ATTENDANCE_STUDENT_ID
	Broker           string        // ATTENDANCE_BROKER
	HTTPAddr         string        // ATTENDANCE_HTTP_ADDR
	CachePath        string        // ATTENDANCE_CACHE_PATH
	Policy           string        // ATTENDANCE_MONITOR_POLICY
	AbsenceThreshold time.Duration // ATTENDANCE_ABSENCE_THRESHOLD
	Environment      string        // ENV ("production" switches zap to its production config)
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	// Absence of a .env file is fine; variables may come from the real env.
	_ = godotenv.Load(".env")

	cfg := &Config{
		BaseURL:     getenv("ATTENDANCE_BASE_URL", "http://192.168.4.12:8080/api"),
		Broker:      getenv("ATTENDANCE_BROKER", "tcp://192.168.4.12:1883"),
		HTTPAddr:    getenv("ATTENDANCE_HTTP_ADDR", ":8099"),
		CachePath:   getenv("ATTENDANCE_CACHE_PATH", "/var/lib/attendance-agent/schedule.json"),
		Policy:      getenv("ATTENDANCE_MONITOR_POLICY", "all-today"),
		Environment: getenv("ENV", "development"),
	}

	id := getenv("ATTENDANCE_STUDENT_ID", "1")
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("ATTENDANCE_STUDENT_ID %q: %w", id, err)
	}
	cfg.StudentID = n

	thr := getenv("ATTENDANCE_ABSENCE_THRESHOLD", "10s")
	d, err := time.ParseDuration(thr)
	if err != nil {
		return nil, fmt.Errorf("ATTENDANCE_ABSENCE_THRESHOLD %q: %w", thr, err)
	}
	cfg.AbsenceThreshold = d

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
