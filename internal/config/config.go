// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an
// error, matching discovery-service/internal/config and
// tracker-service/internal/config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Dispatcher holds runtime configuration for cmd/dispatcher.
type Dispatcher struct {
	Port              string
	DatabaseURL       string
	RedisURL          string
	APIKey            string
	EncryptionKey     string // URL-safe base64, 32 bytes decoded (spec §6.4)
	MaxRetries        int    // dispatcher-level attempts cap (spec §4.3)
	StaleAfter        time.Duration
	TwilioAccountSID  string
	TwilioAuthToken   string
	SMSFrom           string
}

// Load reads environment variables and returns a validated Dispatcher config.
func Load() (*Dispatcher, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	encKey := os.Getenv("ENCRYPTION_KEY")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	maxRetries := 3
	if s := os.Getenv("MAX_RETRIES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("MAX_RETRIES must be a positive integer, got %q", s)
		}
		maxRetries = v
	}

	staleAfter := 10 * time.Minute
	if s := os.Getenv("STALE_AFTER_SECONDS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("STALE_AFTER_SECONDS must be a positive integer, got %q", s)
		}
		staleAfter = time.Duration(v) * time.Second
	}

	port := os.Getenv("DISPATCHER_PORT")
	if port == "" {
		port = "8080"
	}

	return &Dispatcher{
		Port:             port,
		DatabaseURL:      dbURL,
		RedisURL:         redisURL,
		APIKey:           apiKey,
		EncryptionKey:    encKey,
		MaxRetries:       maxRetries,
		StaleAfter:       staleAfter,
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		SMSFrom:          os.Getenv("SMS_FROM"),
	}, nil
}

// Worker holds runtime configuration for cmd/worker.
type Worker struct {
	RedisURL         string
	EncryptionKey    string
	MaxRetries       int           // worker-level transient-error retry budget (spec §4.4)
	StagehandTimeout time.Duration // per-navigation/command timeout
	StepCeiling      time.Duration // wall-clock ceiling for the whole form-loop
	NSteps           int
	NAttempts        int
	HeartbeatEvery   time.Duration
}

// LoadWorker reads environment variables and returns a validated Worker
// config.
func LoadWorker() (*Worker, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	encKey := os.Getenv("ENCRYPTION_KEY")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	maxRetries := 3
	if s := os.Getenv("MAX_RETRIES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("MAX_RETRIES must be a positive integer, got %q", s)
		}
		maxRetries = v
	}

	stagehandMS := 30000
	if s := os.Getenv("STAGEHAND_TIMEOUT"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("STAGEHAND_TIMEOUT must be a positive integer (ms), got %q", s)
		}
		stagehandMS = v
	}

	nSteps := 10
	if s := os.Getenv("WORKER_N_STEPS"); s != "" {
		v, err := strconv.Atoi(s)
		if err == nil && v > 0 {
			nSteps = v
		}
	}
	nAttempts := 3
	if s := os.Getenv("WORKER_N_ATTEMPTS"); s != "" {
		v, err := strconv.Atoi(s)
		if err == nil && v > 0 {
			nAttempts = v
		}
	}

	return &Worker{
		RedisURL:         redisURL,
		EncryptionKey:    encKey,
		MaxRetries:       maxRetries,
		StagehandTimeout: time.Duration(stagehandMS) * time.Millisecond,
		StepCeiling:      5 * time.Minute,
		NSteps:           nSteps,
		NAttempts:        nAttempts,
		HeartbeatEvery:   30 * time.Second,
	}, nil
}
