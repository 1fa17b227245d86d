package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config (delivery markers; engine runs without it)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// VAPID keys for Web Push. Generated at startup when unset.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string // contact mailto for the push service

	// Scheduling
	ReminderLookaheadMin int // minutes before class start to remind
	DigestHour           int // local hour (0-23) for the nightly digest
	DispatchWorkers      int // concurrent outbound pushes per tick
	PushTTLSeconds       int // TTL handed to the push service
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "chime",
		DBPassword: "",
		DBName:     "chime",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		VAPIDSubscriber: "mailto:admin@classtrack.local",

		ReminderLookaheadMin: 10,
		DigestHour:           21,
		DispatchWorkers:      8,
		PushTTLSeconds:       60,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// VAPID config
	if key := os.Getenv("VAPID_PUBLIC_KEY"); key != "" {
		cfg.VAPIDPublicKey = key
	}

	if key := os.Getenv("VAPID_PRIVATE_KEY"); key != "" {
		cfg.VAPIDPrivateKey = key
	}

	if sub := os.Getenv("VAPID_SUBSCRIBER"); sub != "" {
		cfg.VAPIDSubscriber = sub
	}

	// Scheduling config
	if m := os.Getenv("REMINDER_LOOKAHEAD_MIN"); m != "" {
		v, err := strconv.Atoi(m)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("invalid REMINDER_LOOKAHEAD_MIN: %q", m)
		}
		cfg.ReminderLookaheadMin = v
	}

	if h := os.Getenv("DIGEST_HOUR"); h != "" {
		v, err := strconv.Atoi(h)
		if err != nil || v < 0 || v > 23 {
			return nil, fmt.Errorf("invalid DIGEST_HOUR: %q", h)
		}
		cfg.DigestHour = v
	}

	if w := os.Getenv("DISPATCH_WORKERS"); w != "" {
		v, err := strconv.Atoi(w)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("invalid DISPATCH_WORKERS: %q", w)
		}
		cfg.DispatchWorkers = v
	}

	if t := os.Getenv("PUSH_TTL_SECONDS"); t != "" {
		v, err := strconv.Atoi(t)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid PUSH_TTL_SECONDS: %q", t)
		}
		cfg.PushTTLSeconds = v
	}

	return cfg, nil
}
