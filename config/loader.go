package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MATCHBOOK_* environment variable overrides,
// and returns the final Config. An empty path skips the file. The
// returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Book ──
	setInt(&cfg.Book.Capacity, "MATCHBOOK_BOOK_CAPACITY")
	setInt64(&cfg.Book.MaxPrice, "MATCHBOOK_BOOK_MAX_PRICE")
	setBool(&cfg.Book.Debug, "MATCHBOOK_BOOK_DEBUG")

	// ── Journal ──
	setBool(&cfg.Journal.Enabled, "MATCHBOOK_JOURNAL_ENABLED")
	setStr(&cfg.Journal.Dir, "MATCHBOOK_JOURNAL_DIR")
	setInt64(&cfg.Journal.SegmentSize, "MATCHBOOK_JOURNAL_SEGMENT_SIZE")
	setDuration(&cfg.Journal.SegmentDuration, "MATCHBOOK_JOURNAL_SEGMENT_DURATION")
	setBool(&cfg.Journal.Sync, "MATCHBOOK_JOURNAL_SYNC")

	// ── Outbox ──
	setBool(&cfg.Outbox.Enabled, "MATCHBOOK_OUTBOX_ENABLED")
	setStr(&cfg.Outbox.Dir, "MATCHBOOK_OUTBOX_DIR")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "MATCHBOOK_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "MATCHBOOK_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "MATCHBOOK_KAFKA_TOPIC")
	setStr(&cfg.Kafka.Client, "MATCHBOOK_KAFKA_CLIENT")
	setDuration(&cfg.Kafka.DrainInterval, "MATCHBOOK_KAFKA_DRAIN_INTERVAL")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "MATCHBOOK_SNAPSHOT_ENABLED")
	setStr(&cfg.Snapshot.Dir, "MATCHBOOK_SNAPSHOT_DIR")
	setDuration(&cfg.Snapshot.Interval, "MATCHBOOK_SNAPSHOT_INTERVAL")

	// ── Bench ──
	setInt(&cfg.Bench.Orders, "MATCHBOOK_BENCH_ORDERS")
	setUint64(&cfg.Bench.Seed, "MATCHBOOK_BENCH_SEED")
	setFloat64(&cfg.Bench.CancelRatio, "MATCHBOOK_BENCH_CANCEL_RATIO")
	setInt(&cfg.Bench.Batch, "MATCHBOOK_BENCH_BATCH")
	setStr(&cfg.Bench.OutDir, "MATCHBOOK_BENCH_OUT_DIR")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MATCHBOOK_LOG_LEVEL")
	setStr(&cfg.MetricsAddr, "MATCHBOOK_METRICS_ADDR")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
