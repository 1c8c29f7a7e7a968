// Package config defines the bench harness configuration and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is populated from a TOML file and then optionally overridden
// by MATCHBOOK_* environment variables.
type Config struct {
	Book        BookConfig     `toml:"book"`
	Journal     JournalConfig  `toml:"journal"`
	Outbox      OutboxConfig   `toml:"outbox"`
	Kafka       KafkaConfig    `toml:"kafka"`
	Snapshot    SnapshotConfig `toml:"snapshot"`
	Bench       BenchConfig    `toml:"bench"`
	LogLevel    string         `toml:"log_level"`
	MetricsAddr string         `toml:"metrics_addr"`
}

type BookConfig struct {
	Capacity int `toml:"capacity"`
	// MaxPrice > 0 selects the array ladder; 0 the tree ladder.
	MaxPrice int64 `toml:"max_price"`
	// TickScale is the number of decimal places a tick stands for in reports.
	TickScale int32 `toml:"tick_scale"`
	Debug     bool  `toml:"debug"`
}

type JournalConfig struct {
	Enabled         bool     `toml:"enabled"`
	Dir             string   `toml:"dir"`
	SegmentSize     int64    `toml:"segment_size"`
	SegmentDuration duration `toml:"segment_duration"`
	Sync            bool     `toml:"sync"`
}

type OutboxConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	// Client selects the delivery path: "sarama" drains the outbox,
	// "kafka-go" publishes each trade batch directly.
	Client        string   `toml:"client"`
	DrainInterval duration `toml:"drain_interval"`
}

type SnapshotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Dir      string   `toml:"dir"`
	Interval duration `toml:"interval"`
}

type BenchConfig struct {
	Orders      int     `toml:"orders"`
	Seed        uint64  `toml:"seed"`
	CancelRatio float64 `toml:"cancel_ratio"`
	// Batch is the number of submissions between ExecuteOrders calls.
	Batch     int    `toml:"batch"`
	MidPrice  int64  `toml:"mid_price"`
	Spread    int64  `toml:"spread"`
	MaxShares int64  `toml:"max_shares"`
	OutDir    string `toml:"out_dir"`
	Depth     int    `toml:"depth"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with values that run the bench
// with no external services.
func Defaults() Config {
	return Config{
		Book: BookConfig{
			Capacity:  1 << 20,
			MaxPrice:  1 << 16,
			TickScale: 2,
		},
		Journal: JournalConfig{
			Dir:             "./data/journal",
			SegmentSize:     64 << 20,
			SegmentDuration: duration{time.Minute},
		},
		Outbox: OutboxConfig{
			Dir: "./data/outbox",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         "matchbook.trades",
			Client:        "sarama",
			DrainInterval: duration{250 * time.Millisecond},
		},
		Snapshot: SnapshotConfig{
			Dir:      "./data/snapshot",
			Interval: duration{30 * time.Second},
		},
		Bench: BenchConfig{
			Orders:      1_000_000,
			Seed:        1,
			CancelRatio: 0.2,
			Batch:       1,
			MidPrice:    10_000,
			Spread:      50,
			MaxShares:   1_000,
			OutDir:      "./out",
			Depth:       10,
		},
		LogLevel:    "info",
		MetricsAddr: "",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validClients = map[string]bool{
	"sarama":   true,
	"kafka-go": true,
}

// Validate checks Config for invalid values and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Book
	if c.Book.Capacity <= 0 {
		errs = append(errs, "book: capacity must be > 0")
	}
	if c.Book.MaxPrice < 0 {
		errs = append(errs, "book: max_price must be >= 0")
	}
	if c.Book.TickScale < 0 {
		errs = append(errs, "book: tick_scale must be >= 0")
	}

	// Journal
	if c.Journal.Enabled {
		if c.Journal.Dir == "" {
			errs = append(errs, "journal: dir must not be empty when enabled")
		}
		if c.Journal.SegmentSize <= 0 {
			errs = append(errs, "journal: segment_size must be > 0")
		}
	}

	// Outbox
	if c.Outbox.Enabled && c.Outbox.Dir == "" {
		errs = append(errs, "outbox: dir must not be empty when enabled")
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
		if !validClients[c.Kafka.Client] {
			errs = append(errs, fmt.Sprintf("kafka: unknown client %q (valid: sarama, kafka-go)", c.Kafka.Client))
		}
		if c.Kafka.Client == "sarama" && !c.Outbox.Enabled {
			errs = append(errs, "kafka: client sarama drains the outbox, enable [outbox]")
		}
	}

	// Snapshot
	if c.Snapshot.Enabled {
		if c.Snapshot.Dir == "" {
			errs = append(errs, "snapshot: dir must not be empty when enabled")
		}
		if c.Snapshot.Interval.Duration <= 0 {
			errs = append(errs, "snapshot: interval must be > 0")
		}
	}

	// Bench
	if c.Bench.Orders < 0 {
		errs = append(errs, "bench: orders must be >= 0")
	}
	if c.Bench.CancelRatio < 0 || c.Bench.CancelRatio >= 1 {
		errs = append(errs, fmt.Sprintf("bench: cancel_ratio must be in [0, 1), got %g", c.Bench.CancelRatio))
	}
	if c.Bench.Batch < 1 {
		errs = append(errs, "bench: batch must be >= 1")
	}
	if c.Bench.MaxShares < 1 {
		errs = append(errs, "bench: max_shares must be >= 1")
	}
	if c.Bench.Spread < 0 || c.Bench.MidPrice-c.Bench.Spread < 1 {
		errs = append(errs, "bench: mid_price - spread must be >= 1")
	}
	if c.Book.MaxPrice > 0 && c.Bench.MidPrice+c.Bench.Spread > c.Book.MaxPrice {
		errs = append(errs, fmt.Sprintf("bench: mid_price + spread exceeds book.max_price %d", c.Book.MaxPrice))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
