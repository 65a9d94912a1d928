// Package config provides the tunables shared by the runproc workers.
package config

import "time"

// Config holds timing and buffer settings for one managed process.
type Config struct {
	// Output reader
	ReadPollInterval time.Duration `json:"read_poll_interval"` // bounded PTY read
	PTYReadSize      int           `json:"pty_read_size"`

	// Caller side
	WaitSlice    time.Duration `json:"wait_slice"`
	ReaderJoin   time.Duration `json:"reader_join"`
	ForcedRejoin time.Duration `json:"forced_rejoin"`

	// Kill
	KillJoin  time.Duration `json:"kill_join"`
	KillGrace time.Duration `json:"kill_grace"`

	// Logging
	LogFormat string `json:"log_format"` // json, text
	LogLevel  string `json:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReadPollInterval: 100 * time.Millisecond,
		PTYReadSize:      4096,

		WaitSlice:    10 * time.Millisecond,
		ReaderJoin:   time.Second,
		ForcedRejoin: 50 * time.Millisecond,

		KillJoin:  50 * time.Millisecond,
		KillGrace: 3 * time.Second,

		LogFormat: "text",
		LogLevel:  "warn",
	}
}
