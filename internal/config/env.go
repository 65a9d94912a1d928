package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by FromEnv.
const (
	EnvLogFormat    = "RUNPROC_LOG_FORMAT"
	EnvLogLevel     = "RUNPROC_LOG_LEVEL"
	EnvKillGrace    = "RUNPROC_KILL_GRACE"
	EnvReaderJoin   = "RUNPROC_READER_JOIN"
	EnvPollInterval = "RUNPROC_POLL_INTERVAL"
	EnvPTYReadSize  = "RUNPROC_PTY_READ_SIZE"
)

// FromEnv returns DefaultConfig overridden by RUNPROC_* variables.
func FromEnv() (*Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{EnvKillGrace, &cfg.KillGrace},
		{EnvReaderJoin, &cfg.ReaderJoin},
		{EnvPollInterval, &cfg.ReadPollInterval},
	}
	for _, d := range durations {
		v, ok := lookup(d.name)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if v, ok := lookup(EnvPTYReadSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvPTYReadSize, err)
		}
		cfg.PTYReadSize = n
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
