package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	positive := []struct {
		field string
		value time.Duration
	}{
		{"read_poll_interval", cfg.ReadPollInterval},
		{"wait_slice", cfg.WaitSlice},
		{"reader_join", cfg.ReaderJoin},
		{"forced_rejoin", cfg.ForcedRejoin},
		{"kill_join", cfg.KillJoin},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{
				Field:   p.field,
				Message: "must be positive",
			})
		}
	}

	// Zero grace means SIGKILL straight away.
	if cfg.KillGrace < 0 {
		errs = append(errs, ValidationError{
			Field:   "kill_grace",
			Message: "must not be negative",
		})
	}

	if cfg.PTYReadSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "pty_read_size",
			Message: "must be at least 1",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
