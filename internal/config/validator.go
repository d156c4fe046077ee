package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "chat.backoff_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// maxNameBytes is the longest display name that fits a queue record.
const maxNameBytes = 19

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidColorModes returns the list of valid ui.color values
func ValidColorModes() []string {
	return []string{"auto", "always", "never"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateChat()...)
	errors = append(errors, c.validateIPC()...)
	errors = append(errors, c.validateHistory()...)
	errors = append(errors, c.validateUI()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateChat validates the ChatConfig
func (c *Config) validateChat() []ValidationError {
	var errors []ValidationError

	if len(c.Chat.Name) > maxNameBytes {
		errors = append(errors, ValidationError{
			Field:   "chat.name",
			Value:   c.Chat.Name,
			Message: fmt.Sprintf("must be at most %d bytes", maxNameBytes),
		})
	}
	if strings.ContainsAny(c.Chat.Name, "\r\n\t") {
		errors = append(errors, ValidationError{
			Field:   "chat.name",
			Value:   c.Chat.Name,
			Message: "must not contain control characters",
		})
	}

	if c.Chat.BackoffMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "chat.backoff_ms",
			Value:   c.Chat.BackoffMs,
			Message: "must be positive",
		})
	}
	if c.Chat.MaxBackoffMs < c.Chat.BackoffMs {
		errors = append(errors, ValidationError{
			Field:   "chat.max_backoff_ms",
			Value:   c.Chat.MaxBackoffMs,
			Message: fmt.Sprintf("must be at least chat.backoff_ms (%d)", c.Chat.BackoffMs),
		})
	}

	// Bounded so a lost signal cannot stall delivery for long
	const maxPollIntervalMs = 10000
	if c.Chat.PollIntervalMs <= 0 || c.Chat.PollIntervalMs > maxPollIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "chat.poll_interval_ms",
			Value:   c.Chat.PollIntervalMs,
			Message: fmt.Sprintf("must be between 1 and %d", maxPollIntervalMs),
		})
	}

	if c.Chat.LeaveTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "chat.leave_timeout_ms",
			Value:   c.Chat.LeaveTimeoutMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateIPC validates the IPCConfig
func (c *Config) validateIPC() []ValidationError {
	var errors []ValidationError

	// 0 is IPC_PRIVATE, which would give each process its own resources
	for _, k := range []struct {
		field string
		value int
	}{
		{"ipc.shm_key", c.IPC.ShmKey},
		{"ipc.sem_key", c.IPC.SemKey},
	} {
		if k.value == 0 || k.value > 0x7fffffff || k.value < -0x80000000 {
			errors = append(errors, ValidationError{
				Field:   k.field,
				Value:   k.value,
				Message: "must be a non-zero 32-bit key",
			})
		}
	}

	if mode, err := c.IPC.FileMode(); err != nil || mode > 0o777 {
		errors = append(errors, ValidationError{
			Field:   "ipc.perm",
			Value:   c.IPC.Perm,
			Message: "must be an octal permission such as 0666",
		})
	}

	if c.IPC.ReadyPollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "ipc.ready_poll_interval_ms",
			Value:   c.IPC.ReadyPollIntervalMs,
			Message: "must be positive",
		})
	}
	if c.IPC.ReadyTimeoutMs < c.IPC.ReadyPollIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "ipc.ready_timeout_ms",
			Value:   c.IPC.ReadyTimeoutMs,
			Message: "must be at least ipc.ready_poll_interval_ms",
		})
	}

	return errors
}

// validateHistory validates the HistoryConfig
func (c *Config) validateHistory() []ValidationError {
	var errors []ValidationError

	if !c.History.Enabled {
		return errors
	}

	if strings.TrimSpace(c.History.File) == "" {
		errors = append(errors, ValidationError{
			Field:   "history.file",
			Value:   c.History.File,
			Message: "must be set when history is enabled",
		})
	} else if dir := filepath.Dir(c.History.File); dir != "." {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			errors = append(errors, ValidationError{
				Field:   "history.file",
				Value:   c.History.File,
				Message: "parent path is not a directory",
			})
		}
	}

	if c.History.MaxSizeKB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "history.max_size_kb",
			Value:   c.History.MaxSizeKB,
			Message: "must be positive",
		})
	}

	return errors
}

// validateUI validates the UIConfig
func (c *Config) validateUI() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidColorModes(), c.UI.Color) {
		errors = append(errors, ValidationError{
			Field:   "ui.color",
			Value:   c.UI.Color,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidColorModes(), ", ")),
		})
	}

	if c.UI.Theme != "" {
		if _, err := os.Stat(c.UI.Theme); err != nil {
			errors = append(errors, ValidationError{
				Field:   "ui.theme",
				Value:   c.UI.Theme,
				Message: "theme file not found",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
