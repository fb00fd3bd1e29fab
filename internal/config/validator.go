package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var validLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// ValidateLogLevel validates a zerolog level name
func (v *Validator) ValidateLogLevel(level string) error {
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %q (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateListenAddr validates a host:port listen address. The host may be empty.
func (v *Validator) ValidateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port in %q", addr)
	}
	return nil
}
