package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDServer is the identifier for the HTTP server section
	SectionIDServer = "server"

	// Default values for server settings
	defaultListenAddr     = "127.0.0.1:8799"
	defaultRequestTimeout = 2 * time.Minute
)

// ServerSection manages HTTP server configuration settings.
type ServerSection struct {
	ListenAddr     string        `json:"listen_addr"`
	AuthToken      string        `json:"auth_token"`
	RequestTimeout time.Duration `json:"request_timeout"`
	mu             sync.RWMutex
}

// NewServerSection creates a new server section with default settings.
func NewServerSection() *ServerSection {
	return &ServerSection{
		ListenAddr:     defaultListenAddr,
		RequestTimeout: defaultRequestTimeout,
	}
}

// ID returns the section identifier.
func (s *ServerSection) ID() string {
	return SectionIDServer
}

// Title returns the section title.
func (s *ServerSection) Title() string {
	return "HTTP Server"
}

// Description returns the section description.
func (s *ServerSection) Description() string {
	return "Configure the listen address, request timeout, and optional bearer token for the HTTP API."
}

// Data returns the current configuration data.
func (s *ServerSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"listen_addr":     s.ListenAddr,
		"auth_token":      s.AuthToken,
		"request_timeout": s.RequestTimeout.String(),
	}
}

// SetData updates the configuration from the provided data.
func (s *ServerSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "listen_addr":
			if addr, ok := value.(string); ok {
				s.ListenAddr = addr
			} else {
				return fmt.Errorf("invalid value type for listen_addr: expected string, got %T", value)
			}

		case "auth_token":
			if token, ok := value.(string); ok {
				s.AuthToken = token
			} else {
				return fmt.Errorf("invalid value type for auth_token: expected string, got %T", value)
			}

		case "request_timeout":
			duration, err := parseDurationValue(value)
			if err != nil {
				return fmt.Errorf("invalid request_timeout: %w", err)
			}
			s.RequestTimeout = duration

		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *ServerSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if s.RequestTimeout < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s, got %v", s.RequestTimeout)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ServerSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ListenAddr = defaultListenAddr
	s.AuthToken = ""
	s.RequestTimeout = defaultRequestTimeout
}

// Settings returns the current server settings.
// Returns (listenAddr, authToken, requestTimeout).
func (s *ServerSection) Settings() (string, string, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ListenAddr, s.AuthToken, s.RequestTimeout
}

// parseDurationValue accepts duration values as strings ("5m") or as
// numeric nanoseconds (how JSON round-trips time.Duration).
func parseDurationValue(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		duration, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string: %w", err)
		}
		return duration, nil
	case float64:
		// JSON numbers come as float64
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	default:
		return 0, fmt.Errorf("expected string or number, got %T", value)
	}
}
