package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDLifecycle is the identifier for the session lifecycle section
	SectionIDLifecycle = "lifecycle"

	// EvictionIdleTimeout keeps the session until it sits idle too long
	EvictionIdleTimeout = "idle-timeout"

	// EvictionDrainAndDestroy destroys the session whenever the queue empties
	EvictionDrainAndDestroy = "drain-and-destroy"

	// StateStoreFile persists session state to a flat file
	StateStoreFile = "file"

	// StateStoreSQLite persists session state to a SQLite database
	StateStoreSQLite = "sqlite"

	// Default values for lifecycle settings
	defaultEvictionPolicy       = EvictionIdleTimeout
	defaultIdleTimeout          = 5 * time.Minute
	defaultSweepInterval        = 30 * time.Second
	defaultAutoSaveInterval     = 2 * time.Minute
	defaultShutdownGrace        = 30 * time.Second
	defaultAssumeValidOnRestore = true
	defaultStateStore           = StateStoreFile
)

// LifecycleSection manages session lifecycle configuration settings.
type LifecycleSection struct {
	EvictionPolicy       string        `json:"eviction_policy"`
	IdleTimeout          time.Duration `json:"idle_timeout"`
	SweepInterval        time.Duration `json:"sweep_interval"`
	AutoSaveInterval     time.Duration `json:"autosave_interval"`
	ShutdownGrace        time.Duration `json:"shutdown_grace"`
	AssumeValidOnRestore bool          `json:"assume_valid_on_restore"`
	StateStore           string        `json:"state_store"`
	StatePath            string        `json:"state_path"`
	mu                   sync.RWMutex
}

// NewLifecycleSection creates a new lifecycle section with default settings.
func NewLifecycleSection() *LifecycleSection {
	return &LifecycleSection{
		EvictionPolicy:       defaultEvictionPolicy,
		IdleTimeout:          defaultIdleTimeout,
		SweepInterval:        defaultSweepInterval,
		AutoSaveInterval:     defaultAutoSaveInterval,
		ShutdownGrace:        defaultShutdownGrace,
		AssumeValidOnRestore: defaultAssumeValidOnRestore,
		StateStore:           defaultStateStore,
	}
}

// ID returns the section identifier.
func (s *LifecycleSection) ID() string {
	return SectionIDLifecycle
}

// Title returns the section title.
func (s *LifecycleSection) Title() string {
	return "Session Lifecycle"
}

// Description returns the section description.
func (s *LifecycleSection) Description() string {
	return "Configure session eviction, auto-save, shutdown grace period, and state persistence."
}

// Data returns the current configuration data.
func (s *LifecycleSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"eviction_policy":         s.EvictionPolicy,
		"idle_timeout":            s.IdleTimeout.String(),
		"sweep_interval":          s.SweepInterval.String(),
		"autosave_interval":       s.AutoSaveInterval.String(),
		"shutdown_grace":          s.ShutdownGrace.String(),
		"assume_valid_on_restore": s.AssumeValidOnRestore,
		"state_store":             s.StateStore,
		"state_path":              s.StatePath,
	}
}

// SetData updates the configuration from the provided data.
func (s *LifecycleSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "eviction_policy":
			if policy, ok := value.(string); ok {
				s.EvictionPolicy = policy
			} else {
				return fmt.Errorf("invalid value type for eviction_policy: expected string, got %T", value)
			}

		case "idle_timeout":
			duration, err := parseDurationValue(value)
			if err != nil {
				return fmt.Errorf("invalid idle_timeout: %w", err)
			}
			s.IdleTimeout = duration

		case "sweep_interval":
			duration, err := parseDurationValue(value)
			if err != nil {
				return fmt.Errorf("invalid sweep_interval: %w", err)
			}
			s.SweepInterval = duration

		case "autosave_interval":
			duration, err := parseDurationValue(value)
			if err != nil {
				return fmt.Errorf("invalid autosave_interval: %w", err)
			}
			s.AutoSaveInterval = duration

		case "shutdown_grace":
			duration, err := parseDurationValue(value)
			if err != nil {
				return fmt.Errorf("invalid shutdown_grace: %w", err)
			}
			s.ShutdownGrace = duration

		case "assume_valid_on_restore":
			if enabled, ok := value.(bool); ok {
				s.AssumeValidOnRestore = enabled
			} else {
				return fmt.Errorf("invalid value type for assume_valid_on_restore: expected bool, got %T", value)
			}

		case "state_store":
			if backend, ok := value.(string); ok {
				s.StateStore = backend
			} else {
				return fmt.Errorf("invalid value type for state_store: expected string, got %T", value)
			}

		case "state_path":
			if path, ok := value.(string); ok {
				s.StatePath = path
			} else {
				return fmt.Errorf("invalid value type for state_path: expected string, got %T", value)
			}

		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *LifecycleSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.EvictionPolicy {
	case EvictionIdleTimeout, EvictionDrainAndDestroy:
	default:
		return fmt.Errorf("eviction_policy must be %q or %q, got %q",
			EvictionIdleTimeout, EvictionDrainAndDestroy, s.EvictionPolicy)
	}

	switch s.StateStore {
	case StateStoreFile, StateStoreSQLite:
	default:
		return fmt.Errorf("state_store must be %q or %q, got %q",
			StateStoreFile, StateStoreSQLite, s.StateStore)
	}

	if s.EvictionPolicy == EvictionIdleTimeout {
		if s.IdleTimeout < 10*time.Second {
			return fmt.Errorf("idle_timeout must be at least 10s, got %v", s.IdleTimeout)
		}
		if s.SweepInterval <= 0 {
			return fmt.Errorf("sweep_interval must be positive, got %v", s.SweepInterval)
		}
	}

	if s.AutoSaveInterval < 0 {
		return fmt.Errorf("autosave_interval must not be negative, got %v", s.AutoSaveInterval)
	}
	if s.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown_grace must be positive, got %v", s.ShutdownGrace)
	}

	return nil
}

// Reset resets the section to default configuration.
func (s *LifecycleSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.EvictionPolicy = defaultEvictionPolicy
	s.IdleTimeout = defaultIdleTimeout
	s.SweepInterval = defaultSweepInterval
	s.AutoSaveInterval = defaultAutoSaveInterval
	s.ShutdownGrace = defaultShutdownGrace
	s.AssumeValidOnRestore = defaultAssumeValidOnRestore
	s.StateStore = defaultStateStore
	s.StatePath = ""
}
