package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	// Default values for browser settings
	defaultHeadless         = true
	defaultViewportWidth    = 1280
	defaultViewportHeight   = 720
	defaultOperationTimeout = 30000.0 // milliseconds
	defaultInstallBrowsers  = true
)

// BrowserSection manages automation driver configuration settings.
type BrowserSection struct {
	Headless         bool    `json:"headless"`
	ViewportWidth    int     `json:"viewport_width"`
	ViewportHeight   int     `json:"viewport_height"`
	OperationTimeout float64 `json:"operation_timeout_ms"`
	InstallBrowsers  bool    `json:"install_browsers"`
	mu               sync.RWMutex
}

// NewBrowserSection creates a new browser section with default settings.
func NewBrowserSection() *BrowserSection {
	return &BrowserSection{
		Headless:         defaultHeadless,
		ViewportWidth:    defaultViewportWidth,
		ViewportHeight:   defaultViewportHeight,
		OperationTimeout: defaultOperationTimeout,
		InstallBrowsers:  defaultInstallBrowsers,
	}
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Configure the automation browser: headless mode, viewport, and operation timeout."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"headless":             s.Headless,
		"viewport_width":       s.ViewportWidth,
		"viewport_height":      s.ViewportHeight,
		"operation_timeout_ms": s.OperationTimeout,
		"install_browsers":     s.InstallBrowsers,
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "headless":
			if enabled, ok := value.(bool); ok {
				s.Headless = enabled
			} else {
				return fmt.Errorf("invalid value type for headless: expected bool, got %T", value)
			}

		case "viewport_width":
			width, err := parseIntValue(value)
			if err != nil {
				return fmt.Errorf("invalid viewport_width: %w", err)
			}
			s.ViewportWidth = width

		case "viewport_height":
			height, err := parseIntValue(value)
			if err != nil {
				return fmt.Errorf("invalid viewport_height: %w", err)
			}
			s.ViewportHeight = height

		case "operation_timeout_ms":
			switch v := value.(type) {
			case float64:
				s.OperationTimeout = v
			case int:
				s.OperationTimeout = float64(v)
			case int64:
				s.OperationTimeout = float64(v)
			default:
				return fmt.Errorf("invalid value type for operation_timeout_ms: expected number, got %T", value)
			}

		case "install_browsers":
			if enabled, ok := value.(bool); ok {
				s.InstallBrowsers = enabled
			} else {
				return fmt.Errorf("invalid value type for install_browsers: expected bool, got %T", value)
			}

		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout_ms must be positive, got %v", s.OperationTimeout)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Headless = defaultHeadless
	s.ViewportWidth = defaultViewportWidth
	s.ViewportHeight = defaultViewportHeight
	s.OperationTimeout = defaultOperationTimeout
	s.InstallBrowsers = defaultInstallBrowsers
}

// parseIntValue accepts integer values as Go ints or JSON float64s.
func parseIntValue(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}
