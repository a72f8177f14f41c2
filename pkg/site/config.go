package site

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Selectors identifies the page elements the operations interact with.
type Selectors struct {
	// LoggedIn is present only when an authenticated session is active
	LoggedIn string `yaml:"logged_in"`

	// QRImage is the login QR code element on the login page
	QRImage string `yaml:"qr_image"`

	// ScanConfirmed appears once the QR code has been scanned and approved
	ScanConfirmed string `yaml:"scan_confirmed"`

	// ComposeInput is the post composer text field
	ComposeInput string `yaml:"compose_input"`

	// SubmitButton submits the composed post
	SubmitButton string `yaml:"submit_button"`

	// PostConfirmed appears once the post has been accepted
	PostConfirmed string `yaml:"post_confirmed"`
}

// Config describes the target site: where its pages live, how to find the
// elements the operations touch, and the posting constraints.
type Config struct {
	HomeURL    string `yaml:"home_url"`
	LoginURL   string `yaml:"login_url"`
	ComposeURL string `yaml:"compose_url"`

	Selectors Selectors `yaml:"selectors"`

	// MaxPostLength bounds post content, in runes
	MaxPostLength int `yaml:"max_post_length"`

	// NavTimeout bounds each navigation and selector wait
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults. URLs must
// still be supplied before the operations can run.
func DefaultConfig() *Config {
	return &Config{
		Selectors: Selectors{
			LoggedIn:      "[data-testid='user-menu']",
			QRImage:       "[data-testid='login-qrcode'] img",
			ScanConfirmed: "[data-testid='scan-confirmed']",
			ComposeInput:  "[data-testid='compose-input']",
			SubmitButton:  "[data-testid='compose-submit']",
			PostConfirmed: "[data-testid='post-confirmed']",
		},
		MaxPostLength: 2000,
		NavTimeout:    30 * time.Second,
	}
}

// LoadConfig loads site configuration from a YAML file, applying it over
// the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config file: %w", err)
	}

	config := DefaultConfig()
	if unmarshalErr := yaml.Unmarshal(data, config); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse site config file: %w", unmarshalErr)
	}

	return config, nil
}

// Validate checks that the configuration is complete enough to run.
func (c *Config) Validate() error {
	if c.HomeURL == "" {
		return fmt.Errorf("home_url is required")
	}
	if c.LoginURL == "" {
		return fmt.Errorf("login_url is required")
	}
	if c.ComposeURL == "" {
		c.ComposeURL = c.HomeURL
	}
	if c.MaxPostLength <= 0 {
		return fmt.Errorf("max_post_length must be positive, got %d", c.MaxPostLength)
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("nav_timeout must be positive, got %v", c.NavTimeout)
	}

	sels := map[string]string{
		"logged_in":      c.Selectors.LoggedIn,
		"qr_image":       c.Selectors.QRImage,
		"scan_confirmed": c.Selectors.ScanConfirmed,
		"compose_input":  c.Selectors.ComposeInput,
		"submit_button":  c.Selectors.SubmitButton,
		"post_confirmed": c.Selectors.PostConfirmed,
	}
	for name, sel := range sels {
		if sel == "" {
			return fmt.Errorf("selector %s is required", name)
		}
	}

	return nil
}
