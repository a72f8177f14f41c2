package config

// Section is a logical group of configuration settings with its own
// validation and defaults. Sections register with the Manager, which
// handles persistence through a Store.
type Section interface {
	// ID returns the unique section identifier used as the storage key
	ID() string

	// Title returns a human-readable section title
	Title() string

	// Description returns a human-readable section description
	Description() string

	// Data returns the current configuration data for persistence
	Data() map[string]interface{}

	// SetData updates the configuration from persisted data
	SetData(data map[string]interface{}) error

	// Validate validates the current configuration
	Validate() error

	// Reset resets the section to default configuration
	Reset()
}
