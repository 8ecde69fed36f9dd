package upload

// Config holds the configuration for the image content directory.
type Config struct {
	// Dir is the content directory. It is created if missing.
	Dir string
	// MaxNameLength caps the sanitised part of a stored name.
	MaxNameLength int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Dir:           "data/uploads",
		MaxNameLength: 100,
	}
}
