package config

import (
	"time"
)

// Config wraps a map[string]any for type-safe value extraction.
// All accessor methods return default values if the key is missing
// or the value cannot be converted to the requested type.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal if missing or invalid.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int: interpreted as seconds
//   - float64: interpreted as seconds
//   - time.Duration: used directly
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
// A float64 is accepted only if it has no fractional part (JSON numbers).
func (c Config) Int(key string, defaultVal int) int {
	switch val := c.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Section returns the nested map under key as a Config.
// Missing keys and non-map values yield an empty Config.
func (c Config) Section(key string) Config {
	switch val := c.data[key].(type) {
	case map[string]any:
		return New(val)
	case map[any]any:
		converted := make(map[string]any, len(val))
		for k, v := range val {
			if s, ok := k.(string); ok {
				converted[s] = v
			}
		}
		return New(converted)
	}
	return New(nil)
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}
