package flight

import "fmt"

// Config is the flat parameter map consumed at Init. Unknown keys are
// ignored; missing required keys fail Init with a *ConfigError.
type Config map[string]float64

// ConfigError reports a missing or out-of-range parameter at init time.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Key, e.Reason)
}

// Value returns the parameter or def when absent.
func (c Config) Value(key string, def float64) float64 {
	if v, ok := c[key]; ok {
		return v
	}
	return def
}

// Require returns the parameter or a *ConfigError when absent.
func (c Config) Require(key string) (float64, error) {
	v, ok := c[key]
	if !ok {
		return 0, &ConfigError{Key: key, Reason: "missing"}
	}
	return v, nil
}

// RequirePositive returns the parameter, failing when absent or <= 0.
func (c Config) RequirePositive(key string) (float64, error) {
	v, err := c.Require(key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("must be > 0, got %g", v)}
	}
	return v, nil
}

// RequireRange returns the parameter, failing when absent or outside [lo, hi].
func (c Config) RequireRange(key string, lo, hi float64) (float64, error) {
	v, err := c.Require(key)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("must be in [%g, %g], got %g", lo, hi, v)}
	}
	return v, nil
}

// Clone returns an independent copy so a controller's view of its
// parameters cannot be mutated after Init.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
