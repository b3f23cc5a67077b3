package scoring

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds the tier windows, in days.
type Config struct {
	RejectedWindowDays int `yaml:"rejected_window_days"`
	HighWindowDays     int `yaml:"high_window_days"`
	NormalWindowDays   int `yaml:"normal_window_days"`
}

// DefaultConfig returns the standard 30/30/90 day windows.
func DefaultConfig() Config {
	return Config{
		RejectedWindowDays: 30,
		HighWindowDays:     30,
		NormalWindowDays:   90,
	}
}

// Validate checks the windows are positive and the high window fits inside
// the normal one.
func (c Config) Validate() error {
	var errs []string
	if c.RejectedWindowDays <= 0 {
		errs = append(errs, fmt.Sprintf("rejected_window_days must be positive (got %d)", c.RejectedWindowDays))
	}
	if c.HighWindowDays <= 0 {
		errs = append(errs, fmt.Sprintf("high_window_days must be positive (got %d)", c.HighWindowDays))
	}
	if c.NormalWindowDays < c.HighWindowDays {
		errs = append(errs, fmt.Sprintf("normal_window_days (%d) must be >= high_window_days (%d)", c.NormalWindowDays, c.HighWindowDays))
	}
	if len(errs) > 0 {
		return eris.Errorf("scoring: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfig reads windows from a YAML file. Keys absent from the file keep
// the values in base.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "scoring: read %s", path)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, eris.Wrapf(err, "scoring: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}
