package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings required by mode are present and in
// range. Modes: "serve", "enrich", "queue", "import", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 50 {
		errs = append(errs, "enrich.concurrency must be between 1 and 50")
	}
	if c.Webhook.MaxAttempts < 1 {
		errs = append(errs, "webhook.max_attempts must be >= 1")
	}
	for _, s := range c.Webhook.BackoffSecs {
		if s < 0 {
			errs = append(errs, "webhook.backoff_secs values must be >= 0")
			break
		}
	}
	if c.Queue.DailyCapacity < 0 {
		errs = append(errs, "queue.daily_capacity must be >= 0")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Enrich.BaseURL != "" {
			errs = append(errs, c.enrichErrors()...)
		}
	case "enrich":
		errs = append(errs, c.enrichErrors()...)
	case "queue", "import", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Salesforce.Enabled {
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required when salesforce.enabled")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required when salesforce.enabled")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) enrichErrors() []string {
	if c.Enrich.BaseURL == "" {
		return []string{"enrich.base_url is required"}
	}
	if u, err := url.Parse(c.Enrich.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return []string{"enrich.base_url must be an absolute URL"}
	}
	return nil
}
