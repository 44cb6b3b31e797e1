// pkg/wsclient/config.go
package wsclient

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/YaganovValera/optionstream/pkg/backoff"
)

// Config holds the websocket connection settings.
type Config struct {
	URL          string            `mapstructure:"url"`
	Headers      map[string]string `mapstructure:"headers"`
	Handshake    []string          `mapstructure:"handshake"`
	BufferSize   int               `mapstructure:"buffer_size"`
	ReadTimeout  time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout time.Duration     `mapstructure:"write_timeout"`
	Backoff      backoff.Config    `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

func (c Config) validate() error {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "url is required")
	} else if u, err := url.Parse(c.URL); err != nil {
		errs = append(errs, fmt.Sprintf("url: %v", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Sprintf("url scheme %q is not ws or wss", u.Scheme))
	}
	if len(errs) > 0 {
		return fmt.Errorf("wsclient: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
