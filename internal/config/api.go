package config

import (
	"fmt"
	"net/url"
	"time"
)

type APIConfig struct {
	// Base URL of the goal tracking backend, e.g. http://localhost:8080
	BaseURL        *url.URL
	RequestTimeout time.Duration
}

func (c APIConfig) Validate() error {
	if c.BaseURL == nil {
		return fmt.Errorf("the API base URL is not defined")
	}
	if c.BaseURL.Scheme != "http" && c.BaseURL.Scheme != "https" {
		return fmt.Errorf("the API base URL scheme has to be http or https, found %q", c.BaseURL.Scheme)
	}
	if c.BaseURL.Host == "" {
		return fmt.Errorf("the API base URL %q has no host", c.BaseURL.String())
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("the API request timeout (%s) cannot be negative", c.RequestTimeout)
	}
	return nil
}
