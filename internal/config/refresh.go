package config

import (
	"fmt"
	"time"
)

type RefreshConfig struct {
	// Upper bound for a single call to the refresh endpoint
	Timeout time.Duration
	// Upper bound for a request waiting on a refresh started by another request, 0 disables it
	WaitTimeout time.Duration
	// Proactive refresh of access tokens that expire soon, only used with the redis credential store
	Proactive          bool
	ExpiresSoonMinutes int
}

func (c RefreshConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("the refresh timeout (%s) needs to be greater than 0", c.Timeout)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("the refresh wait timeout (%s) cannot be negative", c.WaitTimeout)
	}
	if c.Proactive && c.ExpiresSoonMinutes <= 0 {
		return fmt.Errorf("invalid value for ExpiresSoonMinutes (%d)", c.ExpiresSoonMinutes)
	}
	return nil
}
