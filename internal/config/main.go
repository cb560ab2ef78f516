package config

import (
	"fmt"
	"net/http"
)

type RunningEnvironment string

const (
	Development RunningEnvironment = "development"
	Production  RunningEnvironment = "production"
)

type Config struct {
	RunningEnvironment RunningEnvironment
	DebugMode          bool
	Server             ServerConfig
	API                APIConfig
	Credentials        CredentialsConfig
	Cookie             CookieConfig
	Refresh            RefreshConfig
	Redis              RedisConfig
	Sessions           SessionConfig
	Monitoring         MonitoringConfig
}

// Note the browser side may depend on these values, changing them will cause breaking changes
const (
	SessionCookieName = "_goalgrid_session"
	TokenCookieName   = "token"
	SessionCtxKey     = "goalgrid_session"
)

var SessionCookieTemplate = http.Cookie{Name: SessionCookieName, HttpOnly: true, Path: "/", SameSite: http.SameSiteLaxMode}

func (c *Config) Validate() error {
	switch c.RunningEnvironment {
	case Development, Production:
	default:
		return fmt.Errorf("unknown running environment %q", c.RunningEnvironment)
	}
	err := c.API.Validate()
	if err != nil {
		return err
	}
	err = c.Credentials.Validate(c.RunningEnvironment)
	if err != nil {
		return err
	}
	err = c.Cookie.Validate()
	if err != nil {
		return err
	}
	err = c.Refresh.Validate()
	if err != nil {
		return err
	}
	if c.Credentials.Type == CredentialStoreRedis {
		err = c.Redis.Validate(c.RunningEnvironment)
		if err != nil {
			return err
		}
	}
	err = c.Sessions.Validate()
	if err != nil {
		return err
	}
	return nil
}
