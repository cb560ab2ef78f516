package config

import "fmt"

type RedisConfig struct {
	Type       string
	Addresses  []string
	IsSentinel bool
	Password   RedactedString
	MasterName string
	DBIndex    int
}

const DBTypeRedis string = "redis"
const DBTypeRedisMock string = "redis-mock"

func (c RedisConfig) Validate(e RunningEnvironment) error {
	switch c.Type {
	case DBTypeRedis:
		if len(c.Addresses) == 0 {
			return fmt.Errorf("at least one redis address is required")
		}
		if c.IsSentinel && c.MasterName == "" {
			return fmt.Errorf("the redis master name is required when using sentinels")
		}
	case DBTypeRedisMock:
		if e != Development {
			return fmt.Errorf("redis type cannot be \"redis-mock\" in production")
		}
	default:
		return fmt.Errorf("unrecognized redis type %q", c.Type)
	}
	return nil
}
