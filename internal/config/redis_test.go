package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func getValidRedisConfig() RedisConfig {
	return RedisConfig{
		Type:      "redis",
		Addresses: []string{"localhost:6379"},
	}
}

func TestValidRedisConfig(t *testing.T) {
	config := getValidRedisConfig()

	err := config.Validate(Production)

	assert.NoError(t, err)
}

func TestInvalidRedisType(t *testing.T) {
	config := getValidRedisConfig()
	config.Type = "redis-mock"

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "redis type cannot be \"redis-mock\" in production")
}

func TestRedisMockInDevelopment(t *testing.T) {
	config := RedisConfig{Type: "redis-mock"}

	err := config.Validate(Development)

	assert.NoError(t, err)
}

func TestRedisMissingAddresses(t *testing.T) {
	config := getValidRedisConfig()
	config.Addresses = nil

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "at least one redis address is required")
}

func TestRedisSentinelWithoutMaster(t *testing.T) {
	config := getValidRedisConfig()
	config.IsSentinel = true

	err := config.Validate(Production)

	assert.ErrorContains(t, err, "master name")
}
