package db

import (
	"context"
	"encoding"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Implements the LimitedRedisClient interface
// Only suitable for testing and development
// The value set for the IntCmd or similar results is always 1 regardless of how many records were affected
// Contexts and expiry times are completely ignored
type MockRedisClient struct {
	lock  sync.Mutex
	store map[string]any
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{store: map[string]any{}}
}

func NewMockRedisAdapter(options ...RedisAdapterOption) (*RedisAdapter, error) {
	options = append([]RedisAdapterOption{WithRedisClient(NewMockRedisClient())}, options...)
	return NewRedisAdapter(options...)
}

func convertValuesToMap(values ...any) (map[string]string, error) {
	if len(values)%2 != 0 {
		return map[string]string{}, fmt.Errorf("number of provided values must be even")
	}
	output := map[string]string{}
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return map[string]string{}, fmt.Errorf("hash field names must be strings")
		}
		switch val := values[i+1].(type) {
		case string:
			output[key] = val
		case encoding.TextMarshaler:
			raw, err := val.MarshalText()
			if err != nil {
				return map[string]string{}, err
			}
			output[key] = string(raw)
		default:
			output[key] = fmt.Sprint(val)
		}
	}
	return output, nil
}

func (m *MockRedisClient) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.IntCmd{}
	val, err := convertValuesToMap(values...)
	if err != nil {
		res.SetErr(err)
		return &res
	}
	existing, found := m.store[key].(map[string]string)
	if !found {
		existing = map[string]string{}
	}
	for k, v := range val {
		existing[k] = v
	}
	m.store[key] = existing
	res.SetVal(1)
	return &res
}

func (m *MockRedisClient) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.MapStringStringCmd{}
	res.SetVal(map[string]string{})
	val, found := m.store[key].(map[string]string)
	if !found {
		return &res
	}
	output := make(map[string]string, len(val))
	for k, v := range val {
		output[k] = v
	}
	res.SetVal(output)
	return &res
}

func (m *MockRedisClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, k := range keys {
		delete(m.store, k)
	}
	res := redis.IntCmd{}
	res.SetVal(1)
	return &res
}

func (m *MockRedisClient) ExpireAt(_ context.Context, key string, _ time.Time) *redis.BoolCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, found := m.store[key]
	res := redis.BoolCmd{}
	res.SetVal(found)
	return &res
}

func (m *MockRedisClient) Persist(_ context.Context, key string) *redis.BoolCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, found := m.store[key]
	res := redis.BoolCmd{}
	res.SetVal(found)
	return &res
}

func (m *MockRedisClient) ZAdd(_ context.Context, key string, members ...redis.Z) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	existing, _ := m.store[key].([]redis.Z)
	for _, member := range members {
		replaced := false
		for i := range existing {
			if existing[i].Member == member.Member {
				existing[i].Score = member.Score
				replaced = true
			}
		}
		if !replaced {
			existing = append(existing, member)
		}
	}
	sort.SliceStable(existing, func(i, j int) bool { return existing[i].Score < existing[j].Score })
	m.store[key] = existing
	res := redis.IntCmd{}
	res.SetVal(1)
	return &res
}

func (m *MockRedisClient) ZRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.IntCmd{}
	existing, found := m.store[key].([]redis.Z)
	if !found {
		res.SetVal(0)
		return &res
	}
	kept := []redis.Z{}
	for _, z := range existing {
		remove := false
		for _, member := range members {
			remove = remove || z.Member == member
		}
		if !remove {
			kept = append(kept, z)
		}
	}
	m.store[key] = kept
	res.SetVal(1)
	return &res
}

// ZRangeArgs only supports BYSCORE queries with numeric or infinite bounds
func (m *MockRedisClient) ZRangeArgs(_ context.Context, z redis.ZRangeArgs) *redis.StringSliceCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.StringSliceCmd{}
	res.SetVal([]string{})
	if !z.ByScore {
		res.SetErr(fmt.Errorf("the mock redis client only supports ZRANGE BYSCORE"))
		return &res
	}
	start, err := parseScore(z.Start)
	if err != nil {
		res.SetErr(err)
		return &res
	}
	stop, err := parseScore(z.Stop)
	if err != nil {
		res.SetErr(err)
		return &res
	}
	existing, _ := m.store[z.Key].([]redis.Z)
	output := []string{}
	for _, member := range existing {
		if member.Score >= start && member.Score <= stop {
			output = append(output, fmt.Sprint(member.Member))
		}
	}
	res.SetVal(output)
	return &res
}

func parseScore(raw any) (float64, error) {
	switch val := raw.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	case string:
		switch val {
		case "-inf":
			return math.Inf(-1), nil
		case "+inf", "inf":
			return math.Inf(1), nil
		}
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("unsupported score bound %v", raw)
	}
}
