package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCmdable is an in-process stand-in for a redis connection. TTLs are recorded
// but not enforced.
type MemoryCmdable struct {
	mu          sync.Mutex
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func NewMemoryCmdable() *MemoryCmdable {
	return &MemoryCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

// NewWithCmdable builds a Client over an arbitrary command surface.
func NewWithCmdable(store cmdable) *Client {
	return &Client{store: store}
}

func (m *MemoryCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

// Eval only understands the scripts this package issues.
func (m *MemoryCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != setIfNewerScript || len(keys) != 1 || len(args) != 3 {
		return redis.NewCmdResult(nil, errors.New("memory redis: unsupported script"))
	}
	version, err := strconv.ParseUint(stringify(args[0]), 10, 64)
	if err != nil {
		return redis.NewCmdResult(nil, fmt.Errorf("memory redis: bad version: %w", err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.data[keys[0]]; ok {
		var doc struct {
			Version *uint64 `json:"version"`
		}
		if json.Unmarshal([]byte(current), &doc) == nil && doc.Version != nil && *doc.Version >= version {
			return redis.NewCmdResult(int64(0), nil)
		}
	}
	m.data[keys[0]] = stringify(args[1])
	return redis.NewCmdResult(int64(1), nil)
}

func (m *MemoryCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *MemoryCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = stringify(value)
	return redis.NewBoolResult(true, nil)
}

func (m *MemoryCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *MemoryCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (m *MemoryCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func stringify(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
