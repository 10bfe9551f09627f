// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis 客户端，并管理按名称注册的 Lua 脚本。
type Client struct {
	rdb     goredis.UniversalClient
	scripts map[string]*goredis.Script
	mu      sync.RWMutex
}

// NewClient 连接 Redis 并做一次 PING 校验。
func NewClient(ctx context.Context, addr, password string) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return Wrap(rdb), nil
}

// Wrap 包装一个已有的客户端（测试中用于接入 miniredis）。
func Wrap(rdb goredis.UniversalClient) *Client {
	return &Client{rdb: rdb, scripts: make(map[string]*goredis.Script)}
}

// LoadScriptFromContent 注册一个脚本。脚本在首次执行时通过 EVALSHA 加载，NOSCRIPT 时自动回退到 EVAL。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，用于 pipeline 等脚本之外的操作。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
