// internal/service/checkout/infrastructure/adapter/attempt_guard.go
package adapter

import (
	"context"
	"sync"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/port"
	"tiffin/internal/zookeeper"
)

// LocalAttemptGuard 在单个进程内按 key 串行化结账尝试。
type LocalAttemptGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalAttemptGuard() *LocalAttemptGuard {
	return &LocalAttemptGuard{held: make(map[string]struct{})}
}

func (g *LocalAttemptGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, port.ErrAttemptInProgress
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// ZKAttemptGuard 用 ZooKeeper 临时顺序节点实现跨设备的结账互斥，
// 客户端崩溃后会话过期，锁自动释放。
type ZKAttemptGuard struct {
	conn *zookeeper.Conn
}

func NewZKAttemptGuard(conn *zookeeper.Conn) *ZKAttemptGuard {
	return &ZKAttemptGuard{conn: conn}
}

func (g *ZKAttemptGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(g.conn, "checkout-"+key)
	if err != nil {
		return nil, err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, port.ErrAttemptInProgress
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to release checkout lock")
			}
		})
	}, nil
}
