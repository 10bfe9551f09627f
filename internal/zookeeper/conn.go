// internal/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 是对 zk.Conn 的薄封装，锁只依赖这里用到的几个操作。
type Conn struct {
	*zk.Conn
}

// Connect 建立会话并等待首次连接成功。会话断开后其创建的临时节点会被服务端删除。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, errors.New("no zookeeper servers configured")
	}
	c, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				return &Conn{Conn: c}, nil
			}
		case <-deadline:
			c.Close()
			return nil, errors.Errorf("zookeeper session not established within %s", sessionTimeout)
		}
	}
}

// ensurePath 逐级创建持久节点，已存在的节点忽略。
func (c *Conn) ensurePath(path string) error {
	exists, _, err := c.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if parent := parentOf(path); parent != "" && parent != "/" {
		if err := c.ensurePath(parent); err != nil {
			return err
		}
	}
	_, err = c.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return err
	}
	return nil
}

func parentOf(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
