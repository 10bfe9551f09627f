// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// ErrNotLocked 表示在未持有锁时调用 Unlock。
var ErrNotLocked = errors.New("no lock to unlock")

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     *Conn  // ZooKeeper连接
	path     string // 锁的路径，例如 /distributed_locks/checkout-<user>
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	if err := conn.ensurePath(lockPath); err != nil {
		return nil, errors.Wrapf(err, "create lock path %s", lockPath)
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 获取锁，获取不到则阻塞等待前一个节点被删除，直到 ctx 结束。
func (l *DistributedLock) Lock(ctx context.Context) error {
	if err := l.createNode(); err != nil {
		return err
	}

	for {
		// 1. 获取锁路径下的所有子节点，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sortBySequence(children)

		// 2. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		idx := indexOf(children, myNodeName)
		if idx < 0 {
			l.abandon()
			return errors.New("lock node vanished, session may have expired")
		}
		if idx == 0 {
			return nil
		}

		// 3. 不是最小节点，监听前一个节点
		prevNodePath := l.path + "/" + children[idx-1]
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 前一个节点有变化，重新进入循环去竞争锁
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// TryLock 非阻塞地尝试获取锁。已被他人持有时返回 false，并删除自己刚创建的节点。
func (l *DistributedLock) TryLock() (bool, error) {
	if err := l.createNode(); err != nil {
		return false, err
	}
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		l.abandon()
		return false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	sortBySequence(children)
	if len(children) > 0 && children[0] == strings.TrimPrefix(l.lockNode, l.path+"/") {
		return true, nil
	}
	l.abandon()
	return false, nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return ErrNotLocked
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// createNode 在锁路径下创建一个临时顺序节点，格式为 <path>/_c_<guid>-lock-<seq>。
func (l *DistributedLock) createNode() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	return nil
}

func (l *DistributedLock) abandon() {
	_ = l.Unlock()
}

// sortBySequence 按节点名末尾的顺序号排序。受保护节点带有随机前缀，不能直接按字符串排序。
func sortBySequence(children []string) {
	sort.SliceStable(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(node string) int64 {
	i := strings.LastIndex(node, "-")
	if i < 0 {
		return -1
	}
	seq, err := strconv.ParseInt(node[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return seq
}

func indexOf(children []string, name string) int {
	for i, c := range children {
		if c == name {
			return i
		}
	}
	return -1
}
