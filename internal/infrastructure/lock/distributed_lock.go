package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 两个串行化需求都靠它兜住：
//
// 1. 账本按用户维度串行：余额的读-改-写必须是一个原子动作，否则同一
//    用户并发付费会丢更新。
// 2. 匹配按标签维度串行：同一个 tag 的候选扫描 + 建匹配必须当作一个
//    原子单元，否则两个并发提交会抢同一个候选、打破"每轮至多新建一条
//    匹配"的规则。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 先比对 value 再 DEL，防止误删他人持有的锁
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
// nil 接收者是安全的：单机测试不接 Redis 时锁退化为 no-op
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 持有者标识，释放时校验
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	if client == nil {
		return nil
	}
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	if l == nil {
		return true, nil
	}
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	if l == nil {
		return nil
	}
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// Lua 保证"校验持有者 + 删除"原子执行：锁已过期被他人抢走时不会误删
func (l *DistributedLock) Unlock(ctx context.Context) error {
	if l == nil {
		return nil
	}
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewLedgerLock 账本锁（按用户维度）
// 同一用户的付费动作串行，不同用户互不影响
func NewLedgerLock(client *redis.Client, userID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("ledger:lock:user:%d", userID)
	if holder == "" {
		holder = uuid.NewString()
	}
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewTagLock 匹配锁（按归一化标签维度）
// 同一标签池内的扫描和建匹配串行
func NewTagLock(client *redis.Client, tagNorm string) *DistributedLock {
	key := "match:lock:tag:" + tagNorm
	return NewDistributedLock(client, key, uuid.NewString(), 30*time.Second)
}

// NewSweepLock 周期扫描任务锁，多实例部署时只允许一个实例跑
func NewSweepLock(client *redis.Client, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, "match:lock:sweep", uuid.NewString(), expiration)
}
