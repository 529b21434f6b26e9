package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	lockKeyPrefix     = "archive:crontab:lock:"
	defaultLockExpire = 60 // 秒
)

// Locker 跨节点互斥，保证同一任务同一时刻只在一个节点执行
type Locker interface {
	// TryLock 未获取到锁时 acquired 为 false 且 err 为 nil
	TryLock(ctx context.Context, jobName string, ttl time.Duration) (acquired bool, release func(), err error)
	NodeID() string
}

// RedisLocker 基于 go-zero RedisLock
type RedisLocker struct {
	client *redis.Redis
	nodeID string
}

func NewRedisLocker(client *redis.Redis, nodeID string) *RedisLocker {
	return &RedisLocker{client: client, nodeID: nodeID}
}

func (l *RedisLocker) TryLock(ctx context.Context, jobName string, ttl time.Duration) (bool, func(), error) {
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = defaultLockExpire
	}

	lock := redis.NewRedisLock(l.client, lockKeyPrefix+jobName)
	// 必须在 Acquire 之前设置
	lock.SetExpire(seconds)

	acquired, err := lock.AcquireCtx(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("获取锁失败: %w", err)
	}
	if !acquired {
		return false, nil, nil
	}

	release := func() {
		// 原 ctx 可能已超时
		if _, err := lock.ReleaseCtx(context.Background()); err != nil {
			logx.Errorf("[Crontab] 释放分布式锁失败, job=%s, node=%s, error=%v", jobName, l.nodeID, err)
		}
	}
	return true, release, nil
}

func (l *RedisLocker) NodeID() string {
	return l.nodeID
}

// NoopLocker 单机模式
type NoopLocker struct {
	nodeID string
}

func NewNoopLocker(nodeID string) *NoopLocker {
	return &NoopLocker{nodeID: nodeID}
}

func (l *NoopLocker) TryLock(context.Context, string, time.Duration) (bool, func(), error) {
	return true, func() {}, nil
}

func (l *NoopLocker) NodeID() string {
	return l.nodeID
}
