package uploadcore

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeromicro/go-zero/core/jsonx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const ledgerKeyPrefix = "archive:upload:completed:"

// Completion 已完成会话的终态响应，用于最后一个分片重试时返回同样结果
type Completion struct {
	SessionID   string    `json:"sessionId"`
	FileID      string    `json:"fileId"`
	RecordID    int64     `json:"recordId"`
	CompletedAt time.Time `json:"completedAt"`
}

// CompletionLedger 完成记录
type CompletionLedger interface {
	Put(ctx context.Context, c Completion) error
	Get(ctx context.Context, sessionID string) (*Completion, bool, error)
}

// MemoryLedger 进程内 LRU，带过期
type MemoryLedger struct {
	cache *expirable.LRU[string, Completion]
}

func NewMemoryLedger(size int, ttl time.Duration) *MemoryLedger {
	if size <= 0 {
		size = 1024
	}
	return &MemoryLedger{cache: expirable.NewLRU[string, Completion](size, nil, ttl)}
}

func (l *MemoryLedger) Put(_ context.Context, c Completion) error {
	l.cache.Add(c.SessionID, c)
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, sessionID string) (*Completion, bool, error) {
	c, ok := l.cache.Get(sessionID)
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

// RedisLedger 多副本共享的完成记录
type RedisLedger struct {
	client *redis.Redis
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Redis, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Put(ctx context.Context, c Completion) error {
	body, err := jsonx.MarshalToString(c)
	if err != nil {
		return fmt.Errorf("序列化完成记录失败: %w", err)
	}
	seconds := int(l.ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return l.client.SetexCtx(ctx, ledgerKeyPrefix+c.SessionID, body, seconds)
}

func (l *RedisLedger) Get(ctx context.Context, sessionID string) (*Completion, bool, error) {
	body, err := l.client.GetCtx(ctx, ledgerKeyPrefix+sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("读取完成记录失败: %w", err)
	}
	if body == "" {
		return nil, false, nil
	}
	var c Completion
	if err := jsonx.UnmarshalFromString(body, &c); err != nil {
		return nil, false, fmt.Errorf("解析完成记录失败: %w", err)
	}
	return &c, true, nil
}
