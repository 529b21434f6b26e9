package uploadcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(2, time.Hour)

	_, ok, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Put(ctx, Completion{SessionID: "s1", FileID: "documents/a.pdf", RecordID: 7}))
	c, ok, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), c.RecordID)

	// 超出容量淘汰最旧的
	require.NoError(t, l.Put(ctx, Completion{SessionID: "s2"}))
	require.NoError(t, l.Put(ctx, Completion{SessionID: "s3"}))
	_, ok, _ = l.Get(ctx, "s1")
	assert.False(t, ok)
}

func TestRedisLedger(t *testing.T) {
	ctx := context.Background()
	l := NewRedisLedger(redistest.CreateRedis(t), time.Minute)

	_, ok, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, l.Put(ctx, Completion{SessionID: "s1", FileID: "documents/b.pdf", RecordID: 9, CompletedAt: at}))

	c, ok, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "documents/b.pdf", c.FileID)
	assert.Equal(t, int64(9), c.RecordID)
	assert.True(t, at.Equal(c.CompletedAt))
}
