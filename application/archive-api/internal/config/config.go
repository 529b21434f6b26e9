package config

import (
	"time"

	"github.com/yanshicheng/archive-nova/application/archive-api/internal/optimizer"
	"github.com/yanshicheng/archive-nova/common/vars"
	"github.com/yanshicheng/archive-nova/pkg/storage"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/rest"
)

// multipart 表单字段与边界的额外开销
const formOverhead = 1 << 20

type Config struct {
	rest.RestConf
	Mysql struct {
		DataSource      string
		MaxOpenConns    int           `json:",default=20"` // 最大连接数
		MaxIdleConns    int           `json:",default=5"`  // 最大空闲连接数
		ConnMaxLifetime time.Duration `json:",default=1h"` // 连接的最大生命周期
	}
	// Cache 为空时完成记录与分布式锁退化为进程内实现
	Cache       redis.RedisConf `json:",optional"`
	StorageConf storage.UploaderOptions
	Upload      UploadConfig
	Optimizer   optimizer.Conf
	Crontab     CrontabConfig
}

// UploadConfig 分片上传配置
type UploadConfig struct {
	// 客户端分片大小，单个分片上限不会低于该值
	ChunkSize int64 `json:",default=4194304"`
	// 单个分片上限
	MaxChunkBytes  int64 `json:",default=8388608"`
	MaxTotalChunks int   `json:",default=4096"`
	// 会话空闲超时
	SessionTimeout time.Duration `json:",default=30m"`
	ReapSpec       string        `json:",default=0 */1 * * * *"`
	// 为空时使用系统临时目录
	SpoolDir      string        `json:",optional"`
	CompletedTTL  time.Duration `json:",default=1h"`
	CompletedSize int           `json:",default=10000"`
}

// CrontabConfig 定时任务配置
type CrontabConfig struct {
	EnableDistributedLock bool          `json:",default=true"`
	PendingSpec           string        `json:",default=0 */5 * * * *"`
	PendingAge            time.Duration `json:",default=10m"`
	PendingBatch          int           `json:",default=20"`
}

// HasRedis 是否配置了 Redis
func (c Config) HasRedis() bool {
	return c.Cache.Host != ""
}

// ChunkLimit 单个分片允许的最大字节数
func (u UploadConfig) ChunkLimit() int64 {
	limit := u.MaxChunkBytes
	if limit <= 0 {
		limit = vars.DefaultMaxChunkBytes
	}
	chunkSize := u.ChunkSize
	if chunkSize <= 0 {
		chunkSize = vars.DefaultChunkSize
	}
	return max(limit, chunkSize)
}

// RequestLimit 分片接口的请求体上限
func (u UploadConfig) RequestLimit() int64 {
	return u.ChunkLimit() + formOverhead
}

// TotalChunksLimit 单个会话允许的最大分片数
func (u UploadConfig) TotalChunksLimit() int {
	if u.MaxTotalChunks > 0 {
		return u.MaxTotalChunks
	}
	return vars.DefaultMaxTotalChunks
}

// CompletionTTL 完成记录保留时长
func (u UploadConfig) CompletionTTL() time.Duration {
	if u.CompletedTTL > 0 {
		return u.CompletedTTL
	}
	return vars.DefaultCompletedTTL
}
