// Package svctest 构造基于内存存储和 SQLite 的 ServiceContext，供 handler 与任务测试使用
package svctest

import (
	"context"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/config"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/optimizer"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/pkg/storage"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const schema = "CREATE TABLE `archives` (" +
	"`id` INTEGER PRIMARY KEY AUTOINCREMENT," +
	"`title` TEXT NOT NULL DEFAULT ''," +
	"`author` TEXT NOT NULL DEFAULT ''," +
	"`year` TEXT NOT NULL DEFAULT ''," +
	"`topic` TEXT NOT NULL DEFAULT ''," +
	"`keywords` TEXT NOT NULL DEFAULT ''," +
	"`summary` TEXT NOT NULL DEFAULT ''," +
	"`file_id` TEXT NOT NULL UNIQUE," +
	"`thumbnail_id` TEXT NULL," +
	"`upload_date` DATETIME NOT NULL," +
	"`downloads` INTEGER NOT NULL DEFAULT 0," +
	"`status` TEXT NOT NULL DEFAULT 'ready')"

type Option func(*options)

type options struct {
	conf     func(*config.Config)
	strategy optimizer.Strategy
}

// WithConfig 调整默认配置
func WithConfig(fn func(*config.Config)) Option {
	return func(o *options) { o.conf = fn }
}

// WithStrategy 替换文档优化策略，默认不做任何优化
func WithStrategy(s optimizer.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// Env 测试环境
type Env struct {
	Svc      *svc.ServiceContext
	Uploader *storage.MemoryUploader
	Conn     sqlx.SqlConn
}

func New(t *testing.T, opts ...Option) *Env {
	t.Helper()
	o := &options{strategy: optimizer.NoneStrategy{}}
	for _, opt := range opts {
		opt(o)
	}

	var c config.Config
	c.Upload.ChunkSize = 4 << 20
	c.Upload.MaxChunkBytes = 8 << 20
	c.Upload.MaxTotalChunks = 4096
	c.Upload.SessionTimeout = 30 * time.Minute
	c.Upload.CompletedTTL = time.Hour
	c.Upload.CompletedSize = 128
	c.Crontab.PendingAge = 10 * time.Minute
	c.Crontab.PendingBatch = 20
	if o.conf != nil {
		o.conf(&c)
	}

	conn := sqlx.NewSqlConn("sqlite3", filepath.Join(t.TempDir(), "archive.db"))
	_, err := conn.ExecCtx(context.Background(), schema)
	require.NoError(t, err)

	uploader := storage.NewMemoryUploader("http://files.test")
	svcCtx := svc.NewServiceContextWith(c, svc.Deps{
		Conn:       conn,
		Uploader:   uploader,
		Optimizer:  optimizer.New(o.strategy, 200, 280, color.White, 5*time.Second),
		Registerer: prometheus.NewRegistry(),
	})
	t.Cleanup(svcCtx.Stop)

	return &Env{Svc: svcCtx, Uploader: uploader, Conn: conn}
}
