package svc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/common/uploadcore"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/config"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/crontab"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/finalizer"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/model"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/optimizer"
	"github.com/yanshicheng/archive-nova/common/verify"
	"github.com/yanshicheng/archive-nova/pkg/storage"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

type ServiceContext struct {
	Config        config.Config
	Cache         *redis.Redis // 未配置时为 nil
	Validator     *verify.ValidatorInstance
	Uploader      storage.Uploader
	Store         *uploadcore.Store
	Ledger        uploadcore.CompletionLedger
	ArchivesModel model.ArchivesModel
	Finalizer     *finalizer.Finalizer

	// 定时任务管理器
	CronManager *crontab.Manager
}

func NewServiceContext(c config.Config) *ServiceContext {
	sqlConn := sqlx.NewMysql(c.Mysql.DataSource)
	rawDB, err := sqlConn.RawDB()
	logx.Must(err)
	// 配置连接池参数
	rawDB.SetMaxOpenConns(c.Mysql.MaxOpenConns)
	rawDB.SetMaxIdleConns(c.Mysql.MaxIdleConns)
	rawDB.SetConnMaxLifetime(c.Mysql.ConnMaxLifetime)

	var rds *redis.Redis
	if c.HasRedis() {
		rds = redis.MustNewRedis(c.Cache)
	}

	uploader, err := storage.NewUploader(c.StorageConf)
	logx.Must(err)

	return NewServiceContextWith(c, Deps{
		Conn:       sqlConn,
		Redis:      rds,
		Uploader:   storage.NewObservedUploader(uploader, prometheus.DefaultRegisterer),
		Optimizer:  optimizer.MustNewOptimizer(c.Optimizer),
		Registerer: prometheus.DefaultRegisterer,
	})
}

// Deps 外部依赖，测试时可替换为内存实现
type Deps struct {
	Conn       sqlx.SqlConn
	Redis      *redis.Redis
	Uploader   storage.Uploader
	Optimizer  *optimizer.Optimizer
	Registerer prometheus.Registerer
}

func NewServiceContextWith(c config.Config, d Deps) *ServiceContext {
	validator, err := verify.InitValidator(verify.LocaleZH)
	logx.Must(err)

	spool := uploadcore.NewDiskSpool(c.Upload.SpoolDir)
	logx.Must(spool.Reset())
	store := uploadcore.NewStore(spool)

	var ledger uploadcore.CompletionLedger
	if d.Redis != nil {
		ledger = uploadcore.NewRedisLedger(d.Redis, c.Upload.CompletionTTL())
	} else {
		ledger = uploadcore.NewMemoryLedger(c.Upload.CompletedSize, c.Upload.CompletionTTL())
	}

	archivesModel := model.NewArchivesModel(d.Conn)
	fin := finalizer.New(store, d.Uploader, d.Optimizer, archivesModel, ledger, finalizer.Config{
		DeferOptimize: c.Optimizer.Defer,
		Timeout:       finalizeTimeout(c),
	})

	registerSessionGauge(d.Registerer, store)

	svcCtx := &ServiceContext{
		Config:        c,
		Cache:         d.Redis,
		Validator:     validator,
		Uploader:      d.Uploader,
		Store:         store,
		Ledger:        ledger,
		ArchivesModel: archivesModel,
		Finalizer:     fin,
	}

	// 只创建 Manager，任务在 main 中通过 SetupCronJobs 注册，避免循环导入
	svcCtx.CronManager = crontab.NewManager(crontab.ManagerConfig{
		Redis:                 d.Redis,
		EnableDistributedLock: c.Crontab.EnableDistributedLock,
		Registerer:            d.Registerer,
	})
	return svcCtx
}

// StartCronManager 启动定时任务
func (s *ServiceContext) StartCronManager() error {
	return s.CronManager.Start()
}

// Stop 优雅退出
func (s *ServiceContext) Stop() {
	s.CronManager.Stop()
}

// finalizeTimeout 优化超时之外再留出上传与入库时间
func finalizeTimeout(c config.Config) time.Duration {
	if c.Optimizer.Timeout <= 0 {
		return 0
	}
	return 2*c.Optimizer.Timeout + time.Minute
}

func registerSessionGauge(reg prometheus.Registerer, store *uploadcore.Store) {
	if reg == nil {
		return
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "archive",
		Subsystem: "upload",
		Name:      "sessions",
		Help:      "Upload sessions currently held in memory.",
	}, func() float64 {
		return float64(store.Len())
	})
	if err := reg.Register(gauge); err != nil {
		logx.Errorf("注册会话数指标失败: %v", err)
	}
}
