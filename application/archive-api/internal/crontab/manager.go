package crontab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

var (
	ErrJobNotFound    = errors.New("crontab: job not found")
	ErrAlreadyStarted = errors.New("crontab: manager already started")
)

// ManagerConfig 管理器配置
type ManagerConfig struct {
	// NodeID 为空时使用 hostname-pid
	NodeID string

	// Redis 为空时退化为单机锁
	Redis                 *redis.Redis
	EnableDistributedLock bool

	// LockTTLMultiplier 锁 TTL = 任务超时 * 倍数，默认 1.5
	LockTTLMultiplier float64

	Location   *time.Location
	Registerer prometheus.Registerer
}

type entry struct {
	job     Job
	entryID cron.EntryID

	mu         sync.Mutex
	lastRun    time.Time
	lastStatus JobStatus
	runCount   int64
	failCount  int64
}

// Manager 定时任务管理器
type Manager struct {
	cron    *cron.Cron
	locker  Locker
	nodeID  string
	ttlMul  float64
	metrics *jobMetrics

	mu      sync.RWMutex
	entries map[string]*entry
	started bool
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.NodeID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	if cfg.LockTTLMultiplier <= 0 {
		cfg.LockTTLMultiplier = 1.5
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	var locker Locker
	if cfg.EnableDistributedLock && cfg.Redis != nil {
		locker = NewRedisLocker(cfg.Redis, cfg.NodeID)
	} else {
		locker = NewNoopLocker(cfg.NodeID)
	}

	return &Manager{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		locker:  locker,
		nodeID:  cfg.NodeID,
		ttlMul:  cfg.LockTTLMultiplier,
		metrics: newJobMetrics(cfg.Registerer),
		entries: make(map[string]*entry),
	}
}

// RegisterJob 注册任务，启动前后均可调用
func (m *Manager) RegisterJob(job Job) error {
	if job == nil || job.Name() == "" || job.Spec() == "" {
		return errors.New("crontab: job name and spec are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[job.Name()]; ok {
		return fmt.Errorf("crontab: job %q already registered", job.Name())
	}

	e := &entry{job: job}
	id, err := m.cron.AddFunc(job.Spec(), func() {
		m.execute(context.Background(), e)
	})
	if err != nil {
		return fmt.Errorf("crontab: add job %q: %w", job.Name(), err)
	}
	e.entryID = id
	m.entries[job.Name()] = e

	logx.Infof("[Crontab] 注册任务成功, job=%s, spec=%s, timeout=%v", job.Name(), job.Spec(), job.Timeout())
	return nil
}

func (m *Manager) RemoveJob(name string) error {
	m.mu.Lock()
	e, ok := m.entries[name]
	delete(m.entries, name)
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	m.cron.Remove(e.entryID)
	return nil
}

func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.cron.Start()
	m.started = true
	logx.Infof("[Crontab] 定时任务管理器启动成功, 任务数=%d, nodeID=%s", len(m.entries), m.nodeID)
	return nil
}

// Stop 停止调度并等待执行中的任务结束
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	<-m.cron.Stop().Done()
	logx.Info("[Crontab] 定时任务管理器已停止")
}

// RunNow 立即同步执行一次，仍遵循分布式锁
func (m *Manager) RunNow(ctx context.Context, name string) (*JobResult, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.execute(ctx, e), nil
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

func (m *Manager) NodeID() string {
	return m.nodeID
}

func (m *Manager) JobCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Status 按任务名排序返回状态
func (m *Manager) Status() []JobStatusSummary {
	m.mu.RLock()
	list := make([]JobStatusSummary, 0, len(m.entries))
	for name, e := range m.entries {
		e.mu.Lock()
		list = append(list, JobStatusSummary{
			Name:       name,
			Spec:       e.job.Spec(),
			LastRun:    e.lastRun,
			LastStatus: e.lastStatus.String(),
			RunCount:   e.runCount,
			FailCount:  e.failCount,
		})
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
