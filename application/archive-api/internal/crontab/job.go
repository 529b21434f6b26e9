package crontab

import (
	"context"
	"time"
)

// Job 定时任务
type Job interface {
	// Name 任务名，同时用作分布式锁 key
	Name() string

	// Spec 秒级 cron 表达式
	Spec() string

	Execute(ctx context.Context) error

	// Timeout 超时后 ctx 被取消
	Timeout() time.Duration

	// RetryCount 失败重试次数，0 表示不重试
	RetryCount() int

	RetryDelay() time.Duration

	// AllowConcurrent 为 true 时不加分布式锁，每个节点都会执行
	AllowConcurrent() bool
}

// JobResult 单次执行结果
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped"`
	Error     string        `json:"error,omitempty"`
	NodeID    string        `json:"node_id"`
	Retries   int           `json:"retries"`
}

// JobStatus 任务状态
type JobStatus int

const (
	JobStatusIdle JobStatus = iota
	JobStatusRunning
	JobStatusSuccess
	JobStatusFailed
	JobStatusSkipped
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusIdle:
		return "idle"
	case JobStatusRunning:
		return "running"
	case JobStatusSuccess:
		return "success"
	case JobStatusFailed:
		return "failed"
	case JobStatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// JobStatusSummary 任务状态摘要
type JobStatusSummary struct {
	Name       string    `json:"name"`
	Spec       string    `json:"spec"`
	LastRun    time.Time `json:"last_run"`
	LastStatus string    `json:"last_status"`
	RunCount   int64     `json:"run_count"`
	FailCount  int64     `json:"fail_count"`
}

// Options 任务公共参数，供具体任务嵌入
type Options struct {
	name            string
	spec            string
	timeout         time.Duration
	retryCount      int
	retryDelay      time.Duration
	allowConcurrent bool
}

type Option func(*Options)

func NewOptions(name, spec string, opts ...Option) Options {
	o := Options{
		name:       name,
		spec:       spec,
		timeout:    5 * time.Minute,
		retryDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.timeout = timeout
	}
}

func WithRetry(count int, delay time.Duration) Option {
	return func(o *Options) {
		o.retryCount = count
		o.retryDelay = delay
	}
}

func WithAllowConcurrent(allow bool) Option {
	return func(o *Options) {
		o.allowConcurrent = allow
	}
}

func (o Options) Name() string              { return o.name }
func (o Options) Spec() string              { return o.spec }
func (o Options) Timeout() time.Duration    { return o.timeout }
func (o Options) RetryCount() int           { return o.retryCount }
func (o Options) RetryDelay() time.Duration { return o.retryDelay }
func (o Options) AllowConcurrent() bool     { return o.allowConcurrent }

// FuncJob 由函数构造的任务
type FuncJob struct {
	Options
	fn func(ctx context.Context) error
}

func NewFuncJob(fn func(ctx context.Context) error, name, spec string, opts ...Option) *FuncJob {
	return &FuncJob{Options: NewOptions(name, spec, opts...), fn: fn}
}

func (j *FuncJob) Execute(ctx context.Context) error {
	return j.fn(ctx)
}
