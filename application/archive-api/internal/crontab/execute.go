package crontab

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// execute 加锁、超时、重试、panic 恢复
func (m *Manager) execute(ctx context.Context, e *entry) *JobResult {
	job := e.job
	name := job.Name()
	logger := logx.WithContext(ctx)
	result := &JobResult{JobName: name, StartTime: time.Now(), NodeID: m.nodeID}

	e.setStatus(JobStatusRunning)

	if !job.AllowConcurrent() {
		ttl := time.Duration(float64(job.Timeout()) * m.ttlMul)
		acquired, release, err := m.locker.TryLock(ctx, name, ttl)
		if err != nil {
			logger.Errorf("[Crontab] 获取锁失败, job=%s, error=%v", name, err)
			return m.finish(e, result, fmt.Errorf("获取分布式锁失败: %w", err))
		}
		if !acquired {
			logger.Infof("[Crontab] 任务跳过(其他节点执行中), job=%s, nodeID=%s", name, m.nodeID)
			result.Skipped = true
			e.setStatus(JobStatusSkipped)
			m.metrics.observe(name, "skipped", 0)
			return result
		}
		defer release()
	}

	execCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= job.RetryCount(); attempt++ {
		if attempt > 0 {
			select {
			case <-execCtx.Done():
				return m.finish(e, result, lastErr)
			case <-time.After(job.RetryDelay()):
			}
		}
		result.Retries = attempt
		if lastErr = safeExecute(execCtx, job); lastErr == nil {
			break
		}
		logger.Errorf("[Crontab] 任务执行失败, job=%s, attempt=%d/%d, error=%v",
			name, attempt, job.RetryCount(), lastErr)
	}
	return m.finish(e, result, lastErr)
}

func (m *Manager) finish(e *entry, result *JobResult, err error) *JobResult {
	result.Duration = time.Since(result.StartTime)
	e.mu.Lock()
	e.lastRun = result.StartTime
	if err != nil {
		result.Error = err.Error()
		e.lastStatus = JobStatusFailed
		e.failCount++
	} else {
		result.Success = true
		e.lastStatus = JobStatusSuccess
		e.runCount++
	}
	e.mu.Unlock()

	if err != nil {
		logx.Errorf("[Crontab] 任务最终失败, job=%s, duration=%v, retries=%d, error=%v",
			result.JobName, result.Duration, result.Retries, err)
		m.metrics.observe(result.JobName, "failure", result.Duration)
	} else {
		logx.Infof("[Crontab] 任务执行成功, job=%s, duration=%v, nodeID=%s",
			result.JobName, result.Duration, m.nodeID)
		m.metrics.observe(result.JobName, "success", result.Duration)
	}
	return result
}

func safeExecute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
			logx.WithContext(ctx).Errorf("[Crontab] 任务 panic, job=%s, panic=%v\nstack:\n%s",
				job.Name(), r, debug.Stack())
		}
	}()

	if setter, ok := job.(interface{ SetContext(context.Context) }); ok {
		setter.SetContext(ctx)
	}
	return job.Execute(ctx)
}

func (e *entry) setStatus(s JobStatus) {
	e.mu.Lock()
	e.lastStatus = s
	if s != JobStatusRunning {
		e.lastRun = time.Now()
	}
	e.mu.Unlock()
}
