package jobs

import (
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/crontab"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/zeromicro/go-zero/core/logx"
)

// SetupCronJobs 注册所有定时任务，返回成功数量
func SetupCronJobs(svcCtx *svc.ServiceContext, manager *crontab.Manager) int {
	jobs := []crontab.Job{
		// 上传会话回收
		NewSessionReaperJob(svcCtx),

		// processing 记录补偿
		NewPendingArchiveJob(svcCtx),
	}

	count := 0
	for _, job := range jobs {
		if err := manager.RegisterJob(job); err != nil {
			logx.Errorf("[Crontab] 注册任务失败, job=%s, error=%v", job.Name(), err)
			continue
		}
		count++
	}
	return count
}
