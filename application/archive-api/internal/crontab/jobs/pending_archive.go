package jobs

import (
	"context"
	"time"

	"github.com/yanshicheng/archive-nova/application/archive-api/internal/crontab"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
)

const PendingArchiveJobName = "pending-archive-repair"

// PendingArchiveJob 补做长时间停留在 processing 的文档优化
// 进程在后台优化完成前退出时会留下此类记录
type PendingArchiveJob struct {
	*BaseJob
	now func() time.Time
}

func NewPendingArchiveJob(svcCtx *svc.ServiceContext) *PendingArchiveJob {
	spec := svcCtx.Config.Crontab.PendingSpec
	if spec == "" {
		spec = "0 */5 * * * *"
	}
	return &PendingArchiveJob{
		BaseJob: NewBaseJob(svcCtx, PendingArchiveJobName, spec,
			crontab.WithTimeout(30*time.Minute),
			crontab.WithRetry(1, 10*time.Second),
			crontab.WithAllowConcurrent(false),
		),
		now: time.Now,
	}
}

func (j *PendingArchiveJob) Execute(ctx context.Context) error {
	age := j.svcCtx.Config.Crontab.PendingAge
	if age <= 0 {
		age = 10 * time.Minute
	}

	list, err := j.svcCtx.ArchivesModel.ListPending(ctx, j.now().Add(-age), j.svcCtx.Config.Crontab.PendingBatch)
	if err != nil {
		j.Errorf("查询待优化记录失败: %v", err)
		return err
	}
	if len(list) == 0 {
		return nil
	}

	var repaired int
	for _, record := range list {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.svcCtx.Finalizer.OptimizeRecord(ctx, record.Id, record.FileId, nil); err != nil {
			j.Errorf("补做文档优化失败: recordID=%d, file=%s, error=%v", record.Id, record.FileId, err)
			continue
		}
		repaired++
	}
	j.Infof("待优化记录处理完成: 成功 %d/%d", repaired, len(list))
	return nil
}
