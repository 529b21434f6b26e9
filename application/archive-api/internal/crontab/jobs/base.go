package jobs

import (
	"context"

	"github.com/yanshicheng/archive-nova/application/archive-api/internal/crontab"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/zeromicro/go-zero/core/logx"
)

// BaseJob 任务基类
type BaseJob struct {
	crontab.Options
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewBaseJob(svcCtx *svc.ServiceContext, name, spec string, opts ...crontab.Option) *BaseJob {
	return &BaseJob{
		Options: crontab.NewOptions(name, spec, opts...),
		Logger:  logx.WithContext(context.Background()),
		ctx:     context.Background(),
		svcCtx:  svcCtx,
	}
}

// SetContext 由调度器在执行前调用
func (j *BaseJob) SetContext(ctx context.Context) {
	j.ctx = ctx
	j.Logger = logx.WithContext(ctx)
}

func (j *BaseJob) Ctx() context.Context {
	return j.ctx
}
