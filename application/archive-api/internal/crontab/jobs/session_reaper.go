package jobs

import (
	"context"
	"time"

	"github.com/yanshicheng/archive-nova/application/archive-api/internal/crontab"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/common/vars"
)

const SessionReaperJobName = "upload-session-reaper"

// SessionReaperJob 回收长时间无活动的上传会话
// 会话只存在于本进程内存，每个节点都需要执行
type SessionReaperJob struct {
	*BaseJob
	now func() time.Time
}

func NewSessionReaperJob(svcCtx *svc.ServiceContext) *SessionReaperJob {
	spec := svcCtx.Config.Upload.ReapSpec
	if spec == "" {
		spec = vars.DefaultReapSpec
	}
	return &SessionReaperJob{
		BaseJob: NewBaseJob(svcCtx, SessionReaperJobName, spec,
			crontab.WithTimeout(time.Minute),
			crontab.WithAllowConcurrent(true),
		),
		now: time.Now,
	}
}

func (j *SessionReaperJob) Execute(ctx context.Context) error {
	timeout := j.svcCtx.Config.Upload.SessionTimeout
	if timeout <= 0 {
		timeout = vars.DefaultSessionTimeout
	}

	now := j.now()
	expired := j.svcCtx.Store.Expire(now, timeout)
	for _, s := range expired {
		// TODO: 删除过期会话遗留的远端占位对象，需先确认该对象未被其他会话或记录引用
		j.Infof("回收过期会话: sessionID=%s, status=%s, received=%d/%d, idle=%v, placeholder=%s",
			s.SessionID, s.Status, s.ReceivedCount(), s.TotalChunks, now.Sub(s.LastActivity), s.RemoteObjectID)
	}
	if len(expired) > 0 {
		j.Infof("本次回收会话 %d 个，剩余 %d 个", len(expired), j.svcCtx.Store.Len())
	}
	return nil
}
