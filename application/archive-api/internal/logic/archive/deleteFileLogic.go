package archive

import (
	"context"
	"errors"

	"github.com/yanshicheng/archive-nova/application/archive-api/internal/model"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	"github.com/yanshicheng/archive-nova/pkg/storage"

	"github.com/zeromicro/go-zero/core/logx"
)

type DeleteFileLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 删除归档：先删远端文档与缩略图，再删记录
func NewDeleteFileLogic(ctx context.Context, svcCtx *svc.ServiceContext) *DeleteFileLogic {
	return &DeleteFileLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *DeleteFileLogic) DeleteFile(req *types.DeleteFileRequest) (resp *types.DeleteFileResponse, err error) {
	record, err := l.svcCtx.ArchivesModel.FindOne(l.ctx, req.Id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, errorx.New(errorx.NotFound, "文件不存在")
	}
	if err != nil {
		l.Errorf("查询归档失败: id=%d, error=%v", req.Id, err)
		return nil, errorx.New(errorx.PersistenceErr, "查询归档失败")
	}

	objects := []string{record.FileId}
	if record.ThumbnailId.Valid && record.ThumbnailId.String != "" {
		objects = append(objects, record.ThumbnailId.String)
	}
	for _, objectID := range objects {
		// 远端已不存在时继续删除记录
		if err := l.svcCtx.Uploader.Delete(l.ctx, objectID); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			l.Errorf("删除远端对象失败: id=%d, object=%s, error=%v", req.Id, objectID, err)
			return nil, errorx.New(errorx.RemoteStoreErr, "删除远端文件失败")
		}
	}

	if err := l.svcCtx.ArchivesModel.Delete(l.ctx, req.Id); err != nil {
		l.Errorf("删除归档记录失败: id=%d, error=%v", req.Id, err)
		return nil, errorx.New(errorx.PersistenceErr, "删除归档记录失败")
	}

	l.Infof("归档已删除: id=%d, file=%s", req.Id, record.FileId)
	return &types.DeleteFileResponse{Success: true, Message: "文件删除成功"}, nil
}
