package archive

import (
	"context"

	"github.com/yanshicheng/archive-nova/application/archive-api/internal/model"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetFilesLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 归档列表，按上传时间倒序
func NewGetFilesLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetFilesLogic {
	return &GetFilesLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetFilesLogic) GetFiles(req *types.GetFilesRequest) (resp *types.GetFilesResponse, err error) {
	list, total, err := l.svcCtx.ArchivesModel.ListRecent(l.ctx, req.Page, req.PageSize)
	if err != nil {
		l.Errorf("查询归档列表失败: %v", err)
		return nil, errorx.New(errorx.PersistenceErr, "查询归档列表失败")
	}

	items := make([]types.ArchiveItem, 0, len(list))
	for _, a := range list {
		items = append(items, l.toItem(a))
	}
	return &types.GetFilesResponse{Success: true, Items: items, Total: total}, nil
}

func (l *GetFilesLogic) toItem(a *model.Archives) types.ArchiveItem {
	item := types.ArchiveItem{
		Id:         a.Id,
		Title:      a.Title,
		Author:     a.Author,
		Year:       a.Year,
		Topic:      a.Topic,
		Keywords:   a.Keywords,
		Summary:    a.Summary,
		FileId:     a.FileId,
		FileUrl:    l.svcCtx.Uploader.URL(a.FileId),
		UploadDate: a.UploadDate.Unix(),
		Downloads:  a.Downloads,
		Status:     a.Status,
	}
	if a.ThumbnailId.Valid && a.ThumbnailId.String != "" {
		item.ThumbnailId = a.ThumbnailId.String
		item.ThumbnailUrl = l.svcCtx.Uploader.URL(a.ThumbnailId.String)
	}
	return item
}
