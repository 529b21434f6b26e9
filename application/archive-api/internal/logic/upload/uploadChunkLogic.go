package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/common/uploadcore"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/finalizer"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/optimizer"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	"github.com/yanshicheng/archive-nova/pkg/storage"

	"github.com/zeromicro/go-zero/core/logx"
)

const chunkField = "chunk"

type UploadChunkLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
	r      *http.Request
}

// 上传分片
func NewUploadChunkLogic(ctx context.Context, svcCtx *svc.ServiceContext, r *http.Request) *UploadChunkLogic {
	return &UploadChunkLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
		r:      r,
	}
}

func (l *UploadChunkLogic) UploadChunk(req *types.UploadChunkRequest) (resp *types.UploadChunkResponse, err error) {
	// 1. 已完成的会话直接返回相同结果
	if resp, ok := l.completed(req.SessionId); ok {
		return resp, nil
	}

	// 2. 校验分片参数
	if req.TotalChunks > l.maxTotalChunks() {
		return nil, errorx.New(errorx.ChunkMismatch, fmt.Sprintf("分片总数超过上限: %d", l.maxTotalChunks()))
	}
	if req.ChunkIndex >= req.TotalChunks {
		return nil, errorx.New(errorx.InvalidChunkIndex,
			fmt.Sprintf("分片下标越界: index=%d, total=%d", req.ChunkIndex, req.TotalChunks))
	}

	data, err := l.readChunk()
	if err != nil {
		return nil, err
	}

	// 3. 第一个分片创建会话和远端占位对象
	if req.ChunkIndex == 0 && !l.svcCtx.Store.Exists(req.SessionId) {
		if err := l.startSession(req); err != nil {
			return nil, err
		}
	}

	session, err := l.svcCtx.Store.Get(req.SessionId)
	if err != nil {
		return l.fail(req.SessionId, err)
	}
	if session.TotalChunks != req.TotalChunks {
		return nil, errorx.New(errorx.ChunkMismatch,
			fmt.Sprintf("分片总数与会话不一致: session=%d, request=%d", session.TotalChunks, req.TotalChunks))
	}

	// 4. 最后一个分片携带编目信息，无论哪个分片最终凑齐都能使用
	if req.ChunkIndex == req.TotalChunks-1 {
		if err := l.svcCtx.Store.AttachCatalog(req.SessionId, catalogOf(req)); err != nil {
			return l.fail(req.SessionId, err)
		}
	}

	// 5. 写入分片
	result, err := l.svcCtx.Store.PutChunk(req.SessionId, req.ChunkIndex, data)
	if err != nil {
		return l.fail(req.SessionId, err)
	}
	if !result.Complete {
		msg := "分片上传成功"
		if result.Duplicate {
			msg = "分片已存在"
		}
		l.Infof("分片已接收: sessionID=%s, index=%d, progress=%d/%d, duplicate=%v",
			req.SessionId, req.ChunkIndex, result.Received, result.Total, result.Duplicate)
		return &types.UploadChunkResponse{
			Success:  true,
			Progress: result.Progress(),
			Message:  msg,
		}, nil
	}

	// 6. 收齐后同步归档
	outcome, err := l.svcCtx.Finalizer.Finalize(l.ctx, req.SessionId)
	if errors.Is(err, uploadcore.ErrFinalizeInProgress) {
		return &types.UploadChunkResponse{Success: true, Progress: 100, Message: "文件处理中"}, nil
	}
	if err != nil {
		return l.fail(req.SessionId, err)
	}

	return &types.UploadChunkResponse{
		Success:  true,
		Progress: 100,
		FileId:   outcome.FileID,
		FileUrl:  l.svcCtx.Uploader.URL(outcome.FileID),
		RecordId: outcome.RecordID,
		Message:  "文件上传成功",
	}, nil
}

// startSession 先创建占位对象，再登记会话；并发创建时删除多余的占位对象
func (l *UploadChunkLogic) startSession(req *types.UploadChunkRequest) error {
	uniqueName := uuid.NewString() + extOf(req.FileName)
	objectID := storage.ObjectKey(storage.DocumentPrefix, uniqueName)

	fileID, err := l.svcCtx.Uploader.Create(l.ctx, objectID, optimizer.MimePDF)
	if err != nil {
		l.Errorf("创建远端占位对象失败: sessionID=%s, error=%v", req.SessionId, err)
		return errorx.New(errorx.RemoteStoreErr, "创建远端文件失败")
	}

	_, created, err := l.svcCtx.Store.GetOrCreate(uploadcore.SessionSpec{
		SessionID:      req.SessionId,
		TotalChunks:    req.TotalChunks,
		FileName:       req.FileName,
		UniqueFileName: uniqueName,
		RemoteObjectID: fileID,
	})
	if err != nil || !created {
		if delErr := l.svcCtx.Uploader.Delete(l.ctx, fileID); delErr != nil {
			l.Errorf("删除多余占位对象失败: file=%s, error=%v", fileID, delErr)
		}
	}
	if err != nil {
		_, mapped := l.fail(req.SessionId, err)
		return mapped
	}
	return nil
}

func (l *UploadChunkLogic) readChunk() ([]byte, error) {
	file, header, err := l.r.FormFile(chunkField)
	if err != nil {
		l.Errorf("获取分片内容失败: %v", err)
		return nil, errorx.New(errorx.ParamErr, "缺少分片内容")
	}
	defer file.Close()

	limit := l.maxChunkBytes()
	if header.Size > limit {
		return nil, errorx.New(errorx.ChunkTooLarge, fmt.Sprintf("分片大小超过限制: %d > %d", header.Size, limit))
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		l.Errorf("读取分片失败: %v", err)
		return nil, errorx.New(errorx.ParamErr, "读取分片失败")
	}
	if int64(len(data)) > limit {
		return nil, errorx.New(errorx.ChunkTooLarge, fmt.Sprintf("分片大小超过限制: %d", limit))
	}
	return data, nil
}

// completed 完成记录命中时返回终态响应
func (l *UploadChunkLogic) completed(sessionID string) (*types.UploadChunkResponse, bool) {
	c, ok, err := l.svcCtx.Ledger.Get(l.ctx, sessionID)
	if err != nil {
		l.Errorf("查询完成记录失败: sessionID=%s, error=%v", sessionID, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &types.UploadChunkResponse{
		Success:  true,
		Progress: 100,
		FileId:   c.FileID,
		FileUrl:  l.svcCtx.Uploader.URL(c.FileID),
		RecordId: c.RecordID,
		Message:  "文件已上传",
	}, true
}

// fail 将领域错误转换为错误码
func (l *UploadChunkLogic) fail(sessionID string, err error) (*types.UploadChunkResponse, error) {
	var fe *finalizer.Error
	switch {
	case errors.Is(err, uploadcore.ErrSessionNotFound):
		// 并发的最后一个分片可能刚好完成归档
		if resp, ok := l.completed(sessionID); ok {
			return resp, nil
		}
		return nil, errorx.New(errorx.SessionNotFound, "上传会话不存在或已过期，请从第一个分片重新上传")
	case errors.Is(err, uploadcore.ErrInvalidChunkIndex):
		return nil, errorx.New(errorx.InvalidChunkIndex, err.Error())
	case errors.Is(err, uploadcore.ErrTotalChunksMismatch), errors.Is(err, uploadcore.ErrInvalidTotalChunks):
		return nil, errorx.New(errorx.ChunkMismatch, err.Error())
	case errors.As(err, &fe):
		l.Errorf("归档失败: sessionID=%s, stage=%s, error=%v", sessionID, fe.Stage, fe.Err)
		switch fe.Stage {
		case finalizer.StageRemote:
			return nil, errorx.New(errorx.RemoteStoreErr, "上传远端存储失败")
		case finalizer.StagePersist:
			return nil, errorx.New(errorx.PersistenceErr, "保存文件信息失败")
		default:
			return nil, errorx.New(errorx.FinalizationErr, "文件合并失败")
		}
	default:
		l.Errorf("处理分片失败: sessionID=%s, error=%v", sessionID, err)
		return nil, errorx.Msg("处理分片失败")
	}
}

func (l *UploadChunkLogic) maxChunkBytes() int64 {
	return l.svcCtx.Config.Upload.ChunkLimit()
}

func (l *UploadChunkLogic) maxTotalChunks() int {
	return l.svcCtx.Config.Upload.TotalChunksLimit()
}

func catalogOf(req *types.UploadChunkRequest) uploadcore.CatalogMeta {
	return uploadcore.CatalogMeta{
		Title:    strings.TrimSpace(req.Title),
		Author:   strings.TrimSpace(req.Author),
		Year:     strings.TrimSpace(req.Year),
		Topic:    strings.TrimSpace(req.Topic),
		Keywords: strings.TrimSpace(req.Keywords),
		Summary:  strings.TrimSpace(req.Summary),
	}
}

func extOf(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		return ".pdf"
	}
	return ext
}
