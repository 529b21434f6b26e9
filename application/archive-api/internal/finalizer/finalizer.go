package finalizer

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/common/uploadcore"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/model"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/optimizer"
	"github.com/yanshicheng/archive-nova/pkg/storage"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
)

const defaultTimeout = 5 * time.Minute

// DocumentOptimizer 文档优化
type DocumentOptimizer interface {
	Optimize(ctx context.Context, doc []byte) optimizer.Result
}

// Repository 编目记录持久化
type Repository interface {
	InsertOnce(ctx context.Context, data *model.Archives) (int64, bool, error)
	UpdateArtifacts(ctx context.Context, id int64, fileId, thumbnailId, status string) error
}

type Config struct {
	// DeferOptimize 为 true 时先以 processing 入库，优化在后台完成
	DeferOptimize bool
	Timeout       time.Duration
}

// Outcome 归档结果
type Outcome struct {
	SessionID   string
	RecordID    int64
	FileID      string
	ThumbnailID string
	Status      string
	Size        int
	Compressed  bool
	Existed     bool
}

type Finalizer struct {
	store     *uploadcore.Store
	uploader  storage.Uploader
	optimizer DocumentOptimizer
	repo      Repository
	ledger    uploadcore.CompletionLedger
	conf      Config
	now       func() time.Time
}

func New(store *uploadcore.Store, uploader storage.Uploader, opt DocumentOptimizer,
	repo Repository, ledger uploadcore.CompletionLedger, conf Config) *Finalizer {
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}
	return &Finalizer{
		store:     store,
		uploader:  uploader,
		optimizer: opt,
		repo:      repo,
		ledger:    ledger,
		conf:      conf,
		now:       time.Now,
	}
}

// Finalize 将收齐的会话归档为编目记录
// 失败时会话保留为 Failed，最后一个分片重投可再次触发
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) (*Outcome, error) {
	session, err := f.store.BeginFinalize(sessionID)
	if err != nil {
		return nil, err
	}

	// 客户端断开不应中断归档
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.conf.Timeout)
	defer cancel()
	logger := logx.WithContext(ctx)

	fail := func(stage Stage, err error) (*Outcome, error) {
		f.store.MarkFailed(sessionID, fmt.Sprintf("%s: %v", stage, err))
		logger.Errorf("归档失败: sessionID=%s, stage=%s, error=%v", sessionID, stage, err)
		return nil, &Error{Stage: stage, SessionID: sessionID, Err: err}
	}

	doc, err := f.store.Assemble(sessionID)
	if err != nil {
		return fail(StageAssemble, err)
	}

	fileID := session.RemoteObjectID
	if err := f.uploader.Put(ctx, fileID, doc, mimetype.Detect(doc).String()); err != nil {
		return fail(StageRemote, err)
	}
	if err := f.uploader.SetPublic(ctx, fileID); err != nil {
		return fail(StageRemote, err)
	}

	outcome := &Outcome{
		SessionID: sessionID,
		FileID:    fileID,
		Size:      len(doc),
		Status:    model.StatusProcessing,
	}
	if !f.conf.DeferOptimize {
		outcome.ThumbnailID, outcome.Compressed = f.applyArtifacts(ctx, fileID, doc)
		outcome.Status = model.StatusReady
	}

	record := newRecord(session, fileID, outcome.ThumbnailID, outcome.Status, f.now())
	id, existed, err := f.repo.InsertOnce(ctx, record)
	if err != nil {
		return fail(StagePersist, err)
	}
	outcome.RecordID, outcome.Existed = id, existed

	if f.ledger != nil {
		if err := f.ledger.Put(ctx, uploadcore.Completion{
			SessionID:   sessionID,
			FileID:      fileID,
			RecordID:    id,
			CompletedAt: f.now(),
		}); err != nil {
			logger.Errorf("写入完成记录失败: sessionID=%s, error=%v", sessionID, err)
		}
	}
	f.store.Complete(sessionID)

	logger.Infof("归档完成: sessionID=%s, recordID=%d, file=%s, size=%d, status=%s",
		sessionID, id, fileID, len(doc), outcome.Status)

	if f.conf.DeferOptimize && !existed {
		threading.GoSafe(func() {
			bg, cancel := context.WithTimeout(context.Background(), f.conf.Timeout)
			defer cancel()
			if err := f.OptimizeRecord(bg, id, fileID, doc); err != nil {
				logx.Errorf("后台优化失败: recordID=%d, error=%v", id, err)
			}
		})
	}

	return outcome, nil
}

// OptimizeRecord 对已入库的文档执行优化并更新为 ready
// doc 为空时从远端读取
func (f *Finalizer) OptimizeRecord(ctx context.Context, id int64, fileID string, doc []byte) error {
	if len(doc) == 0 {
		data, err := f.uploader.Get(ctx, fileID)
		if err != nil {
			return &Error{Stage: StageRemote, Err: err}
		}
		doc = data
	}

	thumbID, _ := f.applyArtifacts(ctx, fileID, doc)
	if err := f.repo.UpdateArtifacts(ctx, id, fileID, thumbID, model.StatusReady); err != nil {
		return &Error{Stage: StagePersist, Err: err}
	}
	logx.WithContext(ctx).Infof("文档优化完成: recordID=%d, thumbnail=%s", id, thumbID)
	return nil
}

// applyArtifacts 优化失败不影响归档，只记录日志
func (f *Finalizer) applyArtifacts(ctx context.Context, fileID string, doc []byte) (thumbID string, compressed bool) {
	logger := logx.WithContext(ctx)
	res := f.optimizer.Optimize(ctx, doc)

	if res.Compressed {
		if err := f.uploader.Put(ctx, fileID, res.Document, optimizer.MimePDF); err != nil {
			logger.Errorf("上传压缩文档失败，保留原文件: file=%s, error=%v", fileID, err)
		} else {
			compressed = true
		}
	}

	if res.Thumbnail == nil {
		return "", compressed
	}
	thumbID = ThumbnailKey(fileID)
	if err := f.uploader.Put(ctx, thumbID, res.Thumbnail, optimizer.MimePNG); err != nil {
		logger.Errorf("上传缩略图失败: file=%s, error=%v", fileID, err)
		return "", compressed
	}
	if err := f.uploader.SetPublic(ctx, thumbID); err != nil {
		logger.Errorf("公开缩略图失败: thumbnail=%s, error=%v", thumbID, err)
	}
	return thumbID, compressed
}

// ThumbnailKey documents/abc.pdf -> thumbnails/abc_thumbnail.png
func ThumbnailKey(fileID string) string {
	base := path.Base(fileID)
	base = strings.TrimSuffix(base, path.Ext(base))
	return storage.ObjectKey(storage.ThumbnailPrefix, base+"_thumbnail.png")
}

func newRecord(session *uploadcore.UploadSession, fileID, thumbID, status string, now time.Time) *model.Archives {
	meta := uploadcore.CatalogMeta{}
	if session.Catalog != nil {
		meta = *session.Catalog
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(session.OriginalFileName, path.Ext(session.OriginalFileName))
	}
	return &model.Archives{
		Title:       meta.Title,
		Author:      meta.Author,
		Year:        meta.Year,
		Topic:       meta.Topic,
		Keywords:    meta.Keywords,
		Summary:     meta.Summary,
		FileId:      fileID,
		ThumbnailId: sql.NullString{String: thumbID, Valid: thumbID != ""},
		UploadDate:  now,
		Status:      status,
	}
}
