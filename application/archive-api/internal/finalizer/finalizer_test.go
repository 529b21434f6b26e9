package finalizer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/common/uploadcore"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/model"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/optimizer"
	"github.com/yanshicheng/archive-nova/pkg/storage"
)

type memoryRepo struct {
	mu        sync.Mutex
	records   map[int64]*model.Archives
	byFile    map[string]int64
	nextID    int64
	insertErr error
	updated   chan int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records: map[int64]*model.Archives{},
		byFile:  map[string]int64{},
		updated: make(chan int64, 8),
	}
}

func (r *memoryRepo) InsertOnce(_ context.Context, data *model.Archives) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, false, r.insertErr
	}
	if id, ok := r.byFile[data.FileId]; ok {
		return id, true, nil
	}
	r.nextID++
	cp := *data
	cp.Id = r.nextID
	r.records[cp.Id] = &cp
	r.byFile[cp.FileId] = cp.Id
	return cp.Id, false, nil
}

func (r *memoryRepo) UpdateArtifacts(_ context.Context, id int64, fileId, thumbnailId, status string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.FileId = fileId
		rec.ThumbnailId.String, rec.ThumbnailId.Valid = thumbnailId, thumbnailId != ""
		rec.Status = status
	}
	r.mu.Unlock()
	if !ok {
		return model.ErrNotFound
	}
	r.updated <- id
	return nil
}

func (r *memoryRepo) get(id int64) model.Archives {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

type stubStrategy struct {
	renderErr error
}

func (stubStrategy) Name() string { return "stub" }

func (stubStrategy) Compress(context.Context, []byte) ([]byte, error) {
	return nil, optimizer.ErrUnsupported
}

func (s stubStrategy) Render(context.Context, []byte) ([]byte, error) {
	if s.renderErr != nil {
		return nil, s.renderErr
	}
	img := image.NewNRGBA(image.Rect(0, 0, 40, 56))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type fixture struct {
	store    *uploadcore.Store
	uploader *storage.MemoryUploader
	repo     *memoryRepo
	ledger   *uploadcore.MemoryLedger
	fin      *Finalizer
}

func newFixture(t *testing.T, strategy optimizer.Strategy, conf Config) *fixture {
	t.Helper()
	f := &fixture{
		store:    uploadcore.NewStore(uploadcore.NewMemorySpool()),
		uploader: storage.NewMemoryUploader(""),
		repo:     newMemoryRepo(),
		ledger:   uploadcore.NewMemoryLedger(16, time.Hour),
	}
	opt := optimizer.New(strategy, 200, 280, color.White, time.Second)
	f.fin = New(f.store, f.uploader, opt, f.repo, f.ledger, conf)
	return f
}

var document = append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0123456789"), 1000)...)

// receive 模拟接收端：创建占位对象和会话，写入全部分片
func (f *fixture) receive(t *testing.T, sessionID string, doc []byte, chunkSize int) string {
	t.Helper()
	ctx := context.Background()
	fileID, err := f.uploader.Create(ctx, storage.ObjectKey(storage.DocumentPrefix, sessionID+".pdf"), optimizer.MimePDF)
	require.NoError(t, err)

	total := (len(doc) + chunkSize - 1) / chunkSize
	_, _, err = f.store.GetOrCreate(uploadcore.SessionSpec{
		SessionID:      sessionID,
		TotalChunks:    total,
		FileName:       "war-and-peace.pdf",
		UniqueFileName: sessionID + ".pdf",
		RemoteObjectID: fileID,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.AttachCatalog(sessionID, uploadcore.CatalogMeta{Title: "War and Peace", Author: "Tolstoy", Year: "1869"}))

	for i := total - 1; i >= 0; i-- {
		end := (i + 1) * chunkSize
		if end > len(doc) {
			end = len(doc)
		}
		_, err := f.store.PutChunk(sessionID, i, doc[i*chunkSize:end])
		require.NoError(t, err)
	}
	return fileID
}

func TestFinalizeSuccess(t *testing.T) {
	f := newFixture(t, stubStrategy{}, Config{})
	fileID := f.receive(t, "s1", document, 3000)

	out, err := f.fin.Finalize(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, fileID, out.FileID)
	assert.Equal(t, model.StatusReady, out.Status)
	assert.Equal(t, "thumbnails/s1_thumbnail.png", out.ThumbnailID)
	assert.Equal(t, len(document), out.Size)

	stored, err := f.uploader.Get(context.Background(), fileID)
	require.NoError(t, err)
	assert.Equal(t, document, stored)
	assert.True(t, f.uploader.IsPublic(fileID))
	assert.True(t, f.uploader.IsPublic(out.ThumbnailID))
	assert.Equal(t, optimizer.MimePNG, f.uploader.ContentType(out.ThumbnailID))

	rec := f.repo.get(out.RecordID)
	assert.Equal(t, "War and Peace", rec.Title)
	assert.Equal(t, "Tolstoy", rec.Author)
	assert.True(t, rec.ThumbnailId.Valid)

	assert.False(t, f.store.Exists("s1"))
	c, ok, err := f.ledger.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out.RecordID, c.RecordID)
}

func TestFinalizeWithoutThumbnail(t *testing.T) {
	f := newFixture(t, stubStrategy{renderErr: errors.New("renderer crashed")}, Config{})
	f.receive(t, "d", document, 4096)

	out, err := f.fin.Finalize(context.Background(), "d")
	require.NoError(t, err)
	assert.Empty(t, out.ThumbnailID)

	rec := f.repo.get(out.RecordID)
	assert.False(t, rec.ThumbnailId.Valid)
	assert.Equal(t, model.StatusReady, rec.Status)
}

func TestFinalizeRemoteFailureKeepsSession(t *testing.T) {
	f := newFixture(t, stubStrategy{}, Config{})
	f.receive(t, "r", document, 4096)
	f.uploader.PutErr = errors.New("503 slow down")

	_, err := f.fin.Finalize(context.Background(), "r")
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageRemote, fe.Stage)

	session, err := f.store.Get("r")
	require.NoError(t, err)
	assert.Equal(t, uploadcore.StatusFailed, session.Status)
	assert.NotEmpty(t, session.FailReason)

	// 故障恢复后可以再次归档
	f.uploader.PutErr = nil
	out, err := f.fin.Finalize(context.Background(), "r")
	require.NoError(t, err)
	assert.Positive(t, out.RecordID)
	assert.False(t, f.store.Exists("r"))
}

func TestFinalizePersistenceFailure(t *testing.T) {
	f := newFixture(t, stubStrategy{}, Config{})
	f.receive(t, "p", document, 4096)
	f.repo.insertErr = errors.New("connection refused")

	_, err := f.fin.Finalize(context.Background(), "p")
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StagePersist, fe.Stage)
	assert.True(t, f.store.Exists("p"))

	_, ok, _ := f.ledger.Get(context.Background(), "p")
	assert.False(t, ok)
}

func TestFinalizeIncompleteOrUnknown(t *testing.T) {
	f := newFixture(t, stubStrategy{}, Config{})

	_, err := f.fin.Finalize(context.Background(), "nope")
	assert.ErrorIs(t, err, uploadcore.ErrSessionNotFound)

	_, _, err = f.store.GetOrCreate(uploadcore.SessionSpec{SessionID: "half", TotalChunks: 2})
	require.NoError(t, err)
	_, err = f.store.PutChunk("half", 0, []byte("x"))
	require.NoError(t, err)
	_, err = f.fin.Finalize(context.Background(), "half")
	assert.ErrorIs(t, err, uploadcore.ErrIncomplete)
}

func TestFinalizeDeferredOptimization(t *testing.T) {
	f := newFixture(t, stubStrategy{}, Config{DeferOptimize: true})
	f.receive(t, "lazy", document, 4096)

	out, err := f.fin.Finalize(context.Background(), "lazy")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, out.Status)
	assert.Empty(t, out.ThumbnailID)

	select {
	case id := <-f.repo.updated:
		assert.Equal(t, out.RecordID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("deferred optimization did not finish")
	}

	rec := f.repo.get(out.RecordID)
	assert.Equal(t, model.StatusReady, rec.Status)
	assert.Equal(t, "thumbnails/lazy_thumbnail.png", rec.ThumbnailId.String)
}

func TestOptimizeRecordReadsRemote(t *testing.T) {
	f := newFixture(t, stubStrategy{}, Config{})
	ctx := context.Background()
	require.NoError(t, f.uploader.Put(ctx, "documents/x.pdf", document, optimizer.MimePDF))
	id, _, err := f.repo.InsertOnce(ctx, &model.Archives{FileId: "documents/x.pdf", Status: model.StatusProcessing})
	require.NoError(t, err)

	require.NoError(t, f.fin.OptimizeRecord(ctx, id, "documents/x.pdf", nil))
	assert.Equal(t, model.StatusReady, f.repo.get(id).Status)

	err = f.fin.OptimizeRecord(ctx, id, "documents/missing.pdf", nil)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageRemote, fe.Stage)
}

func TestThumbnailKey(t *testing.T) {
	assert.Equal(t, "thumbnails/abc_thumbnail.png", ThumbnailKey("documents/abc.pdf"))
	assert.Equal(t, "thumbnails/noext_thumbnail.png", ThumbnailKey("documents/noext"))
}
