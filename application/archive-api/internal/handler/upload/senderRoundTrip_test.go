package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc/svctest"
	"github.com/yanshicheng/archive-nova/pkg/chunksender"
)

func newSender(t *testing.T, endpoint string, chunk int64) *chunksender.Sender {
	t.Helper()
	s, err := chunksender.New(chunksender.Options{
		Endpoint:        endpoint,
		ChunkSize:       chunk,
		MaxRestarts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	return s
}

func TestSenderRoundTrip(t *testing.T) {
	env := svctest.New(t)
	srv := httptest.NewServer(UploadChunkHandler(env.Svc))
	defer srv.Close()

	doc := makeDocument(300 << 10)
	res, err := newSender(t, srv.URL+"/api/upload-chunk", 64<<10).
		Send(context.Background(), "ledger.pdf", doc, chunksender.Catalog{Author: "Archive Office"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Chunks)
	assert.Equal(t, "http://files.test/"+res.FileID, res.FileURL)

	stored, err := env.Uploader.Get(context.Background(), res.FileID)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	record, err := env.Svc.ArchivesModel.FindOne(context.Background(), res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "ledger", record.Title)
	assert.Equal(t, "Archive Office", record.Author)
}

func TestSenderRestartsAfterSessionExpiry(t *testing.T) {
	env := svctest.New(t)
	handler := UploadChunkHandler(env.Svc)

	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		if r.FormValue("chunkIndex") == "2" {
			// 模拟会话在上传途中被回收
			once.Do(func() { env.Svc.Store.Remove(r.FormValue("sessionId")) })
		}
		handler(w, r)
	}))
	defer srv.Close()

	doc := makeDocument(200 << 10)
	res, err := newSender(t, srv.URL+"/api/upload-chunk", 64<<10).
		Send(context.Background(), "ledger.pdf", doc, chunksender.Catalog{Title: "Ledger"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restarts)

	stored, err := env.Uploader.Get(context.Background(), res.FileID)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)
	assert.Equal(t, "Ledger", mustTitle(t, env, res.RecordID))
}
