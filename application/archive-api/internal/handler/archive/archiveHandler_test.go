package archive

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/model"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc/svctest"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	errtypes "github.com/yanshicheng/archive-nova/common/handler/errorx/types"
	"github.com/zeromicro/go-zero/rest/httpx"
)

func init() {
	httpx.SetErrorHandler(errorx.ErrHandler)
}

func seed(t *testing.T, env *svctest.Env, name string, at time.Time, withThumb bool) int64 {
	t.Helper()
	ctx := context.Background()
	fileID := "documents/" + name + ".pdf"
	require.NoError(t, env.Uploader.Put(ctx, fileID, []byte("%PDF-1.4 "+name), "application/pdf"))
	record := &model.Archives{
		Title:      name,
		FileId:     fileID,
		UploadDate: at,
		Status:     model.StatusReady,
	}
	if withThumb {
		thumb := "thumbnails/" + name + "_thumbnail.png"
		require.NoError(t, env.Uploader.Put(ctx, thumb, []byte("png"), "image/png"))
		record.ThumbnailId = sql.NullString{String: thumb, Valid: true}
	}
	id, _, err := env.Svc.ArchivesModel.InsertOnce(ctx, record)
	require.NoError(t, err)
	return id
}

func TestGetFilesNewestFirst(t *testing.T) {
	env := svctest.New(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seed(t, env, "first", base, true)
	seed(t, env, "third", base.Add(2*time.Hour), false)
	seed(t, env, "second", base.Add(time.Hour), true)

	w := httptest.NewRecorder()
	GetFilesHandler(env.Svc)(w, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.GetFilesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.EqualValues(t, 3, resp.Total)
	require.Len(t, resp.Items, 3)
	assert.Equal(t, []string{"third", "second", "first"},
		[]string{resp.Items[0].Title, resp.Items[1].Title, resp.Items[2].Title})

	assert.Equal(t, "http://files.test/documents/third.pdf", resp.Items[0].FileUrl)
	assert.Empty(t, resp.Items[0].ThumbnailUrl)
	assert.Equal(t, "http://files.test/thumbnails/second_thumbnail.png", resp.Items[1].ThumbnailUrl)
	assert.Equal(t, base.Add(time.Hour).Unix(), resp.Items[1].UploadDate)
}

func TestGetFilesPaging(t *testing.T) {
	env := svctest.New(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		seed(t, env, name, base.Add(time.Duration(i)*time.Minute), false)
	}

	w := httptest.NewRecorder()
	GetFilesHandler(env.Svc)(w, httptest.NewRequest(http.MethodGet, "/api/files?page=2&pageSize=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.GetFilesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "a", resp.Items[0].Title)

	w = httptest.NewRecorder()
	GetFilesHandler(env.Svc)(w, httptest.NewRequest(http.MethodGet, "/api/files?pageSize=500", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFilesEmpty(t *testing.T) {
	env := svctest.New(t)
	w := httptest.NewRecorder()
	GetFilesHandler(env.Svc)(w, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"items":[],"total":0}`, w.Body.String())
}

func deleteReq(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/delete-file", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestDeleteFileRemovesObjectsAndRow(t *testing.T) {
	env := svctest.New(t)
	id := seed(t, env, "gone", time.Now(), true)
	keep := seed(t, env, "kept", time.Now(), true)
	require.Equal(t, 4, env.Uploader.Len())

	w := httptest.NewRecorder()
	DeleteFileHandler(env.Svc)(w, deleteReq(`{"id":`+jsonInt(id)+`}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.DeleteFileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	_, err := env.Svc.ArchivesModel.FindOne(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = env.Svc.ArchivesModel.FindOne(context.Background(), keep)
	assert.NoError(t, err)
	assert.Equal(t, 2, env.Uploader.Len())
}

func TestDeleteFileNotFound(t *testing.T) {
	env := svctest.New(t)

	w := httptest.NewRecorder()
	DeleteFileHandler(env.Svc)(w, deleteReq(`{"id":999}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp errtypes.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.EqualValues(t, errorx.NotFound, resp.Code)
}

func TestDeleteFileValidation(t *testing.T) {
	env := svctest.New(t)

	w := httptest.NewRecorder()
	DeleteFileHandler(env.Svc)(w, deleteReq(`{"id":0}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	DeleteFileHandler(env.Svc)(w, deleteReq(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
