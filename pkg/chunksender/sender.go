package chunksender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/yanshicheng/archive-nova/common/vars"
	"github.com/zeromicro/go-zero/core/jsonx"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpc"
)

const (
	DefaultChunkSize = vars.DefaultChunkSize

	// 服务端会话不存在的错误码，需要从第一个分片重新上传
	codeSessionNotFound = 40010

	maxResponseBytes = 1 << 20
)

var (
	ErrEmptyFile    = errors.New("chunksender: empty file")
	ErrNoEndpoint   = errors.New("chunksender: endpoint is required")
	errSessionLost  = errors.New("chunksender: upload session lost")
	errNotFinalized = errors.New("chunksender: final chunk accepted without file id")
)

// ServerError 服务端返回的非 2xx 响应
type ServerError struct {
	Status  int
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("upload chunk failed: status=%d, code=%d, message=%s", e.Status, e.Code, e.Message)
}

// Temporary 5xx 可重试，4xx 不重试
func (e *ServerError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// Catalog 随最后一个分片提交的编目信息
type Catalog struct {
	Title    string
	Author   string
	Year     string
	Topic    string
	Keywords string
	Summary  string
}

// Progress 每个分片成功后回调
type Progress struct {
	SessionID string
	Chunk     int
	Total     int
	SentBytes int64
	Size      int64
	// Percent 服务端返回的进度
	Percent float64
}

type Options struct {
	// Endpoint 分片接口完整地址，例如 http://host:8810/api/upload-chunk
	Endpoint  string
	ChunkSize int64

	// 单个分片的最大重试次数
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxRestarts 会话丢失后重新上传的最大次数，默认 1，负数表示不重传
	MaxRestarts int

	// Client 为空时使用 go-zero httpc
	Client     *http.Client
	OnProgress func(Progress)
}

// Result 上传结果
type Result struct {
	SessionID string
	FileID    string
	FileURL   string
	RecordID  int64
	Chunks    int
	Restarts  int
}

type chunkResponse struct {
	Success  bool    `json:"success"`
	Progress float64 `json:"progress"`
	FileId   string  `json:"fileId"`
	FileUrl  string  `json:"fileUrl"`
	RecordId int64   `json:"recordId"`
	Code     int     `json:"code"`
	Message  string  `json:"message"`
}

type Sender struct {
	opts  Options
	do    func(*http.Request) (*http.Response, error)
	newID func() string
}

func New(opts Options) (*Sender, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	switch {
	case opts.MaxRestarts == 0:
		opts.MaxRestarts = 1
	case opts.MaxRestarts < 0:
		opts.MaxRestarts = 0
	}

	s := &Sender{opts: opts, do: httpc.DoRequest, newID: uuid.NewString}
	if opts.Client != nil {
		s.do = opts.Client.Do
	}
	return s, nil
}

// TotalChunks 按分片大小向上取整
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// Send 按顺序上传全部分片，会话丢失时换新会话从头开始
func (s *Sender) Send(ctx context.Context, fileName string, data []byte, catalog Catalog) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	logger := logx.WithContext(ctx)
	for restart := 0; ; restart++ {
		sessionID := s.newID()
		res, err := s.sendSession(ctx, sessionID, fileName, data, catalog)
		if err == nil {
			res.Restarts = restart
			return res, nil
		}
		if !errors.Is(err, errSessionLost) || restart >= s.opts.MaxRestarts {
			return nil, err
		}
		logger.Infof("上传会话已失效，重新上传: sessionID=%s, restart=%d", sessionID, restart+1)
	}
}

func (s *Sender) sendSession(ctx context.Context, sessionID, fileName string, data []byte, catalog Catalog) (*Result, error) {
	size := int64(len(data))
	total := TotalChunks(size, s.opts.ChunkSize)

	var last chunkResponse
	for i := 0; i < total; i++ {
		start := int64(i) * s.opts.ChunkSize
		end := min(start+s.opts.ChunkSize, size)

		var meta *Catalog
		if i == total-1 {
			meta = &catalog
		}
		resp, err := s.sendWithRetry(ctx, chunk{
			sessionID: sessionID,
			fileName:  fileName,
			index:     i,
			total:     total,
			data:      data[start:end],
			catalog:   meta,
		})
		if err != nil {
			return nil, err
		}
		last = resp

		if s.opts.OnProgress != nil {
			s.opts.OnProgress(Progress{
				SessionID: sessionID,
				Chunk:     i,
				Total:     total,
				SentBytes: end,
				Size:      size,
				Percent:   resp.Progress,
			})
		}
	}

	return &Result{
		SessionID: sessionID,
		FileID:    last.FileId,
		FileURL:   last.FileUrl,
		RecordID:  last.RecordId,
		Chunks:    total,
	}, nil
}

type chunk struct {
	sessionID string
	fileName  string
	index     int
	total     int
	data      []byte
	catalog   *Catalog
}

func (s *Sender) sendWithRetry(ctx context.Context, c chunk) (chunkResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialInterval
	policy.MaxInterval = s.opts.MaxInterval
	policy.MaxElapsedTime = 0
	policy.Reset()

	operation := func() (chunkResponse, error) {
		resp, err := s.sendChunk(ctx, c)
		if err == nil {
			return resp, nil
		}
		var se *ServerError
		if errors.As(err, &se) {
			if se.Code == codeSessionNotFound {
				return resp, backoff.Permanent(fmt.Errorf("%w: %s", errSessionLost, se.Message))
			}
			if !se.Temporary() {
				return resp, backoff.Permanent(err)
			}
		}
		if ctx.Err() != nil {
			return resp, backoff.Permanent(ctx.Err())
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		logx.WithContext(ctx).Errorf("分片上传失败，%v 后重试: sessionID=%s, chunk=%d/%d, error=%v",
			wait, c.sessionID, c.index, c.total, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.opts.MaxRetries), ctx)
	return backoff.RetryNotifyWithData(operation, b, notify)
}

func (s *Sender) sendChunk(ctx context.Context, c chunk) (chunkResponse, error) {
	body, contentType, err := encodeChunk(c)
	if err != nil {
		return chunkResponse{}, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint, body)
	if err != nil {
		return chunkResponse{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", contentType)

	httpResp, err := s.do(req)
	if err != nil {
		return chunkResponse{}, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return chunkResponse{}, err
	}

	var resp chunkResponse
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &resp); err != nil && httpResp.StatusCode < 300 {
			return chunkResponse{}, fmt.Errorf("解析响应失败: %w", err)
		}
	}
	if httpResp.StatusCode >= 300 || !resp.Success {
		status := httpResp.StatusCode
		if status < 300 {
			status = http.StatusInternalServerError
		}
		return resp, &ServerError{Status: status, Code: resp.Code, Message: resp.Message}
	}
	if c.index == c.total-1 && resp.FileId == "" {
		// 并发归档尚未结束，重发最后一个分片可拿到结果
		return resp, errNotFinalized
	}
	return resp, nil
}

func encodeChunk(c chunk) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"sessionId", c.sessionID},
		{"chunkIndex", strconv.Itoa(c.index)},
		{"totalChunks", strconv.Itoa(c.total)},
		{"fileName", c.fileName},
	}
	if c.catalog != nil {
		fields = append(fields,
			[2]string{"title", c.catalog.Title},
			[2]string{"author", c.catalog.Author},
			[2]string{"year", c.catalog.Year},
			[2]string{"topic", c.catalog.Topic},
			[2]string{"keywords", c.catalog.Keywords},
			[2]string{"summary", c.catalog.Summary},
		)
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	part, err := mw.CreateFormFile("chunk", "blob")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(c.data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
