package uploadcore

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound     = errors.New("upload session not found")
	ErrInvalidChunkIndex   = errors.New("chunk index out of range")
	ErrInvalidTotalChunks  = errors.New("total chunks must be positive")
	ErrTotalChunksMismatch = errors.New("total chunks does not match session")
	ErrIncomplete          = errors.New("upload session is incomplete")
	ErrFinalizeInProgress  = errors.New("upload session is being finalized")
)

// Status 会话状态
type Status string

const (
	StatusReceiving  Status = "receiving"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// CatalogMeta 最后一个分片携带的编目信息
type CatalogMeta struct {
	Title    string
	Author   string
	Year     string
	Topic    string
	Keywords string
	Summary  string
}

// SessionSpec 创建会话所需参数
type SessionSpec struct {
	SessionID      string
	TotalChunks    int
	FileName       string
	UniqueFileName string
	RemoteObjectID string
}

// UploadSession 上传会话快照，分片数据保存在 Spool 中
type UploadSession struct {
	SessionID        string
	RemoteObjectID   string
	TotalChunks      int
	Received         map[int]bool
	OriginalFileName string
	UniqueFileName   string
	Catalog          *CatalogMeta
	Status           Status
	FailReason       string
	CreatedAt        time.Time
	LastActivity     time.Time
}

// ReceivedCount 已接收分片数
func (s *UploadSession) ReceivedCount() int {
	return len(s.Received)
}

// Progress 百分比进度，保留一位小数
func (s *UploadSession) Progress() float64 {
	return Progress(len(s.Received), s.TotalChunks)
}

// Missing 未接收的分片下标
func (s *UploadSession) Missing() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.Received))
	for i := 0; i < s.TotalChunks; i++ {
		if !s.Received[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *UploadSession) clone() *UploadSession {
	cp := *s
	cp.Received = make(map[int]bool, len(s.Received))
	for k, v := range s.Received {
		cp.Received[k] = v
	}
	if s.Catalog != nil {
		meta := *s.Catalog
		cp.Catalog = &meta
	}
	return &cp
}

// PutResult 写入分片的结果
type PutResult struct {
	Duplicate bool
	Received  int
	Total     int
	Complete  bool
}

func (r PutResult) Progress() float64 {
	return Progress(r.Received, r.Total)
}

// Progress received/total 的百分比，保留一位小数
func Progress(received, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(received) / float64(total) * 100
	return float64(int64(p*10+0.5)) / 10
}
