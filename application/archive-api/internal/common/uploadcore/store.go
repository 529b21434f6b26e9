package uploadcore

import (
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// Store 上传会话存储
// map 只在增删会话时加全局锁，同一会话的所有变更由会话自身的互斥锁串行化
type Store struct {
	sessions map[string]*sessionWrapper
	mu       sync.RWMutex
	spool    *Spool
	now      func() time.Time
}

type sessionWrapper struct {
	session *UploadSession
	removed bool
	mu      sync.Mutex
}

type Option func(*Store)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(spool *Spool, opts ...Option) *Store {
	if spool == nil {
		spool = NewMemorySpool()
	}
	s := &Store{
		sessions: make(map[string]*sessionWrapper),
		spool:    spool,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup 取会话并加锁，调用方负责 Unlock
func (s *Store) lookup(sessionID string) (*sessionWrapper, error) {
	s.mu.RLock()
	wrapper, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrSessionNotFound
	}

	wrapper.mu.Lock()
	if wrapper.removed {
		wrapper.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return wrapper, nil
}

// GetOrCreate 会话不存在时创建，created 表示本次调用是否新建
func (s *Store) GetOrCreate(spec SessionSpec) (*UploadSession, bool, error) {
	if spec.TotalChunks <= 0 {
		return nil, false, ErrInvalidTotalChunks
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if wrapper, exists := s.sessions[spec.SessionID]; exists {
		wrapper.mu.Lock()
		defer wrapper.mu.Unlock()
		// 正在被回收的会话
		if wrapper.removed {
			return nil, false, ErrSessionNotFound
		}
		if wrapper.session.TotalChunks != spec.TotalChunks {
			return nil, false, fmt.Errorf("%w: session=%d, request=%d",
				ErrTotalChunksMismatch, wrapper.session.TotalChunks, spec.TotalChunks)
		}
		return wrapper.session.clone(), false, nil
	}

	now := s.now()
	session := &UploadSession{
		SessionID:        spec.SessionID,
		RemoteObjectID:   spec.RemoteObjectID,
		TotalChunks:      spec.TotalChunks,
		Received:         make(map[int]bool, spec.TotalChunks),
		OriginalFileName: spec.FileName,
		UniqueFileName:   spec.UniqueFileName,
		Status:           StatusReceiving,
		CreatedAt:        now,
		LastActivity:     now,
	}
	s.sessions[spec.SessionID] = &sessionWrapper{session: session}

	logx.Infof("创建上传会话: sessionID=%s, file=%s, chunks=%d, remote=%s",
		spec.SessionID, spec.FileName, spec.TotalChunks, spec.RemoteObjectID)

	return session.clone(), true, nil
}

// PutChunk 写入分片，重复下标视为成功且不重复计数
func (s *Store) PutChunk(sessionID string, index int, data []byte) (PutResult, error) {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return PutResult{}, err
	}
	defer wrapper.mu.Unlock()

	session := wrapper.session
	if index < 0 || index >= session.TotalChunks {
		return PutResult{}, fmt.Errorf("%w: index=%d, total=%d", ErrInvalidChunkIndex, index, session.TotalChunks)
	}

	result := PutResult{Total: session.TotalChunks}
	if session.Received[index] {
		result.Duplicate = true
	} else {
		if err := s.spool.Write(sessionID, index, data); err != nil {
			return PutResult{}, err
		}
		session.Received[index] = true
	}
	session.LastActivity = s.now()

	result.Received = len(session.Received)
	result.Complete = result.Received == session.TotalChunks
	return result, nil
}

// IsComplete 是否已接收全部分片
func (s *Store) IsComplete(sessionID string) (bool, error) {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	defer wrapper.mu.Unlock()
	return len(wrapper.session.Received) == wrapper.session.TotalChunks, nil
}

// Assemble 按下标顺序拼接所有分片
func (s *Store) Assemble(sessionID string) ([]byte, error) {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	defer wrapper.mu.Unlock()

	session := wrapper.session
	if len(session.Received) != session.TotalChunks {
		return nil, fmt.Errorf("%w: %d/%d", ErrIncomplete, len(session.Received), session.TotalChunks)
	}

	size, err := s.spool.Size(sessionID, session.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("统计分片大小失败: %w", err)
	}

	buf := make([]byte, 0, size)
	for i := 0; i < session.TotalChunks; i++ {
		part, err := s.spool.Read(sessionID, i)
		if err != nil {
			return nil, err
		}
		buf = append(buf, part...)
	}
	return buf, nil
}

// Get 返回会话快照
func (s *Store) Get(sessionID string) (*UploadSession, error) {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	defer wrapper.mu.Unlock()
	return wrapper.session.clone(), nil
}

func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// AttachCatalog 保存编目信息，完成时使用
func (s *Store) AttachCatalog(sessionID string, meta CatalogMeta) error {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	defer wrapper.mu.Unlock()
	wrapper.session.Catalog = &meta
	return nil
}

// BeginFinalize 将已收齐的会话切换为 Finalizing，同一会话只有一个调用方能成功
func (s *Store) BeginFinalize(sessionID string) (*UploadSession, error) {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	defer wrapper.mu.Unlock()

	session := wrapper.session
	switch session.Status {
	case StatusFinalizing:
		return nil, ErrFinalizeInProgress
	case StatusReceiving, StatusFailed:
	default:
		return nil, fmt.Errorf("会话状态不允许归档: %s", session.Status)
	}
	if len(session.Received) != session.TotalChunks {
		return nil, fmt.Errorf("%w: %d/%d", ErrIncomplete, len(session.Received), session.TotalChunks)
	}

	session.Status = StatusFinalizing
	session.FailReason = ""
	session.LastActivity = s.now()
	return session.clone(), nil
}

// MarkFailed 归档失败，保留会话供排查，由清理任务过期回收
func (s *Store) MarkFailed(sessionID, reason string) {
	wrapper, err := s.lookup(sessionID)
	if err != nil {
		return
	}
	defer wrapper.mu.Unlock()

	wrapper.session.Status = StatusFailed
	wrapper.session.FailReason = reason
	wrapper.session.LastActivity = s.now()
}

// Complete 标记完成并移除会话
func (s *Store) Complete(sessionID string) {
	s.mu.Lock()
	wrapper, exists := s.sessions[sessionID]
	if exists {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	wrapper.mu.Lock()
	wrapper.session.Status = StatusCompleted
	wrapper.removed = true
	wrapper.mu.Unlock()

	s.spool.Remove(sessionID)
}

// Remove 移除会话及其分片
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	wrapper, exists := s.sessions[sessionID]
	if exists {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	wrapper.mu.Lock()
	wrapper.removed = true
	wrapper.mu.Unlock()

	s.spool.Remove(sessionID)
}

// Expire 回收超过 timeout 未活动的会话，正在归档的会话跳过
// 全局锁只用于取快照和删除映射，逐个会话加锁判断，分片文件在释放锁后删除
func (s *Store) Expire(now time.Time, timeout time.Duration) []*UploadSession {
	s.mu.RLock()
	candidates := make(map[string]*sessionWrapper, len(s.sessions))
	for sessionID, wrapper := range s.sessions {
		candidates[sessionID] = wrapper
	}
	s.mu.RUnlock()

	victims := make(map[string]*sessionWrapper)
	expired := make([]*UploadSession, 0)
	for sessionID, wrapper := range candidates {
		wrapper.mu.Lock()
		session := wrapper.session
		if !wrapper.removed && session.Status != StatusFinalizing && now.Sub(session.LastActivity) > timeout {
			session.Status = StatusExpired
			wrapper.removed = true
			expired = append(expired, session.clone())
			victims[sessionID] = wrapper
		}
		wrapper.mu.Unlock()
	}
	if len(victims) == 0 {
		return expired
	}

	s.mu.Lock()
	for sessionID, wrapper := range victims {
		if s.sessions[sessionID] == wrapper {
			delete(s.sessions, sessionID)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		s.spool.Remove(session.SessionID)
	}
	return expired
}
