package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryUploader 进程内对象存储，用于本地开发和测试
type MemoryUploader struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]*memoryObject

	// 故障注入，非 nil 时对应操作直接返回该错误
	CreateErr    error
	PutErr       error
	SetPublicErr error
}

type memoryObject struct {
	data        []byte
	contentType string
	public      bool
}

func NewMemoryUploader(baseURL string) *MemoryUploader {
	if baseURL == "" {
		baseURL = "memory://archive"
	}
	return &MemoryUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]*memoryObject),
	}
}

func (m *MemoryUploader) Create(ctx context.Context, objectID, contentType string) (string, error) {
	if objectID == "" {
		return "", ErrEmptyObjectID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.objects[objectID] = &memoryObject{contentType: contentType}
	return objectID, nil
}

func (m *MemoryUploader) Put(ctx context.Context, objectID string, data []byte, contentType string) error {
	if objectID == "" {
		return ErrEmptyObjectID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	obj, ok := m.objects[objectID]
	if !ok {
		obj = &memoryObject{}
		m.objects[objectID] = obj
	}
	obj.data = append([]byte(nil), data...)
	obj.contentType = contentType
	return nil
}

func (m *MemoryUploader) SetPublic(ctx context.Context, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetPublicErr != nil {
		return m.SetPublicErr
	}
	obj, ok := m.objects[objectID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objectID)
	}
	obj.public = true
	return nil
}

func (m *MemoryUploader) Get(ctx context.Context, objectID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectID)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryUploader) Delete(ctx context.Context, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectID)
	return nil
}

func (m *MemoryUploader) URL(objectID string) string {
	if objectID == "" {
		return ""
	}
	return m.baseURL + "/" + objectID
}

// IsPublic 对象是否已公开
func (m *MemoryUploader) IsPublic(objectID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectID]
	return ok && obj.public
}

// ContentType 返回对象的内容类型
func (m *MemoryUploader) ContentType(objectID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if obj, ok := m.objects[objectID]; ok {
		return obj.contentType
	}
	return ""
}

// Len 对象数量
func (m *MemoryUploader) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
