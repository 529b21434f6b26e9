package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	ProviderMinio  = "minio"
	ProviderS3     = "s3"
	ProviderMemory = "memory"

	DocumentPrefix  = "documents"
	ThumbnailPrefix = "thumbnails"
)

var (
	ErrObjectNotFound = errors.New("storage: object not found")
	ErrEmptyObjectID  = errors.New("storage: empty object id")
)

// Uploader 远端对象存储适配器，对象 ID 即桶内 key
type Uploader interface {
	// Create 创建空占位对象并返回对象 ID
	Create(ctx context.Context, objectID, contentType string) (string, error)
	// Put 覆盖写入对象内容
	Put(ctx context.Context, objectID string, data []byte, contentType string) error
	// SetPublic 设置对象可公开读取
	SetPublic(ctx context.Context, objectID string) error
	Get(ctx context.Context, objectID string) ([]byte, error)
	Delete(ctx context.Context, objectID string) error
	// URL 返回可直接访问的地址
	URL(objectID string) string
}

type UploaderOptions struct {
	Provider      string   `json:",default=minio,options=minio|s3|memory"`
	Endpoints     []string `json:",optional"`
	EndpointProxy string   `json:",optional"` // 对外访问地址，为空时使用 Endpoints[0]
	AccessKey     string   `json:",optional"`
	AccessSecret  string   `json:",optional"`
	BucketName    string   `json:",default=archive"`
	Region        string   `json:",optional"`
	UseTLS        bool     `json:",optional"`
	CAFile        string   `json:",optional"`
}

// NewUploader 根据 Provider 创建上传器
func NewUploader(opts UploaderOptions) (Uploader, error) {
	switch strings.ToLower(opts.Provider) {
	case ProviderMemory:
		return NewMemoryUploader(opts.EndpointProxy), nil
	case ProviderMinio, ProviderS3, "":
		return newMinioUploader(opts)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", opts.Provider)
	}
}

// ObjectKey 拼接对象 key，例如 documents/xxx.pdf
func ObjectKey(prefix, name string) string {
	return path.Join(prefix, name)
}
