package vars

import "time"

const (
	Page       uint64 = 1
	PageSize   uint64 = 20
	OrderField string = "upload_date"
	// 排序规则
	OrderType string = "desc" // 降序=desc，升序=asc
)

// 分片上传默认参数
const (
	DefaultChunkSize      = 4 * 1024 * 1024 // 4MB，与客户端保持一致
	DefaultMaxChunkBytes  = 8 * 1024 * 1024
	DefaultMaxTotalChunks = 4096
	DefaultSessionTimeout = 30 * time.Minute
	DefaultReapSpec       = "0 */1 * * * *"
	DefaultCompletedTTL   = time.Hour
)

// 缩略图尺寸
const (
	ThumbnailWidth  = 200
	ThumbnailHeight = 280
)

// 项目版本信息
const (
	ProjectName = "ArchiveNova"
	ProjectVer  = "v0.1.0"
)
