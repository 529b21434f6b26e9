package types

type UploadChunkRequest struct {
	SessionId   string `form:"sessionId" validate:"required,max=128"`
	ChunkIndex  int    `form:"chunkIndex" validate:"min=0"`
	TotalChunks int    `form:"totalChunks" validate:"min=1"`
	FileName    string `form:"fileName" validate:"required,max=255"`
	// 编目信息，仅最后一个分片携带
	Title    string `form:"title,optional" validate:"max=255"`
	Author   string `form:"author,optional" validate:"max=255"`
	Year     string `form:"year,optional" validate:"max=16"`
	Topic    string `form:"topic,optional" validate:"max=255"`
	Keywords string `form:"keywords,optional" validate:"max=512"`
	Summary  string `form:"summary,optional"`
}

type UploadChunkResponse struct {
	Success  bool    `json:"success"`
	Progress float64 `json:"progress"`
	FileId   string  `json:"fileId,omitempty"`
	FileUrl  string  `json:"fileUrl,omitempty"`
	RecordId int64   `json:"recordId,omitempty"`
	Message  string  `json:"message"`
}

type GetFilesRequest struct {
	Page     uint64 `form:"page,optional" default:"1" validate:"min=1"`
	PageSize uint64 `form:"pageSize,optional" default:"20" validate:"min=1,max=200"`
}

type ArchiveItem struct {
	Id           int64  `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Year         string `json:"year"`
	Topic        string `json:"topic"`
	Keywords     string `json:"keywords"`
	Summary      string `json:"summary"`
	FileId       string `json:"fileId"`
	FileUrl      string `json:"fileUrl"`
	ThumbnailId  string `json:"thumbnailId"`
	ThumbnailUrl string `json:"thumbnailUrl"`
	UploadDate   int64  `json:"uploadDate"`
	Downloads    int64  `json:"downloads"`
	Status       string `json:"status"`
}

type GetFilesResponse struct {
	Success bool          `json:"success"`
	Items   []ArchiveItem `json:"items"`
	Total   uint64        `json:"total"`
}

type DeleteFileRequest struct {
	Id int64 `json:"id" validate:"required,gt=0"`
}

type DeleteFileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
