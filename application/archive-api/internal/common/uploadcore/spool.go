package uploadcore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/zeromicro/go-zero/core/logx"
)

// Spool 分片暂存区，每个会话一个目录，每个分片一个文件
type Spool struct {
	fs   afero.Fs
	root string
}

func NewSpool(fs afero.Fs, root string) *Spool {
	if root == "" {
		root = "upload_spool"
	}
	return &Spool{fs: fs, root: root}
}

// NewMemorySpool 内存暂存区
func NewMemorySpool() *Spool {
	return NewSpool(afero.NewMemMapFs(), "/spool")
}

// NewDiskSpool 磁盘暂存区，dir 为空时使用内存
func NewDiskSpool(dir string) *Spool {
	if dir == "" {
		return NewMemorySpool()
	}
	return NewSpool(afero.NewOsFs(), filepath.Join(dir, "upload_spool"))
}

// Reset 清空暂存区，会话只存在于进程内存，重启后旧分片无法续传
func (s *Spool) Reset() error {
	if err := s.fs.RemoveAll(s.root); err != nil {
		return fmt.Errorf("清理暂存目录失败: %w", err)
	}
	return s.fs.MkdirAll(s.root, 0o755)
}

func (s *Spool) sessionDir(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return filepath.Join(s.root, hex.EncodeToString(sum[:16]))
}

func (s *Spool) slotPath(sessionID string, index int) string {
	return filepath.Join(s.sessionDir(sessionID), strconv.Itoa(index)+".part")
}

func (s *Spool) Write(sessionID string, index int, data []byte) error {
	dir := s.sessionDir(sessionID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建分片目录失败: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.slotPath(sessionID, index), data, 0o644); err != nil {
		return fmt.Errorf("写入分片失败: index=%d, %w", index, err)
	}
	return nil
}

func (s *Spool) Read(sessionID string, index int) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.slotPath(sessionID, index))
	if err != nil {
		return nil, fmt.Errorf("读取分片失败: index=%d, %w", index, err)
	}
	return data, nil
}

// Size 会话所有分片的总字节数
func (s *Spool) Size(sessionID string, total int) (int64, error) {
	var size int64
	for i := 0; i < total; i++ {
		info, err := s.fs.Stat(s.slotPath(sessionID, i))
		if err != nil {
			return 0, err
		}
		size += info.Size()
	}
	return size, nil
}

func (s *Spool) Remove(sessionID string) {
	if err := s.fs.RemoveAll(s.sessionDir(sessionID)); err != nil && !os.IsNotExist(err) {
		logx.Errorf("删除分片目录失败: session=%s, error=%v", sessionID, err)
	}
}
