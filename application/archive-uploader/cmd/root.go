package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/yanshicheng/archive-nova/common/vars"
	"github.com/yanshicheng/archive-nova/pkg/chunksender"
	"github.com/zeromicro/go-zero/core/logx"
)

const uploadExample = `  archive-uploader --endpoint http://127.0.0.1:8810/api/upload-chunk report.pdf
  archive-uploader --title "年度报告" --author 财务部 --year 2024 --chunk-size 2MiB report.pdf`

type uploadFlags struct {
	endpoint  string
	chunkSize string
	retries   uint64
	restarts  int
	timeout   time.Duration
	title     string
	author    string
	year      string
	topic     string
	keywords  string
	summary   string
	quiet     bool
}

// NewRootCmd 命令行上传工具
func NewRootCmd(fs afero.Fs, out io.Writer) *cobra.Command {
	f := &uploadFlags{}

	root := &cobra.Command{
		Use:          "archive-uploader [file...]",
		Short:        "分片上传文档到归档服务",
		Example:      uploadExample,
		Version:      vars.ProjectVer,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runUpload(c.Context(), fs, out, f, args)
		},
	}
	root.SetOut(out)

	flags := root.Flags()
	flags.StringVarP(&f.endpoint, "endpoint", "e", "http://127.0.0.1:8810/api/upload-chunk", "分片接口地址")
	flags.StringVar(&f.chunkSize, "chunk-size", "4MiB", "分片大小，例如 4MiB、512KB")
	flags.Uint64Var(&f.retries, "retries", 3, "单个分片的最大重试次数")
	flags.IntVar(&f.restarts, "restarts", 1, "会话失效后的最大重传次数，负数表示不重传")
	flags.DurationVar(&f.timeout, "timeout", 30*time.Minute, "单个文件的上传超时")
	flags.StringVarP(&f.title, "title", "t", "", "标题，默认取文件名")
	flags.StringVar(&f.author, "author", "", "作者")
	flags.StringVar(&f.year, "year", "", "年份")
	flags.StringVar(&f.topic, "topic", "", "主题")
	flags.StringVar(&f.keywords, "keywords", "", "关键词")
	flags.StringVar(&f.summary, "summary", "", "摘要")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "不输出进度")

	return root
}

func runUpload(ctx context.Context, fs afero.Fs, out io.Writer, f *uploadFlags, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chunkSize, err := humanize.ParseBytes(f.chunkSize)
	if err != nil || chunkSize == 0 {
		return fmt.Errorf("无效的分片大小 %q", f.chunkSize)
	}

	if f.quiet {
		logx.Disable()
	}

	for _, path := range files {
		if err := uploadOne(ctx, fs, out, f, int64(chunkSize), path); err != nil {
			return fmt.Errorf("上传 %s 失败: %w", path, err)
		}
	}
	return nil
}

func uploadOne(ctx context.Context, fs afero.Fs, out io.Writer, f *uploadFlags, chunkSize int64, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	total := chunksender.TotalChunks(int64(len(data)), chunkSize)
	if !f.quiet {
		fmt.Fprintf(out, "%s: %s, %d 个分片\n", name, humanize.IBytes(uint64(len(data))), total)
	}

	started := time.Now()
	sender, err := chunksender.New(chunksender.Options{
		Endpoint:    f.endpoint,
		ChunkSize:   chunkSize,
		MaxRetries:  f.retries,
		MaxRestarts: f.restarts,
		OnProgress: func(p chunksender.Progress) {
			if f.quiet {
				return
			}
			fmt.Fprintf(out, "  [%d/%d] %s / %s  %.1f%%\n", p.Chunk+1, p.Total,
				humanize.IBytes(uint64(p.SentBytes)), humanize.IBytes(uint64(p.Size)), p.Percent)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := sender.Send(ctx, name, data, chunksender.Catalog{
		Title:    defaultTitle(f.title, name),
		Author:   f.author,
		Year:     f.year,
		Topic:    f.topic,
		Keywords: f.keywords,
		Summary:  f.summary,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: 上传完成 record=%d file=%s url=%s (%s)\n",
		name, res.RecordID, res.FileID, res.FileURL, time.Since(started).Round(time.Millisecond))
	return nil
}

func defaultTitle(title, name string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
