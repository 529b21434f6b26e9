package optimizer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/spf13/afero"
	"github.com/zeromicro/go-zero/core/logx"
)

// LocalStrategy 使用 ghostscript 压缩，pdftoppm 渲染首页
type LocalStrategy struct {
	gs          string
	pdftoppm    string
	pdfSettings string
	fs          afero.Fs
}

func NewLocalStrategy(gs, pdftoppm, pdfSettings string) *LocalStrategy {
	if gs == "" {
		gs = "gs"
	}
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if pdfSettings == "" {
		pdfSettings = "/ebook"
	}
	return &LocalStrategy{
		gs:          gs,
		pdftoppm:    pdftoppm,
		pdfSettings: pdfSettings,
		fs:          afero.NewOsFs(),
	}
}

func (s *LocalStrategy) Name() string { return StrategyLocal }

// workdir 创建临时目录并写入输入文件
func (s *LocalStrategy) workdir(doc []byte) (dir, input string, cleanup func(), err error) {
	dir, err = afero.TempDir(s.fs, "", "archive-opt-")
	if err != nil {
		return "", "", nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	cleanup = func() {
		if err := s.fs.RemoveAll(dir); err != nil {
			logx.Errorf("删除临时目录失败: %s, error=%v", dir, err)
		}
	}
	input = filepath.Join(dir, "input.pdf")
	if err = afero.WriteFile(s.fs, input, doc, 0o600); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("写入临时文件失败: %w", err)
	}
	return dir, input, cleanup, nil
}

func (s *LocalStrategy) run(ctx context.Context, command string, args ...string) error {
	task := execute.ExecTask{
		Command: command,
		Args:    args,
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return fmt.Errorf("执行 %s 失败: %w", command, err)
	}
	if res.Cancelled {
		return fmt.Errorf("执行 %s 超时", command)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("执行 %s 退出码 %d: %s", command, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (s *LocalStrategy) Compress(ctx context.Context, doc []byte) ([]byte, error) {
	dir, input, cleanup, err := s.workdir(doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	output := filepath.Join(dir, "output.pdf")
	err = s.run(ctx, s.gs,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS="+s.pdfSettings,
		"-dNOPAUSE", "-dQUIET", "-dBATCH",
		"-sOutputFile="+output,
		input,
	)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, output)
}

func (s *LocalStrategy) Render(ctx context.Context, doc []byte) ([]byte, error) {
	dir, input, cleanup, err := s.workdir(doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prefix := filepath.Join(dir, "page")
	err = s.run(ctx, s.pdftoppm,
		"-png", "-f", "1", "-l", "1", "-singlefile",
		"-scale-to", "600",
		input, prefix,
	)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, prefix+".png")
}
