package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yanshicheng/archive-nova/common/vars"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/mr"
)

const (
	MimePDF = "application/pdf"
	MimePNG = "image/png"

	StrategyLocal  = "local"
	StrategyRemote = "remote"
	StrategyNone   = "none"
)

var ErrUnsupported = errors.New("optimizer: operation not supported")

// Strategy 压缩与首页渲染的具体实现
type Strategy interface {
	Name() string
	// Compress 返回压缩后的文档
	Compress(ctx context.Context, doc []byte) ([]byte, error)
	// Render 将首页渲染为任意常见格式的图片
	Render(ctx context.Context, doc []byte) ([]byte, error)
}

type Conf struct {
	Strategy           string        `json:",default=local,options=local|remote|none"`
	GhostscriptBin     string        `json:",default=gs"`
	PdftoppmBin        string        `json:",default=pdftoppm"`
	PdfSettings        string        `json:",default=/ebook"`
	ConversionEndpoint string        `json:",optional"`
	ThumbnailWidth     int           `json:",default=200"`
	ThumbnailHeight    int           `json:",default=280"`
	Background         string        `json:",default=#FFFFFF"`
	Timeout            time.Duration `json:",default=60s"`
	Defer              bool          `json:",optional"` // 先入库再后台优化
}

// Result 优化结果
type Result struct {
	Document   []byte
	Compressed bool
	Thumbnail  []byte // 生成失败时为 nil
}

type Optimizer struct {
	strategy   Strategy
	width      int
	height     int
	background color.Color
	timeout    time.Duration
}

// MustNewOptimizer 根据配置创建，配置错误直接 panic
func MustNewOptimizer(c Conf) *Optimizer {
	o, err := NewOptimizer(c)
	if err != nil {
		logx.Must(err)
	}
	return o
}

func NewOptimizer(c Conf) (*Optimizer, error) {
	var strategy Strategy
	switch c.Strategy {
	case StrategyLocal, "":
		strategy = NewLocalStrategy(c.GhostscriptBin, c.PdftoppmBin, c.PdfSettings)
	case StrategyRemote:
		if c.ConversionEndpoint == "" {
			return nil, errors.New("remote 策略需要配置 ConversionEndpoint")
		}
		strategy = NewConversionStrategy(c.ConversionEndpoint)
	case StrategyNone:
		strategy = NoneStrategy{}
	default:
		return nil, fmt.Errorf("未知的优化策略: %s", c.Strategy)
	}

	bg, err := ParseColor(c.Background)
	if err != nil {
		return nil, err
	}
	return New(strategy, c.ThumbnailWidth, c.ThumbnailHeight, bg, c.Timeout), nil
}

func New(strategy Strategy, width, height int, background color.Color, timeout time.Duration) *Optimizer {
	if width <= 0 {
		width = vars.ThumbnailWidth
	}
	if height <= 0 {
		height = vars.ThumbnailHeight
	}
	if background == nil {
		background = color.White
	}
	return &Optimizer{
		strategy:   strategy,
		width:      width,
		height:     height,
		background: background,
		timeout:    timeout,
	}
}

func (o *Optimizer) StrategyName() string {
	return o.strategy.Name()
}

func (o *Optimizer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// Compress 压缩文档，失败或结果更大时返回原始内容
func (o *Optimizer) Compress(ctx context.Context, doc []byte) ([]byte, bool) {
	if !mimetype.Detect(doc).Is(MimePDF) {
		return doc, false
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	out, err := o.strategy.Compress(ctx, doc)
	switch {
	case err != nil:
		if !errors.Is(err, ErrUnsupported) {
			logx.WithContext(ctx).Errorf("文档压缩失败，使用原文件: strategy=%s, error=%v", o.strategy.Name(), err)
		}
		return doc, false
	case !mimetype.Detect(out).Is(MimePDF):
		logx.WithContext(ctx).Errorf("压缩结果不是有效 PDF，使用原文件: strategy=%s", o.strategy.Name())
		return doc, false
	case len(out) >= len(doc):
		return doc, false
	}

	logx.WithContext(ctx).Infof("文档压缩完成: %d -> %d bytes", len(doc), len(out))
	return out, true
}

// Thumbnail 生成首页缩略图，失败返回 nil
func (o *Optimizer) Thumbnail(ctx context.Context, doc []byte) []byte {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	raster := doc
	mime := mimetype.Detect(doc)
	if mime.Is(MimePDF) {
		out, err := o.strategy.Render(ctx, doc)
		if err != nil {
			if !errors.Is(err, ErrUnsupported) {
				logx.WithContext(ctx).Errorf("缩略图渲染失败: strategy=%s, error=%v", o.strategy.Name(), err)
			}
			return nil
		}
		raster = out
	} else if !isImage(mime) {
		return nil
	}

	thumb, err := o.Normalize(raster)
	if err != nil {
		logx.WithContext(ctx).Errorf("缩略图处理失败: %v", err)
		return nil
	}
	return thumb
}

// Optimize 并行执行压缩与缩略图
func (o *Optimizer) Optimize(ctx context.Context, doc []byte) Result {
	var result Result
	_ = mr.Finish(func() error {
		result.Document, result.Compressed = o.Compress(ctx, doc)
		return nil
	}, func() error {
		result.Thumbnail = o.Thumbnail(ctx, doc)
		return nil
	})
	return result
}

// Normalize 等比缩放到目标框内并居中铺在纯色背景上，输出 PNG
func (o *Optimizer) Normalize(raster []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raster), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}

	fitted := imaging.Fit(img, o.width, o.height, imaging.Lanczos)
	canvas := imaging.New(o.width, o.height, o.background)
	canvas = imaging.PasteCenter(canvas, fitted)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("编码缩略图失败: %w", err)
	}
	return buf.Bytes(), nil
}

func isImage(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("image/png") || m.Is("image/jpeg") || m.Is("image/gif") || m.Is("image/bmp") || m.Is("image/tiff") {
			return true
		}
	}
	return false
}

// NoneStrategy 不做任何优化
type NoneStrategy struct{}

func (NoneStrategy) Name() string { return StrategyNone }

func (NoneStrategy) Compress(context.Context, []byte) ([]byte, error) {
	return nil, ErrUnsupported
}

func (NoneStrategy) Render(context.Context, []byte) ([]byte, error) {
	return nil, ErrUnsupported
}
