package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zeromicro/go-zero/rest/httpc"
)

const maxConversionResponse = 256 << 20

// ConversionStrategy 调用外部转换服务
//
//	POST {endpoint}/compress   body=PDF  -> PDF
//	POST {endpoint}/thumbnail  body=PDF  -> 图片
type ConversionStrategy struct {
	endpoint string
}

func NewConversionStrategy(endpoint string) *ConversionStrategy {
	return &ConversionStrategy{endpoint: strings.TrimRight(endpoint, "/")}
}

func (s *ConversionStrategy) Name() string { return StrategyRemote }

func (s *ConversionStrategy) Compress(ctx context.Context, doc []byte) ([]byte, error) {
	return s.call(ctx, "/compress", doc)
}

func (s *ConversionStrategy) Render(ctx context.Context, doc []byte) ([]byte, error) {
	return s.call(ctx, "/thumbnail", doc)
}

func (s *ConversionStrategy) call(ctx context.Context, path string, doc []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("构造转换请求失败: %w", err)
	}
	req.Header.Set("Content-Type", MimePDF)

	resp, err := httpc.DoRequest(req)
	if err != nil {
		return nil, fmt.Errorf("调用转换服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConversionResponse))
	if err != nil {
		return nil, fmt.Errorf("读取转换结果失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("转换服务返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("转换服务返回空内容")
	}
	return body, nil
}
