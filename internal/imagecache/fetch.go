package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const readChunkSize = 64 * 1024

// 部分图床会拒绝无浏览器特征的请求，这里带上常规浏览器头。
const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

var (
	errBodyTooLarge   = errors.New("image body exceeds download limit")
	errEmptyBody      = errors.New("image body is empty")
	errUpstreamStatus = errors.New("unexpected upstream status")
)

// newFetchClient 构造回源专用客户端：拨号阶段受 connectTimeout 约束，
// 整个请求（含正文读取）受 readTimeout 约束。
func newFetchClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &http.Client{
		Timeout:   readTimeout,
		Transport: transport,
	}
}

// allowedScheme 只放行 http/https，其余输入一律按策略拒绝。
func allowedScheme(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// download 执行带上限的正文下载：先用 Content-Length 预筛，再在流式读取中
// 强制字节上限，应对缺失或虚报的长度头。
func (c *Cache) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %s", errUpstreamStatus, resp.Status)
	}

	if resp.ContentLength > c.maxDownloadBytes {
		return nil, fmt.Errorf("%w: content-length %d", errBodyTooLarge, resp.ContentLength)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "image") {
		c.logger.WithFields(logrus.Fields{"url": rawURL, "content_type": ct}).Warn("unexpected_content_type")
	}

	body, err := readAllBounded(ctx, resp.Body, c.maxDownloadBytes)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

// readAllBounded 按块读取正文，累计超过 limit 立即终止，并在块间响应取消。
func readAllBounded(ctx context.Context, src io.Reader, limit int64) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if int64(out.Len())+int64(n) > limit {
				return nil, fmt.Errorf("%w: limit %d", errBodyTooLarge, limit)
			}
			out.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out.Bytes(), nil
			}
			return nil, fmt.Errorf("read body: %w", err)
		}
	}
}

// fetchFailureReason 把下载错误折叠为指标与日志使用的离散原因。
func fetchFailureReason(err error) string {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return "too_large"
	case errors.Is(err, errEmptyBody):
		return "empty"
	case errors.Is(err, errUpstreamStatus):
		return "status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
