package imagecache

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/metrics"
)

// Source 标识一次解析最终由哪一层提供位图。
type Source string

const (
	SourceMemory      Source = "memory"
	SourceDisk        Source = "disk"
	SourceOrigin      Source = "origin"
	SourcePlaceholder Source = "placeholder"
)

// Options 汇集构建 Cache 所需的依赖与上限参数，零值字段会回退到默认值。
type Options struct {
	CacheDir string
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics

	MemoryMaxItems   int
	MemoryMaxBytes   int64
	MaxDownloadBytes int64
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	StoredMaxEdge    int
	PreviewMaxEdge   int

	// Client 允许测试注入自定义 HTTP 客户端，缺省时按超时参数构建。
	Client *http.Client
}

// Cache 是图像解析入口，组合内存层、磁盘层、键级锁与回源管道。
type Cache struct {
	memory  *memoryCache
	disk    *diskStore
	locks   *lockTable
	client  *http.Client
	logger  *logrus.Logger
	metrics *metrics.Metrics

	maxDownloadBytes int64
	storedMaxEdge    int
	previewMaxEdge   int
}

// New 构建 Cache 并确保磁盘缓存目录可用。
func New(opts Options) (*Cache, error) {
	if opts.Logger == nil {
		return nil, errors.New("options: logger is required")
	}
	if opts.MemoryMaxItems <= 0 {
		opts.MemoryMaxItems = 64
	}
	if opts.MemoryMaxBytes <= 0 {
		opts.MemoryMaxBytes = 256 * 1024 * 1024
	}
	if opts.MaxDownloadBytes <= 0 {
		opts.MaxDownloadBytes = 10 * 1024 * 1024
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.StoredMaxEdge <= 0 {
		opts.StoredMaxEdge = 1024
	}
	if opts.PreviewMaxEdge <= 0 {
		opts.PreviewMaxEdge = 512
	}

	disk, err := newDiskStore(opts.CacheDir, opts.Logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = newFetchClient(opts.ConnectTimeout, opts.ReadTimeout)
	}

	return &Cache{
		memory:           newMemoryCache(opts.MemoryMaxItems, opts.MemoryMaxBytes),
		disk:             disk,
		locks:            newLockTable(),
		client:           client,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		maxDownloadBytes: opts.MaxDownloadBytes,
		storedMaxEdge:    opts.StoredMaxEdge,
		previewMaxEdge:   opts.PreviewMaxEdge,
	}, nil
}

// Resolve 把 URL 解析为展示尺寸的位图，并报告提供位图的层级。任何失败都
// 回退到占位图，绝不向调用方抛错；占位图本身不会进入任何缓存层。
func (c *Cache) Resolve(ctx context.Context, rawURL string) (*image.NRGBA, Source) {
	if ctx == nil {
		ctx = context.Background()
	}

	target := strings.TrimSpace(rawURL)
	if target == "" {
		c.logger.WithField("reason", "empty_url").Debug("preview_placeholder")
		return c.placeholderResult()
	}
	if !allowedScheme(target) {
		c.logger.WithField("url", target).Warn("scheme_rejected")
		c.metrics.RecordFetch("policy", 0, 0)
		return c.placeholderResult()
	}

	key := CacheKey(target)

	if img, ok := c.memory.Get(key); ok {
		c.metrics.RecordResolve(string(SourceMemory))
		return img, SourceMemory
	}

	lock := c.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	// 等锁期间可能已有并发请求完成了填充，落盘前再查一次内存。
	if img, ok := c.memory.Get(key); ok {
		c.metrics.RecordResolve(string(SourceMemory))
		return img, SourceMemory
	}

	if img, ok := c.disk.Load(key); ok {
		preview := fitWithin(img, c.previewMaxEdge)
		c.putMemory(key, preview)
		c.metrics.RecordResolve(string(SourceDisk))
		return preview, SourceDisk
	}

	preview, ok := c.fetchAndStore(ctx, key, target)
	if !ok {
		return c.placeholderResult()
	}
	c.putMemory(key, preview)
	c.metrics.RecordResolve(string(SourceOrigin))
	return preview, SourceOrigin
}

// fetchAndStore 执行回源管道：下载、解码、限边、落盘，产出展示尺寸的位图。
// 下载与解码失败会导致整体失败；再编码或落盘失败仅降级为本次不持久化。
func (c *Cache) fetchAndStore(ctx context.Context, key, url string) (*image.NRGBA, bool) {
	started := time.Now()

	raw, err := c.download(ctx, url)
	if err != nil {
		reason := fetchFailureReason(err)
		c.metrics.RecordFetch(reason, 0, time.Since(started))
		c.logger.WithError(err).WithFields(logrus.Fields{"url": url, "reason": reason}).Warn("preview_fetch_failed")
		return nil, false
	}

	img, err := decodeBitmap(raw)
	if err != nil {
		c.metrics.RecordFetch("decode", len(raw), time.Since(started))
		c.logger.WithError(err).WithField("url", url).Warn("preview_decode_failed")
		return nil, false
	}
	c.metrics.RecordFetch("ok", len(raw), time.Since(started))

	stored := fitWithin(img, c.storedMaxEdge)

	if blob, encErr := encodeJPEG(stored); encErr != nil {
		c.logger.WithError(encErr).WithField("url", url).Warn("preview_encode_degraded")
	} else if saveErr := c.disk.Save(key, blob, contentDigest(blob)); saveErr != nil {
		c.logger.WithError(saveErr).WithFields(logrus.Fields{"url": url, "key": key}).Warn("preview_persist_degraded")
	}

	return fitWithin(stored, c.previewMaxEdge), true
}

func (c *Cache) placeholderResult() (*image.NRGBA, Source) {
	c.metrics.RecordResolve(string(SourcePlaceholder))
	return Placeholder(), SourcePlaceholder
}

func (c *Cache) putMemory(key string, img *image.NRGBA) {
	c.memory.Put(key, img)
	c.metrics.UpdateMemoryCache(c.memory.Len(), c.memory.Bytes())
}
