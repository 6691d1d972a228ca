package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/metrics"
)

const (
	imageExt  = ".jpg"
	digestExt = ".sha256"
)

// diskStore 把再编码后的图像正文与其 SHA-256 摘要成对落盘：
//
//	<dir>/<key>.jpg     # 有损再编码正文
//	<dir>/<key>.sha256  # 正文摘要，十六进制文本
//
// 读取时先核对摘要再解码，任何不一致都会移除整组文件，等待下次回源重建。
type diskStore struct {
	dir     string
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func newDiskStore(dir string, logger *logrus.Logger, m *metrics.Metrics) (*diskStore, error) {
	if dir == "" {
		return nil, errors.New("cache dir required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &diskStore{dir: abs, logger: logger, metrics: m}, nil
}

func (s *diskStore) blobPath(key string) string {
	return filepath.Join(s.dir, key+imageExt)
}

func (s *diskStore) digestPath(key string) string {
	return filepath.Join(s.dir, key+digestExt)
}

// contentDigest 计算正文摘要，落盘与校验共用同一实现。
func contentDigest(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Load 返回通过摘要校验的解码位图。缺文件按未命中处理；摘要不符或解码失败
// 视为损坏条目，就地清除后按未命中处理。
func (s *diskStore) Load(key string) (*image.NRGBA, bool) {
	blob, err := os.ReadFile(s.blobPath(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("key", key).Warn("disk_read_failed")
		}
		return nil, false
	}

	wantRaw, err := os.ReadFile(s.digestPath(key))
	if err != nil {
		// 正文存在但摘要缺失，视为写入未完成
		return nil, false
	}

	want := strings.TrimSpace(string(wantRaw))
	if got := contentDigest(blob); got != want {
		s.logger.WithFields(logrus.Fields{"key": key, "reason": "digest_mismatch"}).Warn("disk_entry_corrupt")
		s.Remove(key)
		s.metrics.RecordSelfHeal()
		return nil, false
	}

	img, err := decodeBitmap(blob)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"key": key, "reason": "decode_failed"}).Warn("disk_entry_corrupt")
		s.Remove(key)
		s.metrics.RecordSelfHeal()
		return nil, false
	}
	return img, true
}

// Save 以临时文件 + rename 的方式先后发布正文与摘要，保证读取方永远看不到
// 半截正文；崩溃残留的孤立正文会因摘要缺失而按未命中处理。
func (s *diskStore) Save(key string, blob []byte, digest string) error {
	if err := writeFileAtomic(s.dir, s.blobPath(key), blob); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := writeFileAtomic(s.dir, s.digestPath(key), []byte(digest+"\n")); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	return nil
}

// Remove 尽力删除整组文件，文件不存在不算错误。
func (s *diskStore) Remove(key string) {
	for _, p := range []string{s.blobPath(key), s.digestPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("path", p).Warn("disk_remove_failed")
		}
	}
}

func writeFileAtomic(dir, target string, data []byte) error {
	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
