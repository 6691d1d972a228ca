// Package dataset 维护角色数据集目录：扫描 JSON 文件、按 mtime 缓存解析结果，
// 并提供展示名级别的查找。所有磁盘读取都被限制在数据目录以内。
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/metrics"
)

// ErrOutsideDataDir 表示请求的数据集路径试图逃逸数据目录。
var ErrOutsideDataDir = errors.New("dataset path escapes data directory")

type fileEntry struct {
	modTime time.Time
	records []Record
}

type namesCache struct {
	loaded    bool
	signature string
	names     []string
}

// Library 是数据集目录的进程内视图。文件按 mtime 缓存，未变化的文件不会
// 被重复解析；全量角色名并集另按目录签名缓存。
type Library struct {
	dir     string
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	files map[string]*fileEntry
	names namesCache
}

// NewLibrary 以 dir 为根目录构建 Library。目录此刻不必存在，缺失目录会在
// 扫描时记录告警并表现为空数据集列表。
func NewLibrary(dir string, logger *logrus.Logger, m *metrics.Metrics) (*Library, error) {
	if dir == "" {
		return nil, errors.New("data dir required")
	}
	if logger == nil {
		return nil, errors.New("logger required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	return &Library{
		dir:     abs,
		logger:  logger,
		metrics: m,
		files:   make(map[string]*fileEntry),
	}, nil
}

// Dir 返回解析后的数据目录绝对路径。
func (l *Library) Dir() string {
	return l.dir
}

// Files 返回数据目录下全部数据集文件名（仅文件名，升序）。
func (l *Library) Files() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.logger.WithError(err).WithField("dir", l.dir).Warn("data_dir_unavailable")
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// resolvePath 把数据集名称解析为数据目录内的绝对路径，拒绝任何形式的逃逸。
func (l *Library) resolvePath(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("dataset name required")
	}

	abs, err := filepath.Abs(filepath.Join(l.dir, filepath.FromSlash(trimmed)))
	if err != nil {
		return "", fmt.Errorf("resolve dataset path: %w", err)
	}
	if !strings.HasPrefix(abs, l.dir+string(filepath.Separator)) {
		return "", ErrOutsideDataDir
	}
	return abs, nil
}

// Records 返回数据集的全部角色记录。文件 mtime 未变化时直接复用上次解析
// 结果，变化时重新读取并替换缓存。
func (l *Library) Records(name string) ([]Record, error) {
	path, err := l.resolvePath(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}

	l.mu.RLock()
	if entry, ok := l.files[path]; ok && entry.modTime.Equal(info.ModTime()) {
		records := entry.records
		l.mu.RUnlock()
		return records, nil
	}
	l.mu.RUnlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", name, err)
	}

	l.mu.Lock()
	l.files[path] = &fileEntry{modTime: info.ModTime(), records: records}
	l.mu.Unlock()

	l.metrics.RecordDatasetReload()
	l.logger.WithFields(logrus.Fields{"dataset": name, "characters": len(records)}).Info("dataset_loaded")
	return records, nil
}

// CharacterNames 按记录顺序返回数据集中可展示的角色名，无名记录被跳过。
func (l *Library) CharacterNames(name string) ([]string, error) {
	records, err := l.Records(name)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		display := record.DisplayName()
		if strings.TrimSpace(display) == "" {
			continue
		}
		names = append(names, display)
	}
	return names, nil
}

// Find 在数据集中按展示名精确匹配角色，目标名两侧空白会被忽略。
func (l *Library) Find(name, displayName string) (Record, bool, error) {
	records, err := l.Records(name)
	if err != nil {
		return Record{}, false, err
	}

	target := strings.TrimSpace(displayName)
	if target == "" {
		return Record{}, false, nil
	}
	for _, record := range records {
		if record.DisplayName() == target {
			return record, true, nil
		}
	}
	return Record{}, false, nil
}

// AllNames 返回所有数据集的角色名并集（去重、升序）。结果按 “文件名:mtime”
// 联合签名缓存，目录内容未变化时不会重复扫描解析。
func (l *Library) AllNames() []string {
	files := l.Files()

	sigParts := make([]string, 0, len(files))
	for _, file := range files {
		path, err := l.resolvePath(file)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		sigParts = append(sigParts, fmt.Sprintf("%s:%d", file, info.ModTime().UnixNano()))
	}
	signature := strings.Join(sigParts, "|")

	l.mu.RLock()
	if l.names.loaded && l.names.signature == signature {
		names := l.names.names
		l.mu.RUnlock()
		return names
	}
	l.mu.RUnlock()

	seen := make(map[string]struct{})
	var names []string
	for _, file := range files {
		records, err := l.Records(file)
		if err != nil {
			l.logger.WithError(err).WithField("dataset", file).Warn("dataset_skipped")
			continue
		}
		for _, record := range records {
			display := record.DisplayName()
			if strings.TrimSpace(display) == "" {
				continue
			}
			if _, ok := seen[display]; ok {
				continue
			}
			seen[display] = struct{}{}
			names = append(names, display)
		}
	}
	sort.Strings(names)

	l.mu.Lock()
	l.names = namesCache{loaded: true, signature: signature, names: names}
	l.mu.Unlock()

	return names
}
