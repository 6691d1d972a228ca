// Package tag 定义角色标签的输出格式：每种格式把一条角色记录渲染为一段
// 文本，全部格式集中在进程级注册表中，按键查找。
package tag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charatag/charatag/internal/dataset"
)

const defaultFormatKey = "danbooru_tag"

var globalRegistry = newRegistry()

// Format 描述一种输出格式：Key 是 API 层使用的标识，Label 是界面展示名，
// Render 负责把记录转换为最终文本。
type Format struct {
	Key    string
	Label  string
	Render func(dataset.Record) string
}

type registry struct {
	mu      sync.RWMutex
	formats map[string]Format
}

func newRegistry() *registry {
	return &registry{formats: make(map[string]Format)}
}

// Register 将格式加入全局注册表，重复键会返回错误。
func Register(format Format) error {
	return globalRegistry.register(format)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(format Format) {
	if err := Register(format); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的格式定义。
func Resolve(key string) (Format, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的格式列表。
func List() []Format {
	return globalRegistry.list()
}

// Keys 返回所有已注册格式的键值，供诊断接口使用。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, format := range items {
		result[i] = format.Key
	}
	return result
}

// DefaultKey 返回调用方未指定格式时使用的缺省键。
func DefaultKey() string {
	return defaultFormatKey
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(format Format) error {
	key := r.normalizeKey(format.Key)
	if key == "" {
		return fmt.Errorf("format key is required")
	}
	if format.Render == nil {
		return fmt.Errorf("format %s requires a render function", key)
	}
	format.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formats[key]; exists {
		return fmt.Errorf("format %s already registered", key)
	}
	r.formats[key] = format
	return nil
}

func (r *registry) resolve(key string) (Format, bool) {
	if key == "" {
		return Format{}, false
	}
	normalized := r.normalizeKey(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	format, ok := r.formats[normalized]
	return format, ok
}

func (r *registry) list() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.formats) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.formats))
	for key := range r.formats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Format, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.formats[key])
	}
	return result
}
