package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absData, err := filepath.Abs(cfg.Global.DataDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析数据目录: %w", err)
	}
	cfg.Global.DataDir = absData

	absCache, err := filepath.Abs(cfg.Global.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDir = absCache

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5100)
	v.SetDefault("MetricsAddr", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("DataDir", "./data")
	v.SetDefault("CacheDir", "./storage")
	v.SetDefault("MemoryCacheMaxItems", 64)
	v.SetDefault("MemoryCacheMaxBytes", 256*1024*1024)
	v.SetDefault("MaxDownloadBytes", 10*1024*1024)
	v.SetDefault("ConnectTimeout", "5s")
	v.SetDefault("ReadTimeout", "15s")
	v.SetDefault("StoredMaxEdge", 1024)
	v.SetDefault("PreviewMaxEdge", 512)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5100
	}
	if g.MemoryCacheMaxItems == 0 {
		g.MemoryCacheMaxItems = 64
	}
	if g.MemoryCacheMaxBytes == 0 {
		g.MemoryCacheMaxBytes = 256 * 1024 * 1024
	}
	if g.MaxDownloadBytes == 0 {
		g.MaxDownloadBytes = 10 * 1024 * 1024
	}
	if g.ConnectTimeout.DurationValue() == 0 {
		g.ConnectTimeout = Duration(5 * time.Second)
	}
	if g.ReadTimeout.DurationValue() == 0 {
		g.ReadTimeout = Duration(15 * time.Second)
	}
	if g.StoredMaxEdge == 0 {
		g.StoredMaxEdge = 1024
	}
	if g.PreviewMaxEdge == 0 {
		g.PreviewMaxEdge = 512
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
