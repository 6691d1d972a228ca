package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort == 0 {
		t.Fatalf("ListenPort 应当被解析")
	}
	if cfg.Global.ConnectTimeout.DurationValue() == 0 {
		t.Fatalf("ConnectTimeout 应该自动填充默认值")
	}
	if cfg.Global.ReadTimeout.DurationValue() == 0 {
		t.Fatalf("ReadTimeout 应该自动填充默认值")
	}
	if cfg.Global.MemoryCacheMaxItems != 64 {
		t.Fatalf("MemoryCacheMaxItems 默认值应为 64, got %d", cfg.Global.MemoryCacheMaxItems)
	}
	if cfg.Global.MaxDownloadBytes != 10*1024*1024 {
		t.Fatalf("MaxDownloadBytes 默认值应为 10MiB, got %d", cfg.Global.MaxDownloadBytes)
	}
	if !filepath.IsAbs(cfg.Global.DataDir) {
		t.Fatalf("DataDir 应被归一化为绝对路径: %s", cfg.Global.DataDir)
	}
	if !filepath.IsAbs(cfg.Global.CacheDir) {
		t.Fatalf("CacheDir 应被归一化为绝对路径: %s", cfg.Global.CacheDir)
	}
}

func TestLoadFailsWhenFileMissing(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("不存在的配置文件应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRejectsBadLimits(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.Global.DataDir = "" }},
		{"empty cache dir", func(c *Config) { c.Global.CacheDir = "" }},
		{"zero memory items", func(c *Config) { c.Global.MemoryCacheMaxItems = 0 }},
		{"negative memory bytes", func(c *Config) { c.Global.MemoryCacheMaxBytes = -1 }},
		{"zero download cap", func(c *Config) { c.Global.MaxDownloadBytes = 0 }},
		{"zero connect timeout", func(c *Config) { c.Global.ConnectTimeout = 0 }},
		{"zero read timeout", func(c *Config) { c.Global.ReadTimeout = 0 }},
		{"zero stored edge", func(c *Config) { c.Global.StoredMaxEdge = 0 }},
		{"preview above stored", func(c *Config) { c.Global.PreviewMaxEdge = c.Global.StoredMaxEdge + 1 }},
		{"bad metrics addr", func(c *Config) { c.Global.MetricsAddr = "no-port" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("非法配置应返回错误")
			}
		})
	}
}

func TestValidateAcceptsMetricsAddrForms(t *testing.T) {
	for _, addr := range []string{":9100", "127.0.0.1:9100", ""} {
		cfg := validConfig()
		cfg.Global.MetricsAddr = addr
		if err := cfg.Validate(); err != nil {
			t.Fatalf("MetricsAddr=%q 应当合法: %v", addr, err)
		}
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:          5100,
			DataDir:             "./data",
			CacheDir:            "./storage",
			MemoryCacheMaxItems: 64,
			MemoryCacheMaxBytes: 256 * 1024 * 1024,
			MaxDownloadBytes:    10 * 1024 * 1024,
			ConnectTimeout:      Duration(5 * time.Second),
			ReadTimeout:         Duration(15 * time.Second),
			StoredMaxEdge:       1024,
			PreviewMaxEdge:      512,
		},
	}
}
