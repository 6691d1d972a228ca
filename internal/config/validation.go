package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.DataDir == "" {
		return newFieldError("Global.DataDir", "不能为空")
	}
	if g.CacheDir == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if g.MemoryCacheMaxItems <= 0 {
		return newFieldError("Global.MemoryCacheMaxItems", "必须大于 0")
	}
	if g.MemoryCacheMaxBytes <= 0 {
		return newFieldError("Global.MemoryCacheMaxBytes", "必须大于 0")
	}
	if g.MaxDownloadBytes <= 0 {
		return newFieldError("Global.MaxDownloadBytes", "必须大于 0")
	}
	if g.ConnectTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ConnectTimeout", "必须大于 0")
	}
	if g.ReadTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ReadTimeout", "必须大于 0")
	}
	if g.StoredMaxEdge <= 0 {
		return newFieldError("Global.StoredMaxEdge", "必须大于 0")
	}
	if g.PreviewMaxEdge <= 0 {
		return newFieldError("Global.PreviewMaxEdge", "必须大于 0")
	}
	if g.PreviewMaxEdge > g.StoredMaxEdge {
		return newFieldError("Global.PreviewMaxEdge", "不能大于 StoredMaxEdge")
	}
	if strings.TrimSpace(g.MetricsAddr) != "" {
		if err := validateListenAddr(g.MetricsAddr); err != nil {
			return fmt.Errorf("Global.MetricsAddr: %w", err)
		}
	}

	return nil
}

// validateListenAddr 校验 host:port 形式的监听地址，host 可以为空。
func validateListenAddr(raw string) error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("监听地址格式应为 host:port: %w", err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("端口必须在 1-65535: %s", port)
	}
	return nil
}
