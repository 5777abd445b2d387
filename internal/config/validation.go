package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/any-hub/asset-hub/internal/assetpath"
)

var supportedLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
	"fatal": {},
	"panic": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, ok := supportedLogLevels[strings.ToLower(g.LogLevel)]; g.LogLevel != "" && !ok {
		return newFieldError("Global.LogLevel", "不支持的日志级别")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.StorageQuota <= 0 {
		return newFieldError("Global.StorageQuota", "必须大于 0")
	}

	a := c.Assets
	if err := validateRemoteRoot(a.RemoteRoot); err != nil {
		return fmt.Errorf("Assets.RemoteRoot: %w", err)
	}
	if a.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Assets.FetchTimeout", "必须大于 0")
	}
	if a.RefreshConcurrency < 0 {
		return newFieldError("Assets.RefreshConcurrency", "不能为负数")
	}
	if a.RefreshOnStart && len(a.Refresh) == 0 {
		return newFieldError("Assets.RefreshOnStart", "需要同时配置 Refresh 列表")
	}

	seen := map[string]struct{}{}
	for i, p := range a.Refresh {
		if err := assetpath.Validate(p); err != nil {
			return newFieldError(refreshField(i), err.Error())
		}
		if _, exists := seen[p]; exists {
			return newFieldError(refreshField(i), "重复")
		}
		seen[p] = struct{}{}
	}
	return nil
}

func validateRemoteRoot(raw string) error {
	if raw == "" {
		return errors.New("缺少远端地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，远端: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("远端缺少 Host: %s", raw)
	}
	if !strings.HasSuffix(raw, "/") {
		return fmt.Errorf("远端地址需以 / 结尾: %s", raw)
	}
	return nil
}
