package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// DefaultRemoteRoot 是资源更新的远端根地址，路径原样拼接在其后。
	DefaultRemoteRoot = "https://raw2.github.com/gorhill/httpswitchboard/master/"
	// DefaultStorageQuota 是缓存层申请的配额（16 MiB）。
	DefaultStorageQuota int64 = 16 * 1024 * 1024
	// DefaultBundleDir 是内置资源相对可执行文件的目录名。
	DefaultBundleDir = "assets"
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
	applyAssetsDefaults(&cfg.Assets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	bundle, err := resolveBundlePath(cfg.Assets.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析内置资源目录: %w", err)
	}
	cfg.Assets.BundlePath = bundle

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StorageQuota", DefaultStorageQuota)
	v.SetDefault("Assets.RemoteRoot", DefaultRemoteRoot)
	v.SetDefault("Assets.FetchTimeout", "30s")
	v.SetDefault("Assets.RefreshConcurrency", 4)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.StorageQuota == 0 {
		g.StorageQuota = DefaultStorageQuota
	}
}

func applyAssetsDefaults(a *AssetsConfig) {
	a.RemoteRoot = strings.TrimSpace(a.RemoteRoot)
	if a.RemoteRoot == "" {
		a.RemoteRoot = DefaultRemoteRoot
	}
	if a.FetchTimeout.DurationValue() == 0 {
		a.FetchTimeout = Duration(30 * time.Second)
	}
	if a.RefreshConcurrency == 0 {
		a.RefreshConcurrency = 4
	}
	refresh := a.Refresh[:0]
	for _, p := range a.Refresh {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			refresh = append(refresh, trimmed)
		}
	}
	a.Refresh = refresh
}

// resolveBundlePath 未配置时以可执行文件所在目录下的 assets 作为安装根目录。
func resolveBundlePath(raw string) (string, error) {
	if raw != "" {
		return filepath.Abs(raw)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), DefaultBundleDir), nil
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
