package cache

import (
	"errors"
	"fmt"
)

// State 描述缓存层生命周期，只会从 Unprovisioned 迁移到 Ready 一次。
type State int32

const (
	StateUnprovisioned State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	default:
		return "unprovisioned"
	}
}

// DefaultQuota 是未配置 StorageQuota 时申请的配额（16 MiB）。
const DefaultQuota int64 = 16 * 1024 * 1024

// Handle 指向一个缓存条目。pending 表示条目由 OpenOrCreate 产生且尚未写入。
type Handle struct {
	Key      string
	FilePath string
	pending  bool
}

// Pending 报告条目是否尚未落盘。
func (h *Handle) Pending() bool {
	return h != nil && h.pending
}

var (
	// ErrUnprovisioned 表示配额尚未授予，缓存层不可用。
	ErrUnprovisioned = errors.New("cache storage unprovisioned")
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorrupt 表示条目存在但无法读取。
	ErrCorrupt = errors.New("cache entry unreadable")
	// ErrWriteFailed 表示整值写入失败，原内容保持不变。
	ErrWriteFailed = errors.New("cache write failed")
	// ErrQuotaExceeded 表示写入后会超出已授予的配额，同时匹配 ErrWriteFailed。
	ErrQuotaExceeded = fmt.Errorf("%w: quota exceeded", ErrWriteFailed)
	// ErrOpenFailed 表示条目状态无法确定（非不存在），例如 stat 失败或 ctx 已取消。
	ErrOpenFailed = errors.New("cache open failed")
	// ErrQuotaDenied 表示文件系统无法满足配额申请。
	ErrQuotaDenied = errors.New("cache quota denied")
	// ErrInvalidKey 表示键无法安全地映射为单个文件名。
	ErrInvalidKey = errors.New("invalid cache key")
)

// quotaError 匹配 ErrQuotaExceeded，经由它也匹配 ErrWriteFailed。
type quotaError struct {
	need, quota int64
}

func (e quotaError) Error() string {
	return fmt.Sprintf("%v: need %d bytes, quota %d", ErrQuotaExceeded, e.need, e.quota)
}

func (e quotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
