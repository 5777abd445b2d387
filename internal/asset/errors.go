package asset

import (
	"errors"
	"fmt"

	"github.com/any-hub/asset-hub/internal/assetpath"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/fetch"
)

// Kind 是失败类别，出现在消息的 error.kind 字段中。
type Kind string

const (
	KindUnprovisioned    Kind = "storage_unprovisioned"
	KindCacheMiss        Kind = "cache_miss"
	KindCacheOpenFailed  Kind = "cache_open_failed"
	KindCacheReadCorrupt Kind = "cache_read_corrupt"
	KindCacheWriteFailed Kind = "cache_write_failed"
	KindFetchFailed      Kind = "fetch_failed"
	KindInvalidPath      Kind = "invalid_path"
	// KindInternal 标记未被任何层归类的错误，正常路径下不应出现。
	KindInternal Kind = "internal"
)

// Error 描述某个路径上的终态失败。
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回 err 对应的类别；无法识别时返回 KindInternal。
func KindOf(err error) Kind {
	var assetErr *Error
	switch {
	case errors.As(err, &assetErr):
		return assetErr.Kind
	case errors.Is(err, cache.ErrUnprovisioned):
		return KindUnprovisioned
	case errors.Is(err, cache.ErrNotFound):
		return KindCacheMiss
	case errors.Is(err, cache.ErrCorrupt):
		return KindCacheReadCorrupt
	case errors.Is(err, cache.ErrWriteFailed):
		return KindCacheWriteFailed
	case errors.Is(err, cache.ErrOpenFailed):
		return KindCacheOpenFailed
	case errors.Is(err, assetpath.ErrInvalidPath), errors.Is(err, cache.ErrInvalidKey):
		return KindInvalidPath
	case errors.Is(err, fetch.ErrFetchFailed):
		return KindFetchFailed
	default:
		return KindInternal
	}
}

// classify 为未归类的错误补上所在阶段的哨兵错误，已归类的错误原样返回。
func classify(err, stage error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	return fmt.Errorf("%w: %w", stage, err)
}

func wrapError(path string, err error) error {
	if err == nil {
		return nil
	}
	var assetErr *Error
	if errors.As(err, &assetErr) {
		return err
	}
	return &Error{Kind: KindOf(err), Path: path, Err: err}
}
