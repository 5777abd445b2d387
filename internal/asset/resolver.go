package asset

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/asset-hub/internal/assetpath"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/fetch"
	"github.com/any-hub/asset-hub/internal/logging"
)

var (
	_ CacheTier = (*cache.Tier)(nil)
	_ Fetcher   = (*fetch.Fetcher)(nil)
)

// CacheTier 是 Resolver 依赖的缓存层能力，*cache.Tier 为默认实现。
type CacheTier interface {
	Ready() bool
	Open(ctx context.Context, key string) (*cache.Handle, error)
	OpenOrCreate(ctx context.Context, key string) (*cache.Handle, error)
	Read(ctx context.Context, h *cache.Handle) (string, error)
	Write(ctx context.Context, h *cache.Handle, content string) error
}

// Fetcher 是 Resolver 依赖的取数能力，*fetch.Fetcher 为默认实现。
type Fetcher interface {
	FetchLocal(ctx context.Context, path string) (string, error)
	FetchRemote(ctx context.Context, path string) (string, error)
}

// Resolver 按“缓存 → 内置资源”读取，按“远端 → 写缓存”更新。
type Resolver struct {
	tier    CacheTier
	fetcher Fetcher
	logger  *logrus.Logger
	remote  singleflight.Group
}

// NewResolver 构造 Resolver。tier 可以为空，此时等价于缓存层未就绪。
func NewResolver(tier CacheTier, fetcher Fetcher, logger *logrus.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		tier:    tier,
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

func (r *Resolver) cacheReady() bool {
	return r.tier != nil && r.tier.Ready()
}

// Get 读取 path：缓存就绪时先查缓存，任何缓存失败都回退到内置资源；不会访问远端。
func (r *Resolver) Get(ctx context.Context, path string) Result {
	started := time.Now()
	res := r.get(ctx, path)
	r.logResult(res, started)
	return res
}

func (r *Resolver) get(ctx context.Context, path string) Result {
	look := r.lookupCache(ctx, path)
	if look.status == lookupFound {
		return Result{Op: OpGet, Path: path, Content: look.content, Source: SourceCache}
	}
	r.logFallback(path, look)

	content, err := r.fetcher.FetchLocal(ctx, path)
	if err != nil {
		return Result{Op: OpGet, Path: path, Err: wrapError(path, classify(err, fetch.ErrFetchFailed))}
	}
	return Result{Op: OpGet, Path: path, Content: content, Source: SourceBundle}
}

func (r *Resolver) lookupCache(ctx context.Context, path string) lookup {
	if r.tier == nil {
		return miss(errNoCacheTier)
	}
	if !r.tier.Ready() {
		return miss(cache.ErrUnprovisioned)
	}
	key, err := assetpath.Encode(path)
	if err != nil {
		return failed(err)
	}
	h, err := r.tier.Open(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return miss(err)
		}
		return failed(classify(err, cache.ErrOpenFailed))
	}
	content, err := r.tier.Read(ctx, h)
	if err != nil {
		return failed(classify(err, cache.ErrCorrupt))
	}
	return found(content)
}

// Update 从远端刷新 path 并写入缓存。第二个返回值为 false 表示静默 no-op：
// 缓存层未就绪，或远端返回空内容；此时不产生任何消息，缓存保持原状。
func (r *Resolver) Update(ctx context.Context, path string) (Result, bool) {
	started := time.Now()
	if !r.cacheReady() {
		r.logSkip(path, "cache_unprovisioned")
		return Result{Op: OpUpdate, Path: path}, false
	}
	res, ok := r.update(ctx, path)
	if ok {
		r.logResult(res, started)
	}
	return res, ok
}

func (r *Resolver) update(ctx context.Context, path string) (Result, bool) {
	fail := func(err error) (Result, bool) {
		return Result{Op: OpUpdate, Path: path, Err: wrapError(path, err)}, true
	}

	key, err := assetpath.Encode(path)
	if err != nil {
		return fail(err)
	}

	content, err := r.fetchRemote(ctx, path)
	if err != nil {
		return fail(classify(err, fetch.ErrFetchFailed))
	}
	if content == "" {
		r.logSkip(path, "empty_remote_payload")
		return Result{Op: OpUpdate, Path: path}, false
	}

	h, err := r.tier.OpenOrCreate(ctx, key)
	if err != nil {
		return fail(classify(err, cache.ErrWriteFailed))
	}
	created := h.Pending()
	if err := r.tier.Write(ctx, h, content); err != nil {
		return fail(classify(err, cache.ErrWriteFailed))
	}
	if created {
		fields := logging.AssetFields(string(OpUpdate), path)
		fields["key"] = key
		r.logger.WithFields(fields).Debug("cache_entry_created")
	}
	return Result{Op: OpUpdate, Path: path, Source: SourceRemote}, true
}

// fetchRemote 合并同一路径上并发的远端请求，每个调用方仍各自得到终态结果。
func (r *Resolver) fetchRemote(ctx context.Context, path string) (string, error) {
	v, err, _ := r.remote.Do(path, func() (any, error) {
		return r.fetcher.FetchRemote(context.WithoutCancel(ctx), path)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetAsync 异步执行 Get，通道恰好收到一个结果后关闭。调用方取消 ctx 不会中断已发起的操作。
func (r *Resolver) GetAsync(ctx context.Context, path string) <-chan Result {
	out := make(chan Result, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(out)
		out <- r.Get(ctx, path)
	}()
	return out
}

// UpdateAsync 异步执行 Update；静默 no-op 时通道不产生结果直接关闭。
func (r *Resolver) UpdateAsync(ctx context.Context, path string) <-chan Result {
	out := make(chan Result, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(out)
		if res, ok := r.Update(ctx, path); ok {
			out <- res
		}
	}()
	return out
}

// UpdateMany 以最多 limit 个并发刷新 paths，按输入顺序返回产生了消息的结果。
func (r *Resolver) UpdateMany(ctx context.Context, paths []string, limit int) []Result {
	slots := make([]*Result, len(paths))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			if res, ok := r.Update(ctx, path); ok {
				slots[i] = &res
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]Result, 0, len(paths))
	for _, res := range slots {
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}

func (r *Resolver) logResult(res Result, started time.Time) {
	fields := logging.AssetFields(string(res.Op), res.Path)
	fields["source"] = string(res.Source)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if res.Err != nil {
		fields["error_kind"] = string(KindOf(res.Err))
		r.logger.WithFields(fields).WithError(res.Err).Warn("asset_failed")
		return
	}
	r.logger.WithFields(fields).Info("asset_complete")
}

func (r *Resolver) logFallback(path string, look lookup) {
	fields := logging.AssetFields(string(OpGet), path)
	fields["fallback"] = string(SourceBundle)
	if look.status == lookupFailed {
		fields["error_kind"] = string(KindOf(look.err))
		r.logger.WithFields(fields).WithError(look.err).Warn("cache_lookup_failed")
		return
	}
	r.logger.WithFields(fields).Debug("cache_miss")
}

func (r *Resolver) logSkip(path, reason string) {
	fields := logging.AssetFields(string(OpUpdate), path)
	fields["reason"] = reason
	r.logger.WithFields(fields).Info("update_skipped")
}
