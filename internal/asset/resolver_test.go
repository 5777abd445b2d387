package asset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/fetch"
)

const hostsPath = "httpsb/blacklisted-hosts.txt"
const hostsKey = "httpsb___blacklisted-hosts.txt"

func newTestResolver(t *testing.T, tier CacheTier, fetcher Fetcher) *Resolver {
	t.Helper()
	r, err := NewResolver(tier, fetcher, nil)
	require.NoError(t, err)
	return r
}

func TestNewResolverRequiresFetcher(t *testing.T) {
	_, err := NewResolver(nil, nil, nil)
	assert.Error(t, err)
}

func TestGetReturnsCachedContentWithoutFetching(t *testing.T) {
	tier := newMemoryTier(true)
	tier.seed(hostsKey, "cached\n")
	fetcher := newStubFetcher()

	res := newTestResolver(t, tier, fetcher).Get(context.Background(), hostsPath)

	require.NoError(t, res.Err)
	assert.Equal(t, "cached\n", res.Content)
	assert.Equal(t, SourceCache, res.Source)
	local, remote := fetcher.counts()
	assert.Zero(t, local)
	assert.Zero(t, remote)
}

func TestGetFallsBackToBundleOnMiss(t *testing.T) {
	tier := newMemoryTier(true)
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "a.example.com\n"

	res := newTestResolver(t, tier, fetcher).Get(context.Background(), hostsPath)

	require.NoError(t, res.Err)
	assert.Equal(t, "a.example.com\n", res.Content)
	assert.Equal(t, SourceBundle, res.Source)
	assert.Equal(t, 1, tier.openCalls)
}

func TestGetSkipsCacheWhenUnprovisioned(t *testing.T) {
	tier := newMemoryTier(false)
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "a.example.com\n"

	res := newTestResolver(t, tier, fetcher).Get(context.Background(), hostsPath)

	require.NoError(t, res.Err)
	assert.Equal(t, "a.example.com\n", res.Content)
	assert.Zero(t, tier.openCalls, "unprovisioned cache must not be opened")
}

func TestGetWithoutTierUsesBundle(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "bundled"

	res := newTestResolver(t, nil, fetcher).Get(context.Background(), hostsPath)
	require.NoError(t, res.Err)
	assert.Equal(t, "bundled", res.Content)
}

func TestGetFallsBackOnCorruptEntry(t *testing.T) {
	tier := newMemoryTier(true)
	tier.seed(hostsKey, "cached")
	tier.readErr = cache.ErrCorrupt
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "bundled"

	res := newTestResolver(t, tier, fetcher).Get(context.Background(), hostsPath)

	require.NoError(t, res.Err)
	assert.Equal(t, "bundled", res.Content)
	assert.Equal(t, SourceBundle, res.Source)
}

func TestGetFallsBackOnOpenError(t *testing.T) {
	tier := newMemoryTier(true)
	tier.openErr = errors.New("disk on fire")
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "bundled"

	res := newTestResolver(t, tier, fetcher).Get(context.Background(), hostsPath)
	require.NoError(t, res.Err)
	assert.Equal(t, "bundled", res.Content)
}

func TestGetReportsBundleFailure(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.localErr = &fetch.Error{Origin: fetch.OriginLocal, Location: hostsPath, Err: errors.New("gone")}

	res := newTestResolver(t, newMemoryTier(true), fetcher).Get(context.Background(), hostsPath)

	require.Error(t, res.Err)
	assert.Equal(t, hostsPath, res.Path)
	assert.Equal(t, KindFetchFailed, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, fetch.ErrFetchFailed)
}

func TestGetInvalidPathStillTriesBundle(t *testing.T) {
	tier := newMemoryTier(true)
	fetcher := newStubFetcher()
	fetcher.local["odd___name"] = "bundled"

	res := newTestResolver(t, tier, fetcher).Get(context.Background(), "odd___name")
	require.NoError(t, res.Err)
	assert.Equal(t, "bundled", res.Content)
	assert.Zero(t, tier.openCalls)
}

func TestUpdateWritesRemoteContent(t *testing.T) {
	tier := newMemoryTier(true)
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = "X"
	r := newTestResolver(t, tier, fetcher)

	res, ok := r.Update(context.Background(), hostsPath)
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Content, "update success carries no content")
	assert.Equal(t, SourceRemote, res.Source)

	got := r.Get(context.Background(), hostsPath)
	require.NoError(t, got.Err)
	assert.Equal(t, "X", got.Content)
	assert.Equal(t, SourceCache, got.Source)
}

func TestUpdateEmptyPayloadIsSilentNoOp(t *testing.T) {
	tier := newMemoryTier(true)
	tier.seed(hostsKey, "Y")
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = ""
	r := newTestResolver(t, tier, fetcher)

	_, ok := r.Update(context.Background(), hostsPath)
	assert.False(t, ok)
	assert.Zero(t, tier.writeCalls)

	got := r.Get(context.Background(), hostsPath)
	require.NoError(t, got.Err)
	assert.Equal(t, "Y", got.Content)
}

func TestUpdateUnprovisionedDoesNothing(t *testing.T) {
	tier := newMemoryTier(false)
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = "X"

	_, ok := newTestResolver(t, tier, fetcher).Update(context.Background(), hostsPath)

	assert.False(t, ok)
	local, remote := fetcher.counts()
	assert.Zero(t, remote, "no remote fetch when cache is unprovisioned")
	assert.Zero(t, local, "update never falls back to bundle")
	assert.Zero(t, tier.writeCalls)
}

func TestUpdateRemoteFailure(t *testing.T) {
	tier := newMemoryTier(true)
	tier.seed(hostsKey, "Y")
	fetcher := newStubFetcher()
	fetcher.remoteErr = &fetch.Error{Origin: fetch.OriginRemote, Location: "x", Err: context.DeadlineExceeded}
	r := newTestResolver(t, tier, fetcher)

	res, ok := r.Update(context.Background(), hostsPath)
	require.True(t, ok)
	require.Error(t, res.Err)
	assert.Equal(t, KindFetchFailed, KindOf(res.Err))
	assert.Equal(t, hostsPath, res.Path)
	assert.Zero(t, tier.writeCalls)

	got := r.Get(context.Background(), hostsPath)
	assert.Equal(t, "Y", got.Content)
}

func TestUpdateWriteFailure(t *testing.T) {
	tier := newMemoryTier(true)
	tier.writeErr = cache.ErrWriteFailed
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = "X"

	res, ok := newTestResolver(t, tier, fetcher).Update(context.Background(), hostsPath)
	require.True(t, ok)
	assert.Equal(t, KindCacheWriteFailed, KindOf(res.Err))
}

func TestUpdateOpenFailure(t *testing.T) {
	tier := newMemoryTier(true)
	tier.openErr = cache.ErrInvalidKey
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = "X"

	res, ok := newTestResolver(t, tier, fetcher).Update(context.Background(), hostsPath)
	require.True(t, ok)
	require.Error(t, res.Err)
	assert.Zero(t, tier.writeCalls)
}

func TestUpdateInvalidPath(t *testing.T) {
	fetcher := newStubFetcher()
	res, ok := newTestResolver(t, newMemoryTier(true), fetcher).Update(context.Background(), "a___b")
	require.True(t, ok)
	assert.Equal(t, KindInvalidPath, KindOf(res.Err))
	_, remote := fetcher.counts()
	assert.Zero(t, remote)
}

func TestUpdateCoalescesConcurrentRemoteFetches(t *testing.T) {
	tier := newMemoryTier(true)
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = "X"
	fetcher.remoteGate = make(chan struct{})
	r := newTestResolver(t, tier, fetcher)

	first := r.UpdateAsync(context.Background(), hostsPath)
	require.Eventually(t, func() bool {
		_, remote := fetcher.counts()
		return remote == 1
	}, time2s, tick)
	second := r.UpdateAsync(context.Background(), hostsPath)
	close(fetcher.remoteGate)

	for _, ch := range []<-chan Result{first, second} {
		res, ok := <-ch
		require.True(t, ok)
		require.NoError(t, res.Err)
	}
	_, remote := fetcher.counts()
	assert.LessOrEqual(t, remote, 2)
}

func TestGetAsyncDeliversExactlyOnce(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "bundled"
	r := newTestResolver(t, newMemoryTier(false), fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	ch := r.GetAsync(ctx, hostsPath)
	cancel()

	res, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "bundled", res.Content)
	_, ok = <-ch
	assert.False(t, ok, "channel closes after the single result")
}

func TestUpdateAsyncClosesOnNoOp(t *testing.T) {
	r := newTestResolver(t, newMemoryTier(false), newStubFetcher())
	_, ok := <-r.UpdateAsync(context.Background(), hostsPath)
	assert.False(t, ok)
}

func TestUpdateManyKeepsInputOrder(t *testing.T) {
	tier := newMemoryTier(true)
	fetcher := newStubFetcher()
	fetcher.remote["a.txt"] = "A"
	fetcher.remote["b.txt"] = ""
	fetcher.remote["c.txt"] = "C"
	r := newTestResolver(t, tier, fetcher)

	results := r.UpdateMany(context.Background(), []string{"a.txt", "b.txt", "c.txt"}, 2)

	require.Len(t, results, 2, "empty payload produces no result")
	assert.Equal(t, "a.txt", results[0].Path)
	assert.Equal(t, "c.txt", results[1].Path)
	assert.Equal(t, "A", tier.entries["a.txt"])
	assert.Equal(t, "C", tier.entries["c.txt"])
}

func TestResultMessage(t *testing.T) {
	msg := Result{Op: OpGet, Path: hostsPath, Content: "x", Source: SourceCache}.Message()
	assert.Equal(t, Message{What: OpGet, Path: hostsPath, Content: "x", Source: SourceCache}, msg)

	msg = Result{Op: OpUpdate, Path: hostsPath, Source: SourceRemote, Content: "ignored"}.Message()
	assert.Empty(t, msg.Content)
	assert.Nil(t, msg.Error)

	msg = Result{Op: OpUpdate, Path: hostsPath, Err: &Error{Kind: KindFetchFailed, Path: hostsPath, Err: errors.New("timeout")}}.Message()
	require.NotNil(t, msg.Error)
	assert.Equal(t, KindFetchFailed, msg.Error.Kind)
	assert.Empty(t, msg.Source)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnprovisioned, KindOf(cache.ErrUnprovisioned))
	assert.Equal(t, KindCacheMiss, KindOf(cache.ErrNotFound))
	assert.Equal(t, KindCacheReadCorrupt, KindOf(cache.ErrCorrupt))
	assert.Equal(t, KindCacheWriteFailed, KindOf(cache.ErrQuotaExceeded))
	assert.Equal(t, KindCacheOpenFailed, KindOf(cache.ErrOpenFailed))
	assert.Equal(t, KindInternal, KindOf(errors.New("other")))
}

func TestUpdateClassifiesRawCreateError(t *testing.T) {
	tier := newMemoryTier(true)
	tier.createErr = errors.New("disk unplugged")
	fetcher := newStubFetcher()
	fetcher.remote[hostsPath] = "fresh"
	r, err := NewResolver(tier, fetcher, nil)
	require.NoError(t, err)

	res, ok := r.Update(context.Background(), hostsPath)
	require.True(t, ok)
	require.Error(t, res.Err)
	assert.Equal(t, KindCacheWriteFailed, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, cache.ErrWriteFailed)
	assert.Zero(t, tier.writeCalls)
}

func TestGetClassifiesRawOpenErrorAndFallsBack(t *testing.T) {
	tier := newMemoryTier(true)
	tier.openErr = errors.New("stat failed")
	fetcher := newStubFetcher()
	fetcher.local[hostsPath] = "bundled"
	r, err := NewResolver(tier, fetcher, nil)
	require.NoError(t, err)

	look := r.lookupCache(context.Background(), hostsPath)
	assert.Equal(t, lookupFailed, look.status)
	assert.Equal(t, KindCacheOpenFailed, KindOf(look.err))

	res := r.Get(context.Background(), hostsPath)
	require.NoError(t, res.Err)
	assert.Equal(t, SourceBundle, res.Source)
	assert.Equal(t, "bundled", res.Content)
}

func TestUpdateClassifiesRawRemoteError(t *testing.T) {
	tier := newMemoryTier(true)
	fetcher := newStubFetcher()
	fetcher.remoteErr = errors.New("reset by peer")
	r, err := NewResolver(tier, fetcher, nil)
	require.NoError(t, err)

	res, ok := r.Update(context.Background(), hostsPath)
	require.True(t, ok)
	assert.Equal(t, KindFetchFailed, KindOf(res.Err))
}
