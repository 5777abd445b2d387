package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/any-hub/asset-hub/internal/fetch"
)

const tempPrefix = ".cache-"

// Tier 以 basePath 为根目录的扁平磁盘缓存，整个进程共享一份实例。
// 构造后处于 Unprovisioned，需调用 Provision 申请配额后才可用。
type Tier struct {
	basePath string
	quota    int64
	fsys     fs.FS

	state        atomic.Int32
	once         sync.Once
	provisionErr error

	usageMu sync.Mutex
	used    int64

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewTier 校验参数并返回未授予配额的缓存层，不做任何磁盘 IO。
func NewTier(basePath string, quota int64) (*Tier, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if quota <= 0 {
		return nil, fmt.Errorf("storage quota must be positive, got %d", quota)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	return &Tier{
		basePath: abs,
		quota:    quota,
		fsys:     os.DirFS(abs),
		locks:    make(map[string]*entryLock),
	}, nil
}

// Provision 申请配额：创建目录、统计已有条目占用，并确认文件系统仍能容纳剩余配额。
// 仅执行一次，失败后缓存层在进程生命周期内保持不可用。
func (t *Tier) Provision(ctx context.Context) error {
	t.once.Do(func() {
		t.provisionErr = t.provision(ctx)
	})
	return t.provisionErr
}

func (t *Tier) provision(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaDenied, err)
	}
	if err := os.MkdirAll(t.basePath, 0o755); err != nil {
		return fmt.Errorf("%w: create storage path: %v", ErrQuotaDenied, err)
	}

	used, err := t.measureUsage()
	if err != nil {
		return fmt.Errorf("%w: measure usage: %v", ErrQuotaDenied, err)
	}
	if used > t.quota {
		return fmt.Errorf("%w: existing entries use %d bytes, quota %d", ErrQuotaDenied, used, t.quota)
	}

	avail, known, err := availableBytes(t.basePath)
	if err != nil {
		return fmt.Errorf("%w: statfs: %v", ErrQuotaDenied, err)
	}
	if known && avail < t.quota-used {
		return fmt.Errorf("%w: %d bytes available, %d requested", ErrQuotaDenied, avail, t.quota-used)
	}

	t.usageMu.Lock()
	t.used = used
	t.usageMu.Unlock()
	t.state.Store(int32(StateReady))
	return nil
}

// measureUsage 汇总顶层条目大小，并清理上次进程遗留的临时文件。
func (t *Tier) measureUsage() (int64, error) {
	entries, err := os.ReadDir(t.basePath)
	if err != nil {
		return 0, err
	}
	var used int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), tempPrefix) {
			_ = os.Remove(filepath.Join(t.basePath, entry.Name()))
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		used += info.Size()
	}
	return used, nil
}

// State 返回当前生命周期状态。
func (t *Tier) State() State {
	if t == nil {
		return StateUnprovisioned
	}
	return State(t.state.Load())
}

// Ready 报告缓存层是否可用。
func (t *Tier) Ready() bool {
	return t.State() == StateReady
}

// Usage 返回已占用字节数与配额。
func (t *Tier) Usage() (used, quota int64) {
	t.usageMu.Lock()
	defer t.usageMu.Unlock()
	return t.used, t.quota
}

// BasePath 返回缓存根目录的绝对路径。
func (t *Tier) BasePath() string {
	return t.basePath
}

// Open 查找已存在的条目，不存在时返回 ErrNotFound。
func (t *Tier) Open(ctx context.Context, key string) (*Handle, error) {
	if !t.Ready() {
		return nil, ErrUnprovisioned
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	filePath, err := t.entryPath(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return &Handle{Key: key, FilePath: filePath}, nil
}

// OpenOrCreate 返回已有条目，或返回一个待写入的条目。待写入条目在首次
// Write 成功前对 Open 不可见，写入失败不会留下空条目。
func (t *Tier) OpenOrCreate(ctx context.Context, key string) (*Handle, error) {
	h, err := t.Open(ctx, key)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, ErrUnprovisioned):
		return nil, err
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	filePath, err := t.entryPath(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if info, statErr := os.Stat(filePath); statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("%w: %w: %s is a directory", ErrWriteFailed, ErrInvalidKey, key)
	}
	return &Handle{Key: key, FilePath: filePath, pending: true}, nil
}

// Read 通过与 fetch 相同的读取路径取得条目全文。
func (t *Tier) Read(ctx context.Context, h *Handle) (string, error) {
	if !t.Ready() {
		return "", ErrUnprovisioned
	}
	if h == nil || h.pending {
		return "", ErrNotFound
	}
	content, err := fetch.ReadText(ctx, t.fsys, h.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return content, nil
}

// Write 以整值替换的方式写入条目：先写临时文件再 rename，失败时原内容保持不变。
func (t *Tier) Write(ctx context.Context, h *Handle, content string) error {
	if !t.Ready() {
		return ErrUnprovisioned
	}
	if h == nil {
		return fmt.Errorf("%w: nil handle", ErrWriteFailed)
	}
	filePath, err := t.entryPath(h.Key)
	if err != nil {
		return err
	}

	unlock := t.lockEntry(h.Key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	var prev int64
	if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
		prev = info.Size()
	}
	need := int64(len(content))
	if err := t.reserve(prev, need); err != nil {
		return err
	}

	if err := t.replace(ctx, filePath, content); err != nil {
		t.release(prev, need)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	h.pending = false
	return nil
}

func (t *Tier) replace(ctx context.Context, filePath, content string) error {
	tempFile, err := os.CreateTemp(t.basePath, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, strings.NewReader(content))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// reserve 预占配额，prev 为被替换内容的大小。
func (t *Tier) reserve(prev, need int64) error {
	t.usageMu.Lock()
	defer t.usageMu.Unlock()
	projected := t.used - prev + need
	if projected > t.quota {
		return quotaError{need: projected, quota: t.quota}
	}
	t.used = projected
	return nil
}

func (t *Tier) release(prev, need int64) {
	t.usageMu.Lock()
	t.used += prev - need
	t.usageMu.Unlock()
}

func (t *Tier) lockEntry(key string) func() {
	t.mu.Lock()
	lock := t.locks[key]
	if lock == nil {
		lock = &entryLock{}
		t.locks[key] = lock
	}
	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		t.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// entryPath 将键映射为 basePath 下的单个文件，拒绝任何可能逃逸目录的键。
func (t *Tier) entryPath(key string) (string, error) {
	switch {
	case key == "", key == ".", key == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, "/\\\x00"):
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.HasPrefix(key, tempPrefix):
		return "", fmt.Errorf("%w: %q uses reserved prefix", ErrInvalidKey, key)
	}
	return filepath.Join(t.basePath, key), nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
