package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"
)

// DefaultTimeout 在未配置 Timeout 时约束每次取数。
const DefaultTimeout = 30 * time.Second

// Options 描述 Fetcher 的依赖；Bundle 与 RemoteRoot 至少需要提供一个才有意义。
type Options struct {
	Client     *http.Client
	RemoteRoot string
	Bundle     fs.FS
	Timeout    time.Duration
}

// Fetcher 负责单次本地/远端文本读取。
type Fetcher struct {
	client     *http.Client
	remoteRoot string
	bundle     fs.FS
	timeout    time.Duration
}

// New 根据 Options 构建 Fetcher，缺省使用 http.DefaultClient 与 DefaultTimeout。
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:     client,
		remoteRoot: opts.RemoteRoot,
		bundle:     opts.Bundle,
		timeout:    timeout,
	}
}

// RemoteURL 返回 path 对应的远端地址，path 原样拼接在 RemoteRoot 之后。
func (f *Fetcher) RemoteURL(path string) string {
	return f.remoteRoot + path
}

// FetchLocal 从随程序分发的只读资源目录读取 path。
func (f *Fetcher) FetchLocal(ctx context.Context, path string) (string, error) {
	if f.bundle == nil {
		return "", newError(OriginLocal, path, errors.New("bundle not configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	content, err := ReadText(ctx, f.bundle, path)
	if err != nil {
		return "", newError(OriginLocal, path, err)
	}
	return content, nil
}

// FetchRemote 从远端读取 path。2xx 且空响应体时返回空字符串与 nil，
// 是否视为“无更新”由调用方决定。
func (f *Fetcher) FetchRemote(ctx context.Context, path string) (string, error) {
	target := f.RemoteURL(path)
	if f.remoteRoot == "" {
		return "", newError(OriginRemote, target, errors.New("remote root not configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", newError(OriginRemote, target, err)
	}
	req.Header.Set("Accept", "text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", newError(OriginRemote, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newError(OriginRemote, target, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var buf bytes.Buffer
	if err := readAll(ctx, &buf, resp.Body); err != nil {
		return "", newError(OriginRemote, target, err)
	}
	return buf.String(), nil
}
