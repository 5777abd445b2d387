// Package assetpath 将层级逻辑路径（如 httpsb/blacklisted-hosts.txt）映射为扁平的缓存键，
// 缓存层因此无需维护目录树。编码在不同进程之间保持稳定，之前写入的条目可被后续进程读取。
//
// 分隔符两侧紧挨下划线的路径（如 a_/b）会被拒绝，以保证不同路径得到不同的键。
// 这类路径读取时跳过缓存直接使用内置资源，更新时以 invalid_path 失败且不访问远端。
package assetpath

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator 是逻辑路径的层级分隔符。
	Separator = "/"
	// Marker 替换编码后键中的每个分隔符，逻辑路径本身不得包含该序列。
	Marker = "___"
)

// ErrInvalidPath 表示逻辑路径不满足编码前置条件。
var ErrInvalidPath = errors.New("invalid asset path")

// Validate 检查路径能否被无歧义地编码：非空、不含 Marker、不含 NUL，
// 且分隔符两侧不能紧挨下划线（否则 a_/__b 与 a__/_b 会得到同一个键）。
func Validate(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	case strings.Contains(path, Marker):
		return fmt.Errorf("%w: %q contains reserved marker %q", ErrInvalidPath, path, Marker)
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, path)
	case strings.Contains(path, "_"+Separator), strings.Contains(path, Separator+"_"):
		return fmt.Errorf("%w: %q has underscore next to separator", ErrInvalidPath, path)
	}
	return nil
}

// Encode 返回 path 对应的缓存键。
func Encode(path string) (string, error) {
	if err := Validate(path); err != nil {
		return "", err
	}
	return strings.ReplaceAll(path, Separator, Marker), nil
}

// Decode 是 Encode 在合法路径上的逆运算，仅用于诊断输出。
func Decode(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); {
		if key[i] != '_' {
			b.WriteByte(key[i])
			i++
			continue
		}
		run := i
		for run < len(key) && key[run] == '_' {
			run++
		}
		n := run - i
		switch {
		case n < len(Marker):
			b.WriteString(key[i:run])
		case n%len(Marker) == 0:
			b.WriteString(strings.Repeat(Separator, n/len(Marker)))
		default:
			return "", fmt.Errorf("%w: ambiguous underscore run in key %q", ErrInvalidPath, key)
		}
		i = run
	}
	path := b.String()
	if err := Validate(path); err != nil {
		return "", err
	}
	return path, nil
}
