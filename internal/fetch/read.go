package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

const readChunk = 32 * 1024

// ReadText 读取 fsys 中 name 指向文件的完整文本，每个分块之间检查 ctx。
func ReadText(ctx context.Context, fsys fs.FS, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	f, err := fsys.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", &fs.PathError{Op: "read", Path: name, Err: errors.New("is a directory")}
	}

	var buf bytes.Buffer
	if size := info.Size(); size > 0 {
		buf.Grow(int(size))
	}
	if err := readAll(ctx, &buf, f); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return buf.String(), nil
}

func readAll(ctx context.Context, dst *bytes.Buffer, src io.Reader) error {
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(chunk)
		if n > 0 {
			dst.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
