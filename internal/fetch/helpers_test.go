package fetch

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// testBundle 返回 testdata/bundle 目录，作为随程序分发的只读资源。
func testBundle(t *testing.T) fs.FS {
	t.Helper()
	dir := filepath.Join("testdata", "bundle")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("缺少测试资源目录: %v", err)
	}
	return os.DirFS(dir)
}
