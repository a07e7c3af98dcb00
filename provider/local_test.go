package provider

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalProvider_Stat(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider(tempBase)
	ctx := context.Background()

	testFile := "test-stat.txt"
	testContent := []byte("hello stat")
	if err := os.WriteFile(filepath.Join(tempBase, testFile), testContent, 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := p.Stat(ctx, testFile)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != testFile {
		t.Errorf("expected %q, got %q", testFile, info.Name())
	}
	if info.Size() != int64(len(testContent)) {
		t.Errorf("expected size %d, got %d", len(testContent), info.Size())
	}
	if info.IsDir() {
		t.Errorf("expected isDir to be false")
	}
}

func TestLocalProvider_ListIsFlatAndOrdered(t *testing.T) {
	tempBase := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tempBase, "share", "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(tempBase, "share", name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(tempBase, "share", "nested", "deep.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	infos, err := NewLocalProvider(tempBase).List(context.Background(), "share")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	want := []string{"a.txt", "b.txt", "c.txt", "nested"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], names[i])
		}
	}
}

func TestLocalProvider_OpenRead(t *testing.T) {
	tempBase := t.TempDir()
	testContent := []byte("hello read")
	if err := os.WriteFile(filepath.Join(tempBase, "test-read.txt"), testContent, 0o644); err != nil {
		t.Fatal(err)
	}

	rc, err := NewLocalProvider(tempBase).OpenRead(context.Background(), "test-read.txt")
	if err != nil {
		t.Fatalf("OpenRead failed: %v", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != string(testContent) {
		t.Errorf("expected content %q, got %q", testContent, content)
	}
}

func TestLocalProvider_RejectsEscapingPaths(t *testing.T) {
	p := NewLocalProvider(t.TempDir())

	_, err := p.OpenRead(context.Background(), "../../etc/passwd")
	// Cleaning against the root keeps the path inside it, so this is just a
	// missing file rather than a read outside the root.
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLocalProvider(t.TempDir()).List(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLocalProvider_OpenWriteOverwrites(t *testing.T) {
	tempBase := t.TempDir()
	target := filepath.Join(tempBase, "out.txt")
	if err := os.WriteFile(target, []byte("a much longer previous content"), 0o644); err != nil {
		t.Fatal(err)
	}

	wc, err := NewLocalProvider(tempBase).OpenWrite(context.Background(), "out.txt", nil)
	if err != nil {
		t.Fatalf("OpenWrite failed: %v", err)
	}
	if _, err := wc.Write([]byte("new")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("expected truncated content %q, got %q", "new", got)
	}
}

func TestLocalProvider_OpenWriteMissingDirectory(t *testing.T) {
	_, err := NewLocalProvider(t.TempDir()).OpenWrite(context.Background(), "missing/out.txt", nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLocalProvider_OpenWritePreservesMetadata(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider(tempBase).WithPreserveMetadata(true)
	testModTime := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

	wc, err := p.OpenWrite(context.Background(), "meta.txt", NewFileInfo("meta.txt", 4, testModTime))
	if err != nil {
		t.Fatalf("OpenWrite failed: %v", err)
	}
	if _, err := wc.Write([]byte("data")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	stat, err := os.Stat(filepath.Join(tempBase, "meta.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !stat.ModTime().Equal(testModTime) {
		t.Errorf("expected mod time %v, got %v", testModTime, stat.ModTime())
	}
}

func TestWrapOSFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode.txt")
	if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatal(err)
	}
	osInfo, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	info := WrapOSFileInfo(osInfo)
	if info.Name() != "mode.txt" || info.Size() != 1 || info.IsDir() {
		t.Errorf("unexpected wrapped info: %s %d %v", info.Name(), info.Size(), info.IsDir())
	}
	if info.Mode() != 0o640 {
		t.Errorf("expected mode 0640, got %o", info.Mode())
	}
}

func TestSameFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "share", "in"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "share", "in", "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "share", "in", "b.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	byShare := NewLocalProvider(filepath.Join(root, "share"))
	byRoot := NewLocalProvider(root)

	tests := []struct {
		name  string
		a     Provider
		aPath string
		b     Provider
		bPath string
		want  bool
	}{
		{"same provider same path", byShare, "in/a.txt", byShare, "in/a.txt", true},
		{"different roots same file", byShare, "in/a.txt", byRoot, "share/in/a.txt", true},
		{"equal content different file", byShare, "in/a.txt", byShare, "in/b.txt", false},
		{"missing destination", byShare, "in/a.txt", byShare, "out/a.txt", false},
		{"different provider kinds", byShare, "in/a.txt", &S3Provider{bucket: "b"}, "in/a.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameFile(tt.a, tt.aPath, tt.b, tt.bPath); got != tt.want {
				t.Errorf("SameFile = %v; want %v", got, tt.want)
			}
		})
	}
}
