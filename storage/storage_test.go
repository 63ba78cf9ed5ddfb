package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateKeyRejectsEscapes(t *testing.T) {
	require.Error(t, ValidateKey("../../etc/passwd"))
	require.Error(t, ValidateKey("/abs/path"))
	require.Error(t, ValidateKey(""))
	require.NoError(t, ValidateKey("42/assets/foo.webp"))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Upload(context.Background(), "42/assets/foo.webp", bytes.NewReader([]byte("hello")), ""))

	rc, err := s.Download(context.Background(), "42/assets/foo.webp")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestDownloadMissingKeyIsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	_, err = s.Download(context.Background(), "42/assets/missing.webp")
	require.Error(t, err)
}

func TestUploadDirPreservesRelativeStructure(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.ts"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.ts"), []byte("b"), 0o644))

	dst := t.TempDir()
	s, err := New(dst)
	require.NoError(t, err)

	require.NoError(t, s.UploadDir(context.Background(), src, "42/published"))

	rc, err := s.Download(context.Background(), "42/published/sub/b.ts")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "b", string(data))
}

func TestCopyAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Upload(context.Background(), "42/produced/h0.mp4", bytes.NewReader([]byte("v1")), ""))
	require.NoError(t, s.Copy(context.Background(), "42/produced/h0.mp4", "42/produced/h0-copy.mp4"))

	rc, err := s.Download(context.Background(), "42/produced/h0-copy.mp4")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	require.Equal(t, "v1", string(data))

	require.NoError(t, s.Remove(context.Background(), "42/produced/h0.mp4"))
	// best-effort idempotent: removing again is not an error.
	require.NoError(t, s.Remove(context.Background(), "42/produced/h0.mp4"))
}

func TestReadDirListsUploadedObjects(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Upload(context.Background(), "42/assets/a.webp", bytes.NewReader([]byte("a")), ""))
	require.NoError(t, s.Upload(context.Background(), "42/assets/b.webp", bytes.NewReader([]byte("b")), ""))

	objects, err := s.ReadDir(context.Background(), "42/assets")
	require.NoError(t, err)
	require.Len(t, objects, 2)
}
