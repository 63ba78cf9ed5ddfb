// Package storage implements the Object/Disk Storage Abstraction (component
// A): a single capability set over either a local disk tree or an
// S3-compatible object store, so pipeline code never branches on backend
// except for HLS rung-manifest presigning (§4.6).
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	xerrors "github.com/capsulabs/capsule-pipeline/errors"
	"github.com/capsulabs/capsule-pipeline/log"
	"github.com/capsulabs/capsule-pipeline/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/go-tools/drivers"
)

// Object is a single entry returned by ReadDir.
type Object struct {
	Key  string
	Size int64
}

// Store is the capsule object store, rooted at a single configured backend
// (disk path or S3 bucket URL). Keys passed to every method are relative to
// that root and must be of the form "{capsule_id}/{assets|produced|published}/…".
type Store struct {
	driver drivers.OSDriver
	host   string
	bucket string
}

var maxRetryInterval = 5 * time.Second

// New parses osURL (a disk path or an s3://… URL, per go-tools/drivers
// conventions) and returns a Store bound to it.
func New(osURL string) (*Store, error) {
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse storage URL %q: %w", log.RedactURL(osURL), err)
	}
	s := &Store{driver: driver}
	if info := driver.NewSession("").GetInfo(); info != nil && info.S3Info != nil {
		s.host = info.S3Info.Host
		s.bucket = info.S3Info.Bucket
	}
	return s, nil
}

// ValidateKey rejects keys that escape the capsule key space (§4.1).
func ValidateKey(key string) error {
	if key == "" || path.IsAbs(key) || strings.Contains(key, "..") {
		return xerrors.ClientInput(fmt.Sprintf("invalid storage key %q", key), nil)
	}
	return nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func retry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

func (s *Store) observe(op string, start time.Time, err error) {
	if err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues(s.host, op, s.bucket).Inc()
		return
	}
	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues(s.host, op, s.bucket).Observe(time.Since(start).Seconds())
}

// Upload is an atomic put; overwrite ok.
func (s *Store) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	start := time.Now()
	sess := s.driver.NewSession("")
	err := backoff.Retry(func() error {
		_, err := sess.SaveData(ctx, key, data, &drivers.FileProperties{ContentType: contentType}, 0)
		return err
	}, retry())
	s.observe("write", start, err)
	if err != nil {
		return xerrors.NewStorageError("upload", key, err)
	}
	return nil
}

// UploadFile uploads the contents of localPath to key, inferring content
// type from the key's extension when not given.
func (s *Store) UploadFile(ctx context.Context, localPath, key string) error {
	f, err := osOpen(localPath)
	if err != nil {
		return xerrors.NewStorageError("upload", key, err)
	}
	defer f.Close()
	return s.Upload(ctx, key, f, "")
}

// UploadDir recursively uploads every regular file under localDir, rooted
// at keyPrefix, preserving relative paths (§4.1).
func (s *Store) UploadDir(ctx context.Context, localDir, keyPrefix string) error {
	return walkFiles(localDir, func(relPath string, f io.Reader) error {
		key := path.Join(keyPrefix, filepath.ToSlash(relPath))
		return s.Upload(ctx, key, f, "")
	})
}

// Download returns a stream of the object at key.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	start := time.Now()
	sess := s.driver.NewSession("")
	info, err := sess.ReadData(ctx, key)
	s.observe("read", start, err)
	if err != nil {
		if err == drivers.ErrNotExist {
			return nil, xerrors.NewObjectNotFoundError(key, err)
		}
		return nil, xerrors.NewStorageError("download", key, err)
	}
	return info.Body, nil
}

// Presign returns a presigned S3 URL for key; disk backends return a
// server-relative URL instead (§4.1).
func (s *Store) Presign(key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	sess := s.driver.NewSession("")
	url, err := sess.Presign(key, ttl)
	if err != nil {
		return "", xerrors.NewStorageError("presign", key, err)
	}
	return url, nil
}

// Copy copies srcKey to dstKey within the same backend.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ValidateKey(srcKey); err != nil {
		return err
	}
	if err := ValidateKey(dstKey); err != nil {
		return err
	}
	r, err := s.Download(ctx, srcKey)
	if err != nil {
		return err
	}
	defer r.Close()
	return s.Upload(ctx, dstKey, r, "")
}

// CopyDir copies every object under srcPrefix to the equivalent path under
// dstPrefix, preserving relative structure.
func (s *Store) CopyDir(ctx context.Context, srcPrefix, dstPrefix string) error {
	objects, err := s.ReadDir(ctx, srcPrefix)
	if err != nil {
		return err
	}
	for _, o := range objects {
		rel := strings.TrimPrefix(o.Key, srcPrefix)
		if err := s.Copy(ctx, o.Key, path.Join(dstPrefix, rel)); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a single key. Best-effort idempotent: a not-found is not
// an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	start := time.Now()
	sess := s.driver.NewSession("")
	err := sess.DeleteFile(ctx, key)
	if err != nil && err != drivers.ErrNotExist {
		s.observe("remove", start, err)
		return xerrors.NewStorageError("remove", key, err)
	}
	s.observe("remove", start, nil)
	return nil
}

// RemoveDir deletes every object under prefix.
func (s *Store) RemoveDir(ctx context.Context, prefix string) error {
	objects, err := s.ReadDir(ctx, prefix)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := s.Remove(ctx, o.Key); err != nil {
			return err
		}
	}
	return nil
}

// ReadDir lists objects under prefix. For the disk backend this is emulated
// via prefix listing, matching object-storage semantics (§4.1).
func (s *Store) ReadDir(ctx context.Context, prefix string) ([]Object, error) {
	start := time.Now()
	sess := s.driver.NewSession("")
	page, err := sess.ListFiles(ctx, prefix, "")
	s.observe("list", start, err)
	if err != nil {
		return nil, xerrors.NewStorageError("read_dir", prefix, err)
	}
	var out []Object
	for _, f := range page.Files() {
		out = append(out, Object{Key: f.Name, Size: f.Size})
	}
	for page.HasNextPage() {
		page, err = page.NextPage()
		if err != nil {
			return nil, xerrors.NewStorageError("read_dir", prefix, err)
		}
		for _, f := range page.Files() {
			out = append(out, Object{Key: f.Name, Size: f.Size})
		}
	}
	return out, nil
}
