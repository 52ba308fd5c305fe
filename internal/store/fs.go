package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	"gocloud.dev/gcerrors"
)

// FS is the file access the store needs. Names are slash-separated and
// relative to the project root. Missing files are reported with errors that
// match fs.ErrNotExist.
type FS interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	ModTime(ctx context.Context, name string) (time.Time, error)
	// Location describes the root for logs and API responses.
	Location() string
}

// Open returns the FS for location: a bucket URL such as "mem://" or
// "file:///srv/content", or else a local directory.
func Open(ctx context.Context, location string) (FS, error) {
	if location == "" {
		return nil, fmt.Errorf("store: empty project location")
	}
	if strings.Contains(location, "://") {
		return OpenBucketFS(ctx, location)
	}
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", location, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: %s is not a directory", location)
	}
	return NewOSFS(location), nil
}

// closeFS releases fsys when it holds resources.
func closeFS(fsys FS) error {
	if c, ok := fsys.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OSFS is a project rooted at a local directory.
type OSFS struct {
	Root string
}

// NewOSFS returns an FS rooted at dir.
func NewOSFS(dir string) *OSFS {
	return &OSFS{Root: dir}
}

func (o *OSFS) path(name string) string {
	return filepath.Join(o.Root, filepath.FromSlash(name))
}

// ReadFile reads a whole file.
func (o *OSFS) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(o.path(name))
}

// WriteFile replaces a file by writing a sibling temp file and renaming it,
// so a failed write never leaves a truncated document behind.
func (o *OSFS) WriteFile(_ context.Context, name string, data []byte) error {
	target := o.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// ModTime returns the modification time of a file.
func (o *OSFS) ModTime(_ context.Context, name string) (time.Time, error) {
	info, err := os.Stat(o.path(name))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Location returns the root directory.
func (o *OSFS) Location() string {
	return o.Root
}

// BucketFS is a project stored in a gocloud.dev blob bucket.
type BucketFS struct {
	bucket *blob.Bucket
	url    string
}

// OpenBucketFS opens the bucket at url, for example
// "file:///srv/content?metadata=skip" or "mem://".
func OpenBucketFS(ctx context.Context, url string) (*BucketFS, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: opening bucket %s: %w", url, err)
	}
	return &BucketFS{bucket: b, url: url}, nil
}

// NewBucketFS wraps an already opened bucket.
func NewBucketFS(b *blob.Bucket, location string) *BucketFS {
	return &BucketFS{bucket: b, url: location}
}

// ReadFile reads a whole object.
func (b *BucketFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, name)
	if err != nil {
		return nil, bucketError(name, err)
	}
	return data, nil
}

// WriteFile replaces an object.
func (b *BucketFS) WriteFile(ctx context.Context, name string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: "application/json; charset=utf-8"}
	if err := b.bucket.WriteAll(ctx, name, data, opts); err != nil {
		return bucketError(name, err)
	}
	return nil
}

// ModTime returns the modification time of an object.
func (b *BucketFS) ModTime(ctx context.Context, name string) (time.Time, error) {
	attrs, err := b.bucket.Attributes(ctx, name)
	if err != nil {
		return time.Time{}, bucketError(name, err)
	}
	return attrs.ModTime, nil
}

// Location returns the bucket URL.
func (b *BucketFS) Location() string {
	return b.url
}

// Close releases the bucket.
func (b *BucketFS) Close() error {
	return b.bucket.Close()
}

func bucketError(name string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return err
}
