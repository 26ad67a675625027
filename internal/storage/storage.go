package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"
)

const (
	UploadsPrefix  = "uploads/"
	OutputsPrefix  = "outputs/"
	TrackingPrefix = "job-tracking/"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore is the slice of S3 semantics the service relies on. Paths are bucket
// relative keys such as "outputs/job_0123456789ab/subtitles.srt".
type ObjectStore interface {
	PresignedPut(ctx context.Context, path string, expiry time.Duration) (*url.URL, error)
	PresignedGet(ctx context.Context, path string, expiry time.Duration) (*url.URL, error)
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Download(ctx context.Context, path, localPath string) error
	Stat(ctx context.Context, path string) (ObjectInfo, error)
	// List walks every object under prefix recursively. Incomplete multipart uploads are
	// never listed.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Remove succeeds when the object does not exist.
	Remove(ctx context.Context, path string) error
}
