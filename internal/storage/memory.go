package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. It backs tests and local runs without an
// S3 endpoint.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

var _ ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memoryObject{}, now: time.Now}
}

// SetClock replaces the clock used to stamp LastModified on writes.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Touch overrides the modification time of an existing object.
func (m *MemoryStore) Touch(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[path]; ok {
		obj.lastModified = t
		m.objects[path] = obj
	}
}

func (m *MemoryStore) PresignedPut(_ context.Context, path string, expiry time.Duration) (*url.URL, error) {
	return m.presign("PUT", path, expiry), nil
}

func (m *MemoryStore) PresignedGet(_ context.Context, path string, expiry time.Duration) (*url.URL, error) {
	return m.presign("GET", path, expiry), nil
}

func (m *MemoryStore) presign(method, path string, expiry time.Duration) *url.URL {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", fmt.Sprintf("%d", int(expiry.Seconds())))
	return &url.URL{Scheme: "memory", Host: "objects", Path: "/" + path, RawQuery: q.Encode()}
}

func (m *MemoryStore) Put(_ context.Context, path string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memoryObject{data: data, contentType: contentType, lastModified: m.now()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Download(ctx context.Context, path, localPath string) error {
	rc, err := m.Get(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, rc)
	return err
}

func (m *MemoryStore) Stat(_ context.Context, path string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return obj.info(path), nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ObjectInfo
	for path, obj := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, obj.info(path))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MemoryStore) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (o memoryObject) info(path string) ObjectInfo {
	return ObjectInfo{Path: path, Size: int64(len(o.data)), ContentType: o.contentType, LastModified: o.lastModified}
}
