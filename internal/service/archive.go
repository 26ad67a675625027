package service

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/storage"
)

// Archive streams every artifact of a job as a zip. Entries keep the published layout,
// e.g. job_0123456789ab/slides/01.jpg.
type Archive struct {
	Name    string
	objects storage.ObjectStore
	entries []storage.ObjectInfo
}

func (a *Archive) Entries() []string {
	names := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		names = append(names, strings.TrimPrefix(e.Path, storage.OutputsPrefix))
	}
	return names
}

func (a *Archive) WriteTo(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, e := range a.entries {
		if err := a.add(ctx, zw, e); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (a *Archive) add(ctx context.Context, zw *zip.Writer, e storage.ObjectInfo) error {
	rc, err := a.objects.Get(ctx, e.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", e.Path, err)
	}
	defer rc.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     strings.TrimPrefix(e.Path, storage.OutputsPrefix),
		Method:   zip.Deflate,
		Modified: e.LastModified,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, rc)
	return err
}
