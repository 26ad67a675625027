package stages

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
)

// ObjectTracker mirrors job snapshots to job-tracking/<job_id>.json.
type ObjectTracker struct {
	objects storage.ObjectStore
}

var _ pipeline.Tracker = (*ObjectTracker)(nil)

func NewObjectTracker(objects storage.ObjectStore) *ObjectTracker {
	return &ObjectTracker{objects: objects}
}

// TrackingPath is the key of the mirror of a job.
func TrackingPath(jobID string) string {
	return storage.TrackingPrefix + jobID + ".json"
}

func (t *ObjectTracker) Track(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job.Snapshot())
	if err != nil {
		return err
	}
	return t.objects.Put(ctx, TrackingPath(job.ID), bytes.NewReader(data), int64(len(data)), "application/json")
}
