package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/chaptermaker/chaptermaker/pkg/metrics"
	"github.com/google/uuid"
)

var ErrUnsupportedFileType = errors.New("unsupported file type")

// Ticket authorises one direct upload to the object store. Tickets are never persisted.
type Ticket struct {
	Filename      string
	ContentType   string
	WriteURL      string
	ResultingPath string
	Expiry        time.Duration
	ExpiresAt     time.Time
}

type Broker struct {
	objects storage.ObjectStore
	expiry  time.Duration
	now     func() time.Time
	logger  *log.StructuredLogger
}

func NewBroker(objects storage.ObjectStore, expiry time.Duration) *Broker {
	return &Broker{
		objects: objects,
		expiry:  expiry,
		now:     time.Now,
		logger:  log.NewDebugLogger("upload_broker"),
	}
}

// WithClock overrides the clock used for the timestamp segment of upload paths.
func (b *Broker) WithClock(now func() time.Time) *Broker {
	b.now = now
	return b
}

// RequestTicket validates the filename against kind and returns a presigned write URL.
// Nothing is recorded in the job store.
func (b *Broker) RequestTicket(ctx context.Context, kind Kind, filename, contentType string) (*Ticket, error) {
	tracer := b.logger.WithContext(ctx).Operation("request_ticket").
		WithString("kind", string(kind)).
		WithString("filename", filename).
		Build()

	if !kind.Accepts(filename) {
		err := fmt.Errorf("%w: %q is not an accepted %s file", ErrUnsupportedFileType, filename, kind)
		tracer.Error(err).Log()
		return nil, err
	}

	now := b.now()
	name := SanitizeFilename(filename)
	path := ObjectPath(now, name)

	u, err := b.objects.PresignedPut(ctx, path, b.expiry)
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to sign upload url: %w", err)
	}

	metrics.IncreaseUploadTicketsMetric(string(kind))
	tracer.Success().WithString("path", path).Log()

	return &Ticket{
		Filename:      name,
		ContentType:   ResolveContentType(filename, contentType),
		WriteURL:      u.String(),
		ResultingPath: path,
		Expiry:        b.expiry,
		ExpiresAt:     now.Add(b.expiry),
	}, nil
}

// ObjectPath lays out uploads as uploads/<YYYYMMDD_HHMMSS>/<8 hex>/<filename>.
func ObjectPath(at time.Time, filename string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%s/%s/%s", storage.UploadsPrefix, at.UTC().Format("20060102_150405"), token, filename)
}

// ResolveContentType prefers the declared type, then the extension, then a per-class default.
func ResolveContentType(filename, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if guessed := mime.TypeByExtension(Ext(filename)); guessed != "" {
		return guessed
	}
	class, _ := Classify(filename)
	switch class {
	case ClassVideo:
		return "video/mp4"
	case ClassAudio:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
