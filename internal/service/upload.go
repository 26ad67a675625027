package service

import (
	"context"
	"errors"

	"github.com/chaptermaker/chaptermaker/internal/upload"
)

type UploadService struct {
	broker *upload.Broker
}

func NewUploadService(broker *upload.Broker) *UploadService {
	return &UploadService{broker: broker}
}

func (s *UploadService) RequestTicket(ctx context.Context, kind upload.Kind, filename, contentType string) (*upload.Ticket, error) {
	if filename == "" {
		return nil, NewErrInvalidInput("filename is required")
	}
	ticket, err := s.broker.RequestTicket(ctx, kind, filename, contentType)
	if err != nil {
		if errors.Is(err, upload.ErrUnsupportedFileType) {
			return nil, NewErrUnsupportedFileType(err)
		}
		return nil, err
	}
	return ticket, nil
}
