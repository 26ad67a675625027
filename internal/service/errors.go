package service

import (
	"fmt"

	"github.com/chaptermaker/chaptermaker/internal/store/model"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

type ErrJobAlreadyFinished struct {
	error
}

func NewErrJobAlreadyFinished(id string, status model.JobStatus) *ErrJobAlreadyFinished {
	return &ErrJobAlreadyFinished{fmt.Errorf("job %s is already %s", id, status)}
}

type ErrJobNotCompleted struct {
	error
}

func NewErrJobNotCompleted(id string, status model.JobStatus) *ErrJobNotCompleted {
	return &ErrJobNotCompleted{fmt.Errorf("job %s is not completed. Current status: %s", id, status)}
}

type ErrInvalidInput struct {
	error
}

func NewErrInvalidInput(format string, args ...any) *ErrInvalidInput {
	return &ErrInvalidInput{fmt.Errorf("bad request: "+format, args...)}
}

type ErrUnsupportedFileType struct {
	error
}

func NewErrUnsupportedFileType(err error) *ErrUnsupportedFileType {
	return &ErrUnsupportedFileType{err}
}

func (e *ErrUnsupportedFileType) Unwrap() error {
	return e.error
}
