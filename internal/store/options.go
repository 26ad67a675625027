package store

import (
	"time"

	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	if len(statuses) == 0 {
		return f
	}
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return f
}

func (f *JobQueryFilter) ByID(ids ...string) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return f
}

func (f *JobQueryFilter) CreatedBefore(t time.Time) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_at < ?", t.UTC())
	})
	return f
}

type SortOrder int

const (
	SortByCreatedTimeDesc SortOrder = iota
	SortByCreatedTime
	SortByUpdatedTime
)

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByCreatedTime:
			return tx.Order("created_at")
		case SortByUpdatedTime:
			return tx.Order("updated_at DESC")
		default:
			return tx.Order("created_at DESC")
		}
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithOffset(offset int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}
