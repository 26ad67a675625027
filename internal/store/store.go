package store

import (
	"context"

	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db  *gorm.DB
	job Job
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:  db,
		job: NewJobStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

// InitialMigration creates the schema with gorm. Postgres deployments run the goose
// migrations instead; this path serves sqlite.
func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{})
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
