package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"gorm.io/gorm"
)

// Job holds one record per pipeline job. Every mutation advances updatedAt
// and is rejected with ErrTerminalJob once the job completed or failed.
type Job interface {
	Create(ctx context.Context, id string, input json.RawMessage) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	RecordStageResult(ctx context.Context, id string, step catalog.StepID, payload json.RawMessage) (*model.Job, error)
	RecordStageSkipped(ctx context.Context, id string, step catalog.StepID) (*model.Job, error)
	SetPromptProvenance(ctx context.Context, id string, p prompt.Provenance) (*model.Job, error)
	MarkCompleted(ctx context.Context, id string) (*model.Job, error)
	MarkFailed(ctx context.Context, id string, errorMessage string) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error)
	// CountByStatus returns the number of stored jobs per status. Statuses
	// without jobs may be missing from the map.
	CountByStatus(ctx context.Context) (map[catalog.JobStatus]int, error)
	Delete(ctx context.Context, id string) error
}

type Store interface {
	Job() Job
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	job   Job
	ping  func(ctx context.Context) error
	close func() error
}

// NewStore returns a store backed by a sql database.
func NewStore(db *gorm.DB, c *catalog.Catalog) Store {
	return &DataStore{
		job: NewJobStore(db, c),
		ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

// NewRedisStore returns a store backed by redis.
func NewRedisStore(client redis.UniversalClient, c *catalog.Catalog) Store {
	return &DataStore{
		job:   NewRedisJobStore(client, c),
		ping:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
		close: client.Close,
	}
}

// NewMemoryStore returns a store that lives in the process memory.
func NewMemoryStore(c *catalog.Catalog) Store {
	return &DataStore{
		job:   NewMemoryJobStore(c),
		ping:  func(context.Context) error { return nil },
		close: func() error { return nil },
	}
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *DataStore) Close() error {
	return s.close()
}
