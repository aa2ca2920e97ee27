package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

// JobStore implements the Job interface on top of gorm.
// Every mutation loads the row inside a transaction, holding a row lock on
// postgres, and writes it back.
type JobStore struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	now     func() time.Time
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB, c *catalog.Catalog) *JobStore {
	return &JobStore{db: db, catalog: c, now: time.Now}
}

func (s *JobStore) Create(ctx context.Context, id string, input json.RawMessage) (*model.Job, error) {
	job := newJob(id, input, s.now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Job{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateJob
		}
		return tx.Create(&job).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("job %s: %w", id, ErrDuplicateJob)
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}

	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) RecordStageResult(ctx context.Context, id string, step catalog.StepID, payload json.RawMessage) (*model.Job, error) {
	return s.mutate(ctx, id, recordResult(s.catalog, step, payload))
}

func (s *JobStore) RecordStageSkipped(ctx context.Context, id string, step catalog.StepID) (*model.Job, error) {
	return s.mutate(ctx, id, recordSkipped(s.catalog, step))
}

func (s *JobStore) SetPromptProvenance(ctx context.Context, id string, p prompt.Provenance) (*model.Job, error) {
	return s.mutate(ctx, id, setProvenance(p))
}

func (s *JobStore) MarkCompleted(ctx context.Context, id string) (*model.Job, error) {
	return s.mutate(ctx, id, markCompleted())
}

func (s *JobStore) MarkFailed(ctx context.Context, id string, errorMessage string) (*model.Job, error) {
	return s.mutate(ctx, id, markFailed(errorMessage))
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error) {
	var jobs model.JobList
	if err := filter.query(s.db.WithContext(ctx).Model(&model.Job{})).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) CountByStatus(ctx context.Context) (map[catalog.JobStatus]int, error) {
	var rows []struct {
		Status catalog.JobStatus
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&model.Job{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	counts := make(map[catalog.JobStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.lockJob(tx, id)
		if err != nil {
			return err
		}
		if !job.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, job.Status, ErrJobNotTerminal)
		}
		if err := tx.Delete(&model.Job{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("deleting job: %w", err)
		}
		return nil
	})
}

func (s *JobStore) mutate(ctx context.Context, id string, fn mutation) (*model.Job, error) {
	var result *model.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.lockJob(tx, id)
		if err != nil {
			return err
		}
		if err := fn(job, s.now()); err != nil {
			return err
		}
		if err := tx.Save(job).Error; err != nil {
			return fmt.Errorf("saving job: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// lockJob reads the job row, locking it for the rest of the transaction
// when the database supports row locks.
func (s *JobStore) lockJob(tx *gorm.DB, id string) (*model.Job, error) {
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var job model.Job
	if err := tx.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, ErrDuplicateJob) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
