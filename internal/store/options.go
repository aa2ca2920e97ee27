package store

import (
	"sort"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"gorm.io/gorm"
)

// JobQueryFilter narrows a job listing. A nil filter matches every job.
type JobQueryFilter struct {
	status *catalog.JobStatus
	limit  int
}

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{}
}

func (f *JobQueryFilter) ByStatus(status catalog.JobStatus) *JobQueryFilter {
	f.status = &status
	return f
}

func (f *JobQueryFilter) WithLimit(limit int) *JobQueryFilter {
	f.limit = limit
	return f
}

func (f *JobQueryFilter) match(job model.Job) bool {
	if f == nil || f.status == nil {
		return true
	}
	return job.Status == *f.status
}

// apply filters and orders jobs that were loaded without a query.
func (f *JobQueryFilter) apply(jobs model.JobList) model.JobList {
	result := make(model.JobList, 0, len(jobs))
	for _, j := range jobs {
		if f.match(j) {
			result = append(result, j)
		}
	}

	sort.SliceStable(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID < result[k].ID
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if f != nil && f.limit > 0 && len(result) > f.limit {
		result = result[:f.limit]
	}
	return result
}

func (f *JobQueryFilter) query(tx *gorm.DB) *gorm.DB {
	tx = tx.Order("created_at, id")
	if f == nil {
		return tx
	}
	if f.status != nil {
		tx = tx.Where("status = ?", *f.status)
	}
	if f.limit > 0 {
		tx = tx.Limit(f.limit)
	}
	return tx
}
