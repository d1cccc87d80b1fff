package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
)

type submissionRepository struct {
	db *submissionTable
}

var _ review.Repository = (*submissionRepository)(nil)

func NewSubmissionRepository(db *DB) review.Repository {
	return &submissionRepository{db: db.submission}
}

func (repo *submissionRepository) Create(_ context.Context, sub review.Submission) (review.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sub = sub.Clone()
	sub.ID = uuid.New().String()
	sub.Version = 1
	repo.db.table[sub.ID] = sub
	return sub.Clone(), nil
}

func (repo *submissionRepository) Load(_ context.Context, id string) (review.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.table[id]; ok {
		return sub.Clone(), nil
	}
	return review.Submission{}, review.ErrNotFound
}

func (repo *submissionRepository) Save(
	_ context.Context,
	sub review.Submission,
	expectedVersion int64,
) (review.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.table[sub.ID]
	if !ok {
		return review.Submission{}, review.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return review.Submission{}, review.ErrConcurrentModification
	}
	sub = sub.Clone()
	sub.Version = expectedVersion + 1
	repo.db.table[sub.ID] = sub
	return sub.Clone(), nil
}

func (repo *submissionRepository) Query(
	_ context.Context,
	filter *review.QueryFilter,
	ordering ...core.DBOrdering,
) ([]review.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]review.Submission, 0)
	for _, sub := range repo.db.table {
		if filter == nil || filter.Match(sub) {
			subs = append(subs, sub.Clone())
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareSubmissions(subs[i], subs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func compareSubmissions(a, b review.Submission, field string) int {
	switch field {
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updated_at":
		return compareTimes(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	case "kind":
		return strings.Compare(string(a.Kind), string(b.Kind))
	case "subtype":
		return strings.Compare(string(a.Subtype), string(b.Subtype))
	case "state":
		return strings.Compare(string(a.State), string(b.State))
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
