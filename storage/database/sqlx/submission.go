package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/volatiletech/null/v8"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
)

const submissionColumns = `id, kind, subtype, owner_id, actor_id, state, payload, feedback_history,
	revision_history, transitions, reviewed_by, version, created_at, updated_at`

var submissionOrderColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"kind":       "kind",
	"subtype":    "subtype",
	"state":      "state",
}

type submissionRow struct {
	ID              string         `db:"id"`
	Kind            string         `db:"kind"`
	Subtype         string         `db:"subtype"`
	OwnerID         string         `db:"owner_id"`
	ActorID         null.String    `db:"actor_id"`
	State           string         `db:"state"`
	Payload         types.JSONText `db:"payload"`
	FeedbackHistory types.JSONText `db:"feedback_history"`
	RevisionHistory types.JSONText `db:"revision_history"`
	Transitions     types.JSONText `db:"transitions"`
	ReviewedBy      null.JSON      `db:"reviewed_by"`
	Version         int64          `db:"version"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toSubmissionRow(sub review.Submission) (submissionRow, error) {
	r := submissionRow{
		ID:        sub.ID,
		Kind:      string(sub.Kind),
		Subtype:   string(sub.Subtype),
		OwnerID:   sub.OwnerID,
		ActorID:   null.NewString(sub.ActorID, sub.ActorID != ""),
		State:     string(sub.State),
		Version:   sub.Version,
		CreatedAt: sub.CreatedAt.UTC(),
		UpdatedAt: sub.UpdatedAt.UTC(),
	}

	var err error
	if r.Payload, err = json.Marshal(sub.Payload); err != nil {
		return r, errors.Wrap(err, "encoding payload")
	}
	if r.FeedbackHistory, err = json.Marshal(lo.Ternary(sub.FeedbackHistory == nil, []review.FeedbackEntry{}, sub.FeedbackHistory)); err != nil {
		return r, errors.Wrap(err, "encoding feedback history")
	}
	if r.RevisionHistory, err = json.Marshal(lo.Ternary(sub.RevisionHistory == nil, []review.Revision{}, sub.RevisionHistory)); err != nil {
		return r, errors.Wrap(err, "encoding revision history")
	}
	if r.Transitions, err = json.Marshal(lo.Ternary(sub.Transitions == nil, []review.TransitionRecord{}, sub.Transitions)); err != nil {
		return r, errors.Wrap(err, "encoding transitions")
	}
	if sub.ReviewedBy != nil {
		if err = r.ReviewedBy.Marshal(sub.ReviewedBy); err != nil {
			return r, errors.Wrap(err, "encoding review decision")
		}
	}
	return r, nil
}

func (r submissionRow) submission() (review.Submission, error) {
	sub := review.Submission{
		ID:        r.ID,
		Kind:      review.Kind(r.Kind),
		Subtype:   review.Subtype(r.Subtype),
		OwnerID:   r.OwnerID,
		ActorID:   r.ActorID.String,
		State:     review.State(r.State),
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := r.Payload.Unmarshal(&sub.Payload); err != nil {
		return sub, errors.Wrap(err, "decoding payload")
	}
	if err := r.FeedbackHistory.Unmarshal(&sub.FeedbackHistory); err != nil {
		return sub, errors.Wrap(err, "decoding feedback history")
	}
	if err := r.RevisionHistory.Unmarshal(&sub.RevisionHistory); err != nil {
		return sub, errors.Wrap(err, "decoding revision history")
	}
	if err := r.Transitions.Unmarshal(&sub.Transitions); err != nil {
		return sub, errors.Wrap(err, "decoding transitions")
	}
	if len(sub.RevisionHistory) == 0 {
		sub.RevisionHistory = nil
	}
	if r.ReviewedBy.Valid {
		sub.ReviewedBy = new(review.ReviewDecision)
		if err := r.ReviewedBy.Unmarshal(sub.ReviewedBy); err != nil {
			return sub, errors.Wrap(err, "decoding review decision")
		}
	}
	return sub, nil
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ review.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) review.Repository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) Create(ctx context.Context, sub review.Submission) (review.Submission, error) {
	sub.ID = uuid.New().String()
	sub.Version = 1
	r, err := toSubmissionRow(sub)
	if err != nil {
		return review.Submission{}, err
	}
	q := `INSERT INTO submission (` + submissionColumns + `)
		VALUES (:id, :kind, :subtype, :owner_id, :actor_id, :state, :payload, :feedback_history,
			:revision_history, :transitions, :reviewed_by, :version, :created_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, r); err != nil {
		return review.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub.Clone(), nil
}

func (repo *submissionRepository) Load(ctx context.Context, id string) (review.Submission, error) {
	if !validUUID(id) {
		return review.Submission{}, review.ErrNotFound
	}
	var r submissionRow
	q := repo.db.Rebind(`SELECT ` + submissionColumns + ` FROM submission WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &r, q, id); err != nil {
		return review.Submission{}, trapNoRows(err, review.ErrNotFound, "finding submission")
	}
	return r.submission()
}

// Save is a compare-and-set on the version column.
func (repo *submissionRepository) Save(
	ctx context.Context,
	sub review.Submission,
	expectedVersion int64,
) (review.Submission, error) {
	sub.Version = expectedVersion + 1
	r, err := toSubmissionRow(sub)
	if err != nil {
		return review.Submission{}, err
	}

	q := repo.db.Rebind(`UPDATE submission SET actor_id = ?, state = ?, payload = ?, feedback_history = ?,
		revision_history = ?, transitions = ?, reviewed_by = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`)
	res, err := repo.db.ExecContext(ctx, q,
		r.ActorID, r.State, r.Payload, r.FeedbackHistory,
		r.RevisionHistory, r.Transitions, r.ReviewedBy, r.Version, r.UpdatedAt,
		r.ID, expectedVersion,
	)
	if err != nil {
		return review.Submission{}, errors.Wrap(err, "updating submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return review.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n == 0 {
		var found bool
		q = repo.db.Rebind(`SELECT EXISTS (SELECT 1 FROM submission WHERE id = ?)`)
		if err = repo.db.GetContext(ctx, &found, q, r.ID); err != nil {
			return review.Submission{}, errors.Wrap(err, "checking submission")
		}
		if !found {
			return review.Submission{}, review.ErrNotFound
		}
		return review.Submission{}, review.ErrConcurrentModification
	}
	return sub.Clone(), nil
}

func (repo *submissionRepository) Query(
	ctx context.Context,
	filter *review.QueryFilter,
	ordering ...core.DBOrdering,
) ([]review.Submission, error) {
	w := new(where)
	if filter != nil {
		if filter.OwnerID != "" {
			w.add("owner_id::text = ?", filter.OwnerID)
		}
		if filter.ActorID != "" {
			w.add("actor_id::text = ?", filter.ActorID)
		}
		if filter.InvolvedID != "" {
			w.add("(owner_id::text = ? OR actor_id::text = ?)", filter.InvolvedID, filter.InvolvedID)
		}
		if len(filter.Kinds) > 0 {
			w.add("kind = ANY(?)", pq.Array(lo.Map(filter.Kinds, func(k review.Kind, _ int) string { return string(k) })))
		}
		if len(filter.Subtypes) > 0 {
			w.add("subtype = ANY(?)", pq.Array(lo.Map(filter.Subtypes, func(s review.Subtype, _ int) string { return string(s) })))
		}
		if len(filter.States) > 0 {
			w.add("state = ANY(?)", pq.Array(lo.Map(filter.States, func(s review.State, _ int) string { return string(s) })))
		}
		if filter.CreatedFrom != nil {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if filter.CreatedTo != nil {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q := `SELECT ` + submissionColumns + ` FROM submission` + w.String() +
		orderBy(ordering, submissionOrderColumns, "created_at DESC")
	rows := make([]submissionRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}

	subs := make([]review.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := r.submission()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
