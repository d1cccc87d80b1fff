package mongorepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
)

var submissionSortFields = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"kind":       "kind",
	"subtype":    "subtype",
	"state":      "state",
}

type submissionDoc struct {
	ID              string                    `bson:"_id"`
	Kind            review.Kind               `bson:"kind"`
	Subtype         review.Subtype            `bson:"subtype"`
	OwnerID         string                    `bson:"owner_id"`
	ActorID         string                    `bson:"actor_id,omitempty"`
	State           review.State              `bson:"state"`
	Payload         review.Payload            `bson:"payload"`
	FeedbackHistory []review.FeedbackEntry    `bson:"feedback_history"`
	RevisionHistory []review.Revision         `bson:"revision_history,omitempty"`
	Transitions     []review.TransitionRecord `bson:"transitions"`
	ReviewedBy      *review.ReviewDecision    `bson:"reviewed_by,omitempty"`
	Version         int64                     `bson:"version"`
	CreatedAt       time.Time                 `bson:"created_at"`
	UpdatedAt       time.Time                 `bson:"updated_at"`
}

func toSubmissionDoc(sub review.Submission) submissionDoc {
	d := submissionDoc{
		ID:              sub.ID,
		Kind:            sub.Kind,
		Subtype:         sub.Subtype,
		OwnerID:         sub.OwnerID,
		ActorID:         sub.ActorID,
		State:           sub.State,
		Payload:         sub.Payload,
		FeedbackHistory: sub.FeedbackHistory,
		RevisionHistory: sub.RevisionHistory,
		Transitions:     sub.Transitions,
		ReviewedBy:      sub.ReviewedBy,
		Version:         sub.Version,
		CreatedAt:       sub.CreatedAt.UTC(),
		UpdatedAt:       sub.UpdatedAt.UTC(),
	}
	if d.FeedbackHistory == nil {
		d.FeedbackHistory = []review.FeedbackEntry{}
	}
	if d.Transitions == nil {
		d.Transitions = []review.TransitionRecord{}
	}
	return d
}

func (d submissionDoc) submission() review.Submission {
	return review.Submission{
		ID:              d.ID,
		Kind:            d.Kind,
		Subtype:         d.Subtype,
		OwnerID:         d.OwnerID,
		ActorID:         d.ActorID,
		State:           d.State,
		Payload:         d.Payload,
		FeedbackHistory: d.FeedbackHistory,
		RevisionHistory: d.RevisionHistory,
		Transitions:     d.Transitions,
		ReviewedBy:      d.ReviewedBy,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

type submissionRepository struct {
	coll *mongo.Collection
}

var _ review.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *mongo.Database) review.Repository {
	return &submissionRepository{coll: db.Collection(submissionCollection)}
}

func (repo *submissionRepository) Create(ctx context.Context, sub review.Submission) (review.Submission, error) {
	sub.ID = uuid.New().String()
	sub.Version = 1
	if _, err := repo.coll.InsertOne(ctx, toSubmissionDoc(sub)); err != nil {
		return review.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub.Clone(), nil
}

func (repo *submissionRepository) Load(ctx context.Context, id string) (review.Submission, error) {
	var d submissionDoc
	if err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return review.Submission{}, trapNoDocuments(err, review.ErrNotFound, "finding submission")
	}
	return d.submission(), nil
}

// Save replaces the document only while its version still equals expectedVersion.
func (repo *submissionRepository) Save(
	ctx context.Context,
	sub review.Submission,
	expectedVersion int64,
) (review.Submission, error) {
	sub.Version = expectedVersion + 1
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": sub.ID, "version": expectedVersion}, toSubmissionDoc(sub))
	if err != nil {
		return review.Submission{}, errors.Wrap(err, "updating submission")
	}
	if res.MatchedCount == 0 {
		n, err := repo.coll.CountDocuments(ctx, bson.M{"_id": sub.ID})
		if err != nil {
			return review.Submission{}, errors.Wrap(err, "checking submission")
		}
		if n == 0 {
			return review.Submission{}, review.ErrNotFound
		}
		return review.Submission{}, review.ErrConcurrentModification
	}
	return sub.Clone(), nil
}

func (repo *submissionRepository) Query(
	ctx context.Context,
	qf *review.QueryFilter,
	ordering ...core.DBOrdering,
) ([]review.Submission, error) {
	filter := bson.M{}
	if qf != nil {
		if qf.OwnerID != "" {
			filter["owner_id"] = qf.OwnerID
		}
		if qf.ActorID != "" {
			filter["actor_id"] = qf.ActorID
		}
		if qf.InvolvedID != "" {
			filter["$or"] = bson.A{bson.M{"owner_id": qf.InvolvedID}, bson.M{"actor_id": qf.InvolvedID}}
		}
		if len(qf.Kinds) > 0 {
			filter["kind"] = bson.M{"$in": qf.Kinds}
		}
		if len(qf.Subtypes) > 0 {
			filter["subtype"] = bson.M{"$in": qf.Subtypes}
		}
		if len(qf.States) > 0 {
			filter["state"] = bson.M{"$in": qf.States}
		}
		created := bson.M{}
		if qf.CreatedFrom != nil {
			created["$gte"] = qf.CreatedFrom.UTC()
		}
		if qf.CreatedTo != nil {
			created["$lte"] = qf.CreatedTo.UTC()
		}
		if len(created) > 0 {
			filter["created_at"] = created
		}
	}

	cur, err := repo.coll.Find(ctx, filter, options.Find().SetSort(sortBy(ordering, submissionSortFields)))
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	var docs []submissionDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding submissions")
	}
	subs := make([]review.Submission, 0, len(docs))
	for _, d := range docs {
		subs = append(subs, d.submission())
	}
	return subs, nil
}
