package review

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type (
	OwnerStats struct {
		Total          int           `json:"total"`
		ByState        map[State]int `json:"byState"`
		CompletionRate float64       `json:"completionRate"` // % approved
	}

	ReviewerStats struct {
		PendingReview     int           `json:"pendingReview"`
		InReview          int           `json:"inReview"`
		Reviewed          int           `json:"reviewed"`
		AverageReviewTime time.Duration `json:"averageReviewTime"`
	}
)

// OwnerStats summarises the submissions owned or authored by the actor.
func (svc *Service) OwnerStats(ctx context.Context, actorID string) (OwnerStats, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return OwnerStats{}, err
	}
	subs, err := svc.repo.Query(ctx, &QueryFilter{InvolvedID: actor.ID})
	if err != nil {
		return OwnerStats{}, errors.Wrap(err, "querying submissions")
	}
	return computeOwnerStats(subs), nil
}

func computeOwnerStats(subs []Submission) OwnerStats {
	stats := OwnerStats{
		Total:   len(subs),
		ByState: lo.CountValuesBy(subs, func(s Submission) State { return s.State }),
	}
	for _, st := range AllStates {
		if _, ok := stats.ByState[st]; !ok {
			stats.ByState[st] = 0
		}
	}
	if stats.Total > 0 {
		rate := float64(stats.ByState[StateApproved]) / float64(stats.Total) * 100
		stats.CompletionRate = math.Round(rate*10) / 10
	}
	return stats
}

// ReviewerStats summarises the review workload of the actor.
func (svc *Service) ReviewerStats(ctx context.Context, actorID string) (ReviewerStats, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return ReviewerStats{}, err
	}
	if !actor.IsReviewer() {
		return ReviewerStats{}, errors.Wrap(ErrUnauthorized, "reviewer statistics")
	}
	subs, err := svc.repo.Query(ctx, &QueryFilter{
		States: []State{StateSubmitted, StateUnderReview, StateApproved, StateRejected},
	})
	if err != nil {
		return ReviewerStats{}, errors.Wrap(err, "querying submissions")
	}
	return computeReviewerStats(actor, subs), nil
}

func computeReviewerStats(actor Actor, subs []Submission) ReviewerStats {
	reviewable := lo.Filter(subs, func(s Submission, _ int) bool {
		return RoleOf(actor, s) == WorkflowReviewer
	})
	reviewed := lo.Filter(reviewable, func(s Submission, _ int) bool {
		return s.ReviewedBy != nil && s.ReviewedBy.ActorID == actor.ID
	})

	stats := ReviewerStats{
		PendingReview: lo.CountBy(reviewable, func(s Submission) bool { return s.State == StateSubmitted }),
		InReview: lo.CountBy(reviewable, func(s Submission) bool {
			rec, ok := lastTransitionInto(s, StateUnderReview)
			return s.State == StateUnderReview && ok && rec.ActorID == actor.ID
		}),
		Reviewed: len(reviewed),
	}

	durations := lo.FilterMap(reviewed, func(s Submission, _ int) (time.Duration, bool) {
		rec, ok := lastTransitionInto(s, StateSubmitted)
		if !ok {
			return 0, false
		}
		return s.ReviewedBy.At.Sub(rec.At), true
	})
	if len(durations) > 0 {
		stats.AverageReviewTime = lo.Sum(durations) / time.Duration(len(durations))
	}
	return stats
}

func lastTransitionInto(s Submission, st State) (TransitionRecord, bool) {
	rec, _, ok := lo.FindLastIndexOf(s.Transitions, func(rec TransitionRecord) bool { return rec.To == st })
	return rec, ok
}
