package review

import (
	"time"

	"github.com/pkg/errors"

	"github.com/internly/internly/core"
)

const (
	minRating = 1
	maxRating = 5
)

// NowFunc is the clock used for every timestamp in the workflow; tests may replace it.
var NowFunc = time.Now

type TransitionRequest struct {
	Actor    Actor
	To       State
	Feedback string
	Rating   *int
	// Payload replaces the content on the way into submitted (resubmission).
	Payload *Payload
	At      time.Time
}

// Apply moves sub to req.To and returns the resulting snapshot. sub is never modified:
// on error nothing changed, on success the caller persists the returned value.
func Apply(sub Submission, req TransitionRequest) (Submission, error) {
	from := sub.State
	leavingDraft := from == StateDraft && req.To != StateDraft
	entersReview := req.To == StateSubmitted || leavingDraft

	// a broken rubric never leaves draft nor re-enters review, forced or not
	if sub.Kind == KindEvaluation && entersReview {
		content := sub.Payload
		if req.Payload != nil {
			content = *req.Payload
		}
		if flds := payloadErrors(sub.Kind, content); len(flds) > 0 {
			return Submission{}, core.NewValidationError(ErrValidationFailed, flds...)
		}
		if _, err := ComputeScore(content.Evaluation.Criteria); err != nil {
			return Submission{}, err
		}
	}

	if !Reachable(req.Actor, from, req.To) {
		return Submission{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, req.To)
	}

	next := sub.Clone()
	if req.Payload != nil {
		if req.To != StateSubmitted {
			return Submission{}, core.NewValidationError(
				ErrValidationFailed,
				core.FieldError{Field: "payload", Error: "content can only change when submitting"},
			)
		}
		next.Payload = req.Payload.Clone()
	}
	if entersReview {
		if err := prepareForSubmission(&next, leavingDraft || req.Payload != nil); err != nil {
			return Submission{}, err
		}
	}

	forced, err := Authorize(req.Actor, sub, req.To)
	if err != nil {
		return Submission{}, errors.Wrapf(err, "%s -> %s by %s", from, req.To, RoleOf(req.Actor, sub))
	}

	feedback := core.CleanString(req.Feedback)
	if RequiresFeedback(req.To) && feedback == "" {
		return Submission{}, errors.Wrapf(ErrMissingFeedback, "%s -> %s", from, req.To)
	}
	if req.Rating != nil && (*req.Rating < minRating || *req.Rating > maxRating) {
		return Submission{}, core.NewValidationError(
			ErrValidationFailed,
			core.FieldError{Field: "rating", Error: "rating must be between 1 and 5"},
		)
	}

	at := req.At
	if at.IsZero() {
		at = NowFunc().UTC()
	}

	if entersReview && next.Kind == KindReport {
		next.RevisionHistory = append(next.RevisionHistory, Revision{
			Number:      len(next.RevisionHistory) + 1,
			Payload:     next.Payload.Report.clone(),
			SubmittedAt: at,
		})
	}
	switch req.To {
	case StateApproved, StateRejected:
		next.ReviewedBy = &ReviewDecision{ActorID: req.Actor.ID, At: at, Decision: req.To}
	}

	// a bare rating is kept as an entry without text
	if feedback != "" || req.Rating != nil {
		next.FeedbackHistory = append(next.FeedbackHistory, FeedbackEntry{
			AuthorID:     req.Actor.ID,
			Text:         feedback,
			Rating:       cloneInt(req.Rating),
			CreatedAt:    at,
			RelatedState: req.To,
		})
	}
	next.Transitions = append(next.Transitions, TransitionRecord{
		From:    from,
		To:      req.To,
		ActorID: req.Actor.ID,
		At:      at,
		Forced:  forced,
	})
	next.State = req.To
	next.UpdatedAt = at
	return next, nil
}

// prepareForSubmission validates the content entering review and, when asked, recomputes
// the evaluation score. A score is otherwise frozen once the evaluation has left draft.
func prepareForSubmission(sub *Submission, recompute bool) error {
	if flds := payloadErrors(sub.Kind, sub.Payload); len(flds) > 0 {
		return core.NewValidationError(ErrValidationFailed, flds...)
	}

	switch sub.Kind {
	case KindReport:
		if core.CleanString(sub.Payload.Report.Title) == "" {
			return core.NewValidationError(
				ErrValidationFailed,
				core.FieldError{Field: "payload.report.title", Error: "this field is required"},
			)
		}
	case KindApplication:
		if core.CleanString(sub.Payload.Application.Position) == "" {
			return core.NewValidationError(
				ErrValidationFailed,
				core.FieldError{Field: "payload.application.position", Error: "this field is required"},
			)
		}
	case KindEvaluation:
		score, err := ComputeScore(sub.Payload.Evaluation.Criteria)
		if err != nil {
			return err
		}
		if recompute || sub.Payload.Evaluation.Score == nil {
			sub.Payload.Evaluation.Score = &score
		}
	}
	return nil
}

// payloadErrors checks that the payload variant matches the submission kind.
func payloadErrors(kind Kind, p Payload) []core.FieldError {
	k, ok := p.Kind()
	if !ok {
		return []core.FieldError{{Field: "payload", Error: "exactly one of report, evaluation or application is required"}}
	}
	if k != kind {
		return []core.FieldError{{Field: "payload", Error: "payload does not match the submission kind " + string(kind)}}
	}
	return nil
}
