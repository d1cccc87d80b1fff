package review

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/internly/internly/core"
)

type Service struct {
	repo        Repository
	identity    Identity
	notifier    Notifier
	attachments AttachmentResolver
	logger      core.Logger
}

func NewService(
	repo Repository,
	identity Identity,
	notifier Notifier,
	attachments AttachmentResolver,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		identity:    identity,
		notifier:    notifier,
		attachments: attachments,
		logger:      logger,
	}
}

func (svc *Service) resolve(ctx context.Context, actorID string) (Actor, error) {
	actor, err := svc.identity.ResolveActor(ctx, actorID)
	if err != nil {
		return Actor{}, errors.Wrap(err, "resolving actor")
	}
	return actor, nil
}

// Create stores a new draft. Reports and applications belong to the student creating them;
// mentor and teacher evaluations are authored by the actor about the student in ns.OwnerID.
func (svc *Service) Create(ctx context.Context, actorID string, ns NewSubmission) (Submission, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return Submission{}, err
	}
	if !SubtypeOf(ns.Kind, ns.Subtype) {
		return Submission{}, core.NewValidationError(
			ErrValidationFailed,
			core.FieldError{Field: "subtype", Error: fmt.Sprintf("invalid subtype for %s", ns.Kind)},
		)
	}
	if flds := payloadErrors(ns.Kind, ns.Payload); len(flds) > 0 {
		return Submission{}, core.NewValidationError(ErrValidationFailed, flds...)
	}

	now := NowFunc().UTC()
	sub := Submission{
		Kind:            ns.Kind,
		Subtype:         ns.Subtype,
		State:           StateDraft,
		Payload:         ns.Payload.Clone(),
		FeedbackHistory: make([]FeedbackEntry, 0),
		Transitions:     make([]TransitionRecord, 0),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch {
	case ns.Kind == KindEvaluation && ns.Subtype != SubtypeSelf:
		if !(actor.IsAdmin || string(actor.Role) == string(ns.Subtype)) {
			return Submission{}, errors.Wrapf(ErrUnauthorized, "%s evaluation by %s", ns.Subtype, actor.Role)
		}
		if err := svc.checkParticipant(ctx, "ownerId", ns.OwnerID, isStudent); err != nil {
			return Submission{}, err
		}
		sub.OwnerID, sub.ActorID = ns.OwnerID, actor.ID
	default:
		// reports, applications and self-evaluations
		sub.OwnerID = actor.ID
		switch {
		case actor.IsAdmin && ns.OwnerID != "":
			if err := svc.checkParticipant(ctx, "ownerId", ns.OwnerID, isStudent); err != nil {
				return Submission{}, err
			}
			sub.OwnerID = ns.OwnerID
		case !actor.IsAdmin && actor.Role != RoleStudent:
			return Submission{}, errors.Wrapf(ErrUnauthorized, "%s created by %s", ns.Kind, actor.Role)
		}
		switch ns.Kind {
		case KindEvaluation:
			sub.ActorID = sub.OwnerID
		case KindApplication:
			if ns.ActorID != "" {
				if err := svc.checkParticipant(ctx, "actorId", ns.ActorID, Actor.IsReviewer); err != nil {
					return Submission{}, err
				}
				sub.ActorID = ns.ActorID
			}
		}
	}
	svc.refreshScore(&sub)

	sub, err = svc.repo.Create(ctx, sub)
	if err != nil {
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	svc.logger.Info(fmt.Sprintf("submission %s: %s %s draft created", sub.ID, sub.Subtype, sub.Kind), actor)
	return sub, nil
}

// checkParticipant makes sure the user referenced by field exists and satisfies ok.
func (svc *Service) checkParticipant(ctx context.Context, field, id string, ok func(Actor) bool) error {
	invalid := core.NewValidationError(
		ErrValidationFailed,
		core.FieldError{Field: field, Error: "invalid user"},
	)
	if id == "" {
		return invalid
	}
	a, err := svc.identity.ResolveActor(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return invalid
		}
		return errors.Wrap(err, "resolving participant")
	}
	if !ok(a) {
		return invalid
	}
	return nil
}

func isStudent(a Actor) bool { return a.Role == RoleStudent }

// refreshScore recomputes the draft evaluation score, leaving it empty while the rubric is invalid.
func (svc *Service) refreshScore(sub *Submission) {
	if sub.Payload.Evaluation == nil {
		return
	}
	sub.Payload.Evaluation.Score = nil
	if score, err := ComputeScore(sub.Payload.Evaluation.Criteria); err == nil {
		sub.Payload.Evaluation.Score = &score
	}
}

// UpdateDraft replaces the content of a draft.
func (svc *Service) UpdateDraft(ctx context.Context, id, actorID string, payload Payload) (Submission, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.Load(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "loading submission")
	}
	if sub.State != StateDraft {
		return Submission{}, errors.Wrapf(ErrInvalidTransition, "editing a %s submission", sub.State)
	}
	if !(actor.ID == sub.SubmitterID() || actor.IsAdmin) {
		return Submission{}, errors.Wrap(ErrUnauthorized, "editing draft")
	}
	if flds := payloadErrors(sub.Kind, payload); len(flds) > 0 {
		return Submission{}, core.NewValidationError(ErrValidationFailed, flds...)
	}

	next := sub.Clone()
	next.Payload = payload.Clone()
	next.UpdatedAt = NowFunc().UTC()
	svc.refreshScore(&next)

	saved, err := svc.repo.Save(ctx, next, sub.Version)
	if err != nil {
		return Submission{}, errors.Wrap(err, "saving submission")
	}
	return saved, nil
}

// SubmitDraft hands a draft over for review.
func (svc *Service) SubmitDraft(ctx context.Context, id, actorID string) (Submission, error) {
	return svc.transition(ctx, id, actorID, TransitionRequest{To: StateSubmitted}, StateDraft)
}

// BeginReview claims a submitted submission for review.
func (svc *Service) BeginReview(ctx context.Context, id, reviewerID string) (Submission, error) {
	return svc.transition(ctx, id, reviewerID, TransitionRequest{To: StateUnderReview}, StateSubmitted)
}

// Decide approves or rejects a submission under review. Rejections need feedback;
// an optional rating (1-5) is stored alongside it.
func (svc *Service) Decide(
	ctx context.Context,
	id, reviewerID string,
	decision State,
	feedback string,
	rating ...int,
) (Submission, error) {
	if !decision.Terminal() {
		return Submission{}, core.NewValidationError(
			ErrValidationFailed,
			core.FieldError{Field: "decision", Error: "decision must be approved or rejected"},
		)
	}
	req := TransitionRequest{To: decision, Feedback: feedback}
	if len(rating) > 0 {
		req.Rating = &rating[0]
	}
	return svc.transition(ctx, id, reviewerID, req, StateUnderReview)
}

// RequestRevision sends a submission back to its submitter with mandatory feedback.
func (svc *Service) RequestRevision(ctx context.Context, id, reviewerID, feedback string) (Submission, error) {
	return svc.transition(ctx, id, reviewerID, TransitionRequest{To: StateNeedsRevision, Feedback: feedback}, StateUnderReview)
}

// Resubmit puts a revised submission back into review. A nil payload keeps the current content.
func (svc *Service) Resubmit(ctx context.Context, id, ownerID string, newPayload *Payload) (Submission, error) {
	req := TransitionRequest{To: StateSubmitted, Payload: newPayload}
	return svc.transition(ctx, id, ownerID, req, StateNeedsRevision)
}

// Transition loads the submission, applies the request, saves conditionally and emits the
// event. It is the only entry point that lets admins force moves outside the transition
// table; the named operations above accept their table source state only.
func (svc *Service) Transition(ctx context.Context, id, actorID string, req TransitionRequest) (Submission, error) {
	return svc.transition(ctx, id, actorID, req)
}

// transition restricts the source state to sources when any are given.
func (svc *Service) transition(
	ctx context.Context,
	id, actorID string,
	req TransitionRequest,
	sources ...State,
) (Submission, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.Load(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "loading submission")
	}
	if len(sources) > 0 && !lo.Contains(sources, sub.State) {
		return Submission{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", sub.State, req.To)
	}

	req.Actor = actor
	req.At = NowFunc().UTC()
	next, err := Apply(sub, req)
	if err != nil {
		return Submission{}, err
	}

	saved, err := svc.repo.Save(ctx, next, sub.Version)
	if err != nil {
		return Submission{}, errors.Wrap(err, "saving submission")
	}

	last := saved.Transitions[len(saved.Transitions)-1]
	msg := fmt.Sprintf("submission %s: %s -> %s", saved.ID, last.From, last.To)
	if last.Forced {
		msg += " (forced)"
	}
	svc.logger.Info(msg, actor)

	svc.emit(ctx, Event{
		SubmissionID: saved.ID,
		Kind:         saved.Kind,
		Subtype:      saved.Subtype,
		OwnerID:      saved.OwnerID,
		ActorID:      actor.ID,
		From:         last.From,
		To:           last.To,
		Feedback:     core.CleanString(req.Feedback),
		At:           last.At,
	})
	return saved, nil
}

func (svc *Service) emit(ctx context.Context, evt Event) {
	if svc.notifier == nil {
		return
	}
	if err := svc.notifier.Emit(ctx, evt); err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying %s -> %s on submission %s: %v", evt.From, evt.To, evt.SubmissionID, err), err)
	}
}

// Get returns a submission the actor is allowed to see.
func (svc *Service) Get(ctx context.Context, id, actorID string) (Submission, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.Load(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "loading submission")
	}
	if !CanView(actor, sub) {
		// hide existence from outsiders
		return Submission{}, ErrNotFound
	}
	return sub, nil
}

// Query lists the submissions matching filter that the actor is allowed to see.
func (svc *Service) Query(
	ctx context.Context,
	actorID string,
	filter QueryFilter,
	ordering ...core.DBOrdering,
) ([]Submission, error) {
	actor, err := svc.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsReviewer() {
		filter.InvolvedID = actor.ID
	}
	subs, err := svc.repo.Query(ctx, &filter, ordering...)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return lo.Filter(subs, func(s Submission, _ int) bool { return CanView(actor, s) }), nil
}

// Attachments resolves every attachment of a submission into a fetchable locator.
func (svc *Service) Attachments(ctx context.Context, id, actorID string) ([]Locator, error) {
	sub, err := svc.Get(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	refs := sub.Payload.Attachments()
	locs := make([]Locator, 0, len(refs))
	for _, ref := range refs {
		loc, err := svc.attachments.Resolve(ctx, ref)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving attachment %q", ref)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
