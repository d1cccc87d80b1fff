package review

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = Actor{ID: "owner", Role: RoleStudent}
	teacher  = Actor{ID: "teacher", Role: RoleTeacher}
	mentor   = Actor{ID: "mentor", Role: RoleMentor}
	outsider = Actor{ID: "outsider", Role: RoleStudent}
	admin    = Actor{ID: "admin", Role: RoleAdmin, IsAdmin: true}

	tstamp = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newReport(state State) Submission {
	sub := Submission{
		ID:      "sub-1",
		Kind:    KindReport,
		Subtype: SubtypeWeekly,
		OwnerID: owner.ID,
		State:   state,
		Payload: Payload{Report: &ReportPayload{
			Title:    "Week 1",
			Sections: []Section{{Heading: "Done", Body: "Set up the dev environment"}},
		}},
		FeedbackHistory: []FeedbackEntry{},
		Transitions:     []TransitionRecord{},
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
		Version:         1,
	}
	if state.Terminal() {
		sub.ReviewedBy = &ReviewDecision{ActorID: teacher.ID, At: tstamp, Decision: state}
	}
	return sub
}

func newEvaluation(criteria ...Criterion) Submission {
	return Submission{
		ID:              "sub-2",
		Kind:            KindEvaluation,
		Subtype:         SubtypeMentor,
		OwnerID:         owner.ID,
		ActorID:         mentor.ID,
		State:           StateDraft,
		Payload:         Payload{Evaluation: &EvaluationPayload{Criteria: criteria}},
		FeedbackHistory: []FeedbackEntry{},
		Transitions:     []TransitionRecord{},
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
		Version:         1,
	}
}

func apply(t *testing.T, sub Submission, actor Actor, to State, feedback string) Submission {
	t.Helper()
	next, err := Apply(sub, TransitionRequest{Actor: actor, To: to, Feedback: feedback, At: tstamp})
	require.NoError(t, err, "%s -> %s by %s", sub.State, to, actor.ID)
	return next
}

func TestApply_reachability(t *testing.T) {
	actors := []Actor{owner, teacher, mentor, outsider}

	for _, from := range AllStates {
		for _, to := range AllStates {
			for _, actor := range actors {
				sub := newReport(from)
				_, err := Apply(sub, TransitionRequest{Actor: actor, To: to, Feedback: "some feedback", At: tstamp})

				party, inTable := transitionTable[edge{from, to}]
				var wantErr error
				switch {
				case !inTable:
					wantErr = ErrInvalidTransition
				case party != RoleOf(actor, sub):
					wantErr = ErrUnauthorized
				}

				if wantErr == nil && err != nil {
					t.Errorf("Apply(%s -> %s by %s) error = %v, want nil", from, to, actor.ID, err)
				} else if wantErr != nil && !errors.Is(err, wantErr) {
					t.Errorf("Apply(%s -> %s by %s) error = %v, want %v", from, to, actor.ID, err, wantErr)
				}
			}
		}
	}
}

func TestApply_adminOverride(t *testing.T) {
	for _, from := range AllStates {
		for _, to := range AllStates {
			sub := newReport(from)
			next, err := Apply(sub, TransitionRequest{Actor: admin, To: to, Feedback: "forced", At: tstamp})

			if from.Terminal() || from == to {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Apply(%s -> %s by admin) error = %v, want %v", from, to, err, ErrInvalidTransition)
				}
				continue
			}
			if err != nil {
				t.Errorf("Apply(%s -> %s by admin) error = %v, want nil", from, to, err)
				continue
			}

			rec := next.Transitions[len(next.Transitions)-1]
			wantForced := !(Allowed(from, to) && transitionTable[edge{from, to}] == WorkflowReviewer)
			if rec.Forced != wantForced {
				t.Errorf("Apply(%s -> %s by admin) forced = %v, want %v", from, to, rec.Forced, wantForced)
			}
		}
	}
}

func TestApply_adminOverrideStillNeedsFeedback(t *testing.T) {
	for _, to := range []State{StateRejected, StateNeedsRevision} {
		sub := newReport(StateSubmitted)
		_, err := Apply(sub, TransitionRequest{Actor: admin, To: to, Feedback: "  ", At: tstamp})
		assert.ErrorIs(t, err, ErrMissingFeedback, "submitted -> %s", to)
	}
}

func TestApply_doesNotMutateInput(t *testing.T) {
	sub := newReport(StateUnderReview)
	sub.FeedbackHistory = append(sub.FeedbackHistory, FeedbackEntry{AuthorID: teacher.ID, Text: "first pass"})
	orig := sub.Clone()

	next := apply(t, sub, teacher, StateNeedsRevision, "add more detail")
	next.Payload.Report.Title = "changed"
	next.FeedbackHistory[0].Text = "changed"

	if !reflect.DeepEqual(sub, orig) {
		t.Errorf("Apply() mutated its input:\n got %+v\nwant %+v", sub, orig)
	}
}

func TestApply_rejectionWithoutFeedback(t *testing.T) {
	sub := newReport(StateUnderReview)
	orig := sub.Clone()

	// the rejection is refused the same way every time
	for i := 0; i < 2; i++ {
		got, err := Apply(sub, TransitionRequest{Actor: teacher, To: StateRejected, At: tstamp})
		if !errors.Is(err, ErrMissingFeedback) {
			t.Fatalf("Apply() #%d error = %v, want %v", i, err, ErrMissingFeedback)
		}
		if !reflect.DeepEqual(got, Submission{}) {
			t.Errorf("Apply() #%d returned a snapshot on error", i)
		}
	}
	assert.Equal(t, orig, sub)
	assert.Equal(t, StateUnderReview, sub.State)
	assert.Empty(t, sub.FeedbackHistory)
}

func TestApply_feedbackMonotonic(t *testing.T) {
	sub := newReport(StateDraft)
	steps := []struct {
		actor    Actor
		to       State
		feedback string
	}{
		{owner, StateSubmitted, ""},
		{teacher, StateUnderReview, ""},
		{teacher, StateNeedsRevision, "add more detail"},
		{owner, StateSubmitted, "done"},
		{mentor, StateUnderReview, ""},
		{mentor, StateNeedsRevision, "still thin"},
		{owner, StateSubmitted, ""},
		{teacher, StateUnderReview, ""},
		{teacher, StateRejected, "off topic"},
	}

	for _, step := range steps {
		next := apply(t, sub, step.actor, step.to, step.feedback)
		if len(next.FeedbackHistory) < len(sub.FeedbackHistory) {
			t.Fatalf("%s -> %s: feedback shrank from %d to %d", sub.State, step.to, len(sub.FeedbackHistory), len(next.FeedbackHistory))
		}
		assert.Equal(t, sub.FeedbackHistory, next.FeedbackHistory[:len(sub.FeedbackHistory)], "history prefix must be unchanged")
		sub = next
	}
	assert.Len(t, sub.FeedbackHistory, 4)
	assert.Len(t, sub.RevisionHistory, 3)
	assert.Len(t, sub.Transitions, len(steps))
}

func TestApply_reviewedByOnlyWhenTerminal(t *testing.T) {
	sub := newReport(StateDraft)
	for _, step := range []struct {
		actor Actor
		to    State
	}{
		{owner, StateSubmitted},
		{teacher, StateUnderReview},
		{teacher, StateApproved},
	} {
		sub = apply(t, sub, step.actor, step.to, "")
		if got := sub.ReviewedBy != nil; got != sub.State.Terminal() {
			t.Errorf("state %s: reviewedBy set = %v", sub.State, got)
		}
	}
	require.NotNil(t, sub.ReviewedBy)
	assert.Equal(t, teacher.ID, sub.ReviewedBy.ActorID)
	assert.Equal(t, StateApproved, sub.ReviewedBy.Decision)
}

func TestApply_reportRevisions(t *testing.T) {
	sub := apply(t, newReport(StateDraft), owner, StateSubmitted, "")
	require.Len(t, sub.RevisionHistory, 1)
	assert.Equal(t, 1, sub.RevisionHistory[0].Number)
	assert.Equal(t, "Week 1", sub.RevisionHistory[0].Payload.Title)

	sub = apply(t, sub, teacher, StateUnderReview, "")
	sub = apply(t, sub, teacher, StateNeedsRevision, "add more detail")

	revised := Payload{Report: &ReportPayload{Title: "Week 1 (revised)"}}
	sub, err := Apply(sub, TransitionRequest{Actor: owner, To: StateSubmitted, Payload: &revised, At: tstamp})
	require.NoError(t, err)
	require.Len(t, sub.RevisionHistory, 2)
	assert.Equal(t, 2, sub.RevisionHistory[1].Number)
	assert.Equal(t, "Week 1 (revised)", sub.RevisionHistory[1].Payload.Title)
	assert.Equal(t, "Week 1", sub.RevisionHistory[0].Payload.Title)
}

func TestApply_payloadOnlyOnSubmission(t *testing.T) {
	sub := newReport(StateSubmitted)
	p := Payload{Report: &ReportPayload{Title: "sneaky edit"}}
	_, err := Apply(sub, TransitionRequest{Actor: teacher, To: StateUnderReview, Payload: &p, At: tstamp})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestApply_evaluationValidation(t *testing.T) {
	tests := []struct {
		name     string
		actor    Actor
		criteria []Criterion
		wantErr  error
	}{
		{name: "empty rubric", actor: mentor, criteria: nil, wantErr: ErrValidationFailed},
		{name: "zero weight", actor: mentor, criteria: []Criterion{{Name: "a", Weight: 0, Score: 4}}, wantErr: ErrValidationFailed},
		{name: "validation before authorization", actor: outsider, criteria: nil, wantErr: ErrValidationFailed},
		{name: "valid rubric, wrong actor", actor: owner, criteria: []Criterion{{Name: "a", Weight: 1, Score: 4}}, wantErr: ErrUnauthorized},
		{name: "valid rubric", actor: mentor, criteria: []Criterion{{Name: "a", Weight: 1, Score: 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newEvaluation(tt.criteria...)
			next, err := Apply(sub, TransitionRequest{Actor: tt.actor, To: StateSubmitted, At: tstamp})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StateDraft, sub.State)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, next.Score())
			assert.Equal(t, 80.0, *next.Score())
		})
	}

	t.Run("validation before table lookup", func(t *testing.T) {
		sub := newEvaluation()
		sub.State = StateApproved
		_, err := Apply(sub, TransitionRequest{Actor: mentor, To: StateSubmitted, At: tstamp})
		assert.ErrorIs(t, err, ErrValidationFailed)

		sub = newEvaluation(Criterion{Name: "a", Weight: 1, Score: 4})
		sub.State = StateApproved
		_, err = Apply(sub, TransitionRequest{Actor: mentor, To: StateSubmitted, At: tstamp})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestApply_scoreFrozenAfterDraft(t *testing.T) {
	sub := newEvaluation(
		Criterion{Name: "Technical", Weight: 2, Score: 4},
		Criterion{Name: "Communication", Weight: 1, Score: 3},
	)
	sub = apply(t, sub, mentor, StateSubmitted, "")
	require.NotNil(t, sub.Score())
	assert.Equal(t, 73.3, *sub.Score())

	sub = apply(t, sub, teacher, StateUnderReview, "")
	sub = apply(t, sub, teacher, StateNeedsRevision, "justify the communication score")

	// resubmitting the same rubric keeps the frozen score
	sub = apply(t, sub, mentor, StateSubmitted, "")
	assert.Equal(t, 73.3, *sub.Score())

	// a new rubric is scored again
	sub = apply(t, sub, teacher, StateUnderReview, "")
	sub = apply(t, sub, teacher, StateNeedsRevision, "one more pass")
	revised := Payload{Evaluation: &EvaluationPayload{Criteria: []Criterion{{Name: "Technical", Weight: 1, Score: 5}}}}
	sub, err := Apply(sub, TransitionRequest{Actor: mentor, To: StateSubmitted, Payload: &revised, At: tstamp})
	require.NoError(t, err)
	assert.Equal(t, 100.0, *sub.Score())
}

func TestApply_payloadKindMismatch(t *testing.T) {
	sub := newReport(StateDraft)
	sub.Payload = Payload{Application: &ApplicationPayload{Position: "Backend intern"}}
	_, err := Apply(sub, TransitionRequest{Actor: owner, To: StateSubmitted, At: tstamp})
	assert.ErrorIs(t, err, ErrValidationFailed)

	sub.Payload = Payload{}
	_, err = Apply(sub, TransitionRequest{Actor: owner, To: StateSubmitted, At: tstamp})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestApply_rating(t *testing.T) {
	sub := newReport(StateUnderReview)
	bad, good := 6, 4

	_, err := Apply(sub, TransitionRequest{Actor: teacher, To: StateApproved, Feedback: "ok", Rating: &bad, At: tstamp})
	assert.ErrorIs(t, err, ErrValidationFailed)

	next, err := Apply(sub, TransitionRequest{Actor: teacher, To: StateApproved, Feedback: "ok", Rating: &good, At: tstamp})
	require.NoError(t, err)
	require.Len(t, next.FeedbackHistory, 1)
	require.NotNil(t, next.FeedbackHistory[0].Rating)
	assert.Equal(t, 4, *next.FeedbackHistory[0].Rating)
	assert.Equal(t, StateApproved, next.FeedbackHistory[0].RelatedState)

	next, err = Apply(sub, TransitionRequest{Actor: teacher, To: StateApproved, Rating: &good, At: tstamp})
	require.NoError(t, err)
	require.Len(t, next.FeedbackHistory, 1, "a bare rating is kept")
	assert.Empty(t, next.FeedbackHistory[0].Text)
	require.NotNil(t, next.FeedbackHistory[0].Rating)
	assert.Equal(t, 4, *next.FeedbackHistory[0].Rating)

	next, err = Apply(sub, TransitionRequest{Actor: teacher, To: StateApproved, At: tstamp})
	require.NoError(t, err)
	assert.Empty(t, next.FeedbackHistory)
}

func TestApply_forcedOutOfDraft(t *testing.T) {
	targets := []State{StateUnderReview, StateApproved, StateRejected, StateNeedsRevision}

	for _, to := range targets {
		t.Run("empty rubric to "+string(to), func(t *testing.T) {
			sub := newEvaluation()
			_, err := Apply(sub, TransitionRequest{Actor: admin, To: to, Feedback: "forced", At: tstamp})
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Equal(t, StateDraft, sub.State)
		})
	}

	t.Run("valid rubric is scored", func(t *testing.T) {
		sub := newEvaluation(Criterion{Name: "a", Weight: 1, Score: 4})
		next, err := Apply(sub, TransitionRequest{Actor: admin, To: StateApproved, At: tstamp})
		require.NoError(t, err)
		assert.True(t, next.Transitions[0].Forced)
		require.NotNil(t, next.Score())
		assert.Equal(t, 80.0, *next.Score())
	})

	t.Run("report content is snapshotted", func(t *testing.T) {
		sub := newReport(StateDraft)
		next, err := Apply(sub, TransitionRequest{Actor: admin, To: StateUnderReview, At: tstamp})
		require.NoError(t, err)
		require.Len(t, next.RevisionHistory, 1)
		assert.Equal(t, sub.Payload.Report.Title, next.RevisionHistory[0].Payload.Title)
	})
}

func TestApply_assignedApplication(t *testing.T) {
	sub := Submission{
		ID:      "sub-3",
		Kind:    KindApplication,
		Subtype: SubtypeInternship,
		OwnerID: owner.ID,
		ActorID: mentor.ID,
		State:   StateSubmitted,
		Payload: Payload{Application: &ApplicationPayload{Position: "Data intern"}},
		Version: 1,
	}

	_, err := Apply(sub, TransitionRequest{Actor: teacher, To: StateUnderReview, At: tstamp})
	assert.ErrorIs(t, err, ErrUnauthorized)

	next, err := Apply(sub, TransitionRequest{Actor: mentor, To: StateUnderReview, At: tstamp})
	require.NoError(t, err)
	assert.Equal(t, StateUnderReview, next.State)
}
