package review_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
	inmemdb "github.com/internly/internly/storage/database/inmem"
	testutil "github.com/internly/internly/tests"
)

type fixture struct {
	svc      *review.Service
	repo     review.Repository
	notifier *testutil.Notifier
	logger   *testutil.Logger

	student, student2, mentor, teacher, admin, inactive user.User
}

type resolverFunc func(ctx context.Context, ref string) (review.Locator, error)

func (f resolverFunc) Resolve(ctx context.Context, ref string) (review.Locator, error) { return f(ctx, ref) }

func setup(t *testing.T, wrap ...func(review.Repository) review.Repository) *fixture {
	t.Helper()

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	var repo review.Repository = inmemdb.NewSubmissionRepository(db)
	for _, w := range wrap {
		repo = w(repo)
	}

	f := &fixture{
		repo:     repo,
		notifier: &testutil.Notifier{},
		logger:   &testutil.Logger{},
	}
	resolver := resolverFunc(func(_ context.Context, ref string) (review.Locator, error) {
		return review.Locator{Ref: ref, URL: "https://files.example.com/" + ref}, nil
	})
	f.svc = review.NewService(repo, user.NewService(usrRepo), f.notifier, resolver, f.logger)

	f.student = testutil.CreateUser(t, usrRepo, "Amina Student", "amina", "amina@example.com", "", []string{user.RoleStudent}, true)
	f.student2 = testutil.CreateUser(t, usrRepo, "Bilal Student", "bilal", "bilal@example.com", "", []string{user.RoleStudent}, true)
	f.mentor = testutil.CreateUser(t, usrRepo, "Chris Mentor", "chris", "chris@example.com", "", []string{user.RoleMentor}, true)
	f.teacher = testutil.CreateUser(t, usrRepo, "Dana Teacher", "dana", "dana@example.com", "", []string{user.RoleTeacher}, true)
	f.admin = testutil.CreateUser(t, usrRepo, "Eli Admin", "eli", "eli@example.com", "", []string{user.RoleAdmin}, true)
	f.inactive = testutil.CreateUser(t, usrRepo, "Fay Gone", "fay", "fay@example.com", "", []string{user.RoleTeacher}, false)
	return f
}

func (f *fixture) report(t *testing.T) review.Submission {
	t.Helper()
	sub, err := f.svc.Create(context.Background(), f.student.ID, review.NewSubmission{
		Kind:    review.KindReport,
		Subtype: review.SubtypeWeekly,
		Payload: testutil.ReportPayload("Week 3", "Wrote the ingestion job"),
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) underReview(t *testing.T) review.Submission {
	t.Helper()
	ctx := context.Background()
	sub := f.report(t)
	_, err := f.svc.SubmitDraft(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)
	sub, err = f.svc.BeginReview(ctx, sub.ID, f.teacher.ID)
	require.NoError(t, err)
	return sub
}

func TestService_reportLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub := f.report(t)
	assert.Equal(t, review.StateDraft, sub.State)
	assert.Equal(t, int64(1), sub.Version)

	sub, err := f.svc.SubmitDraft(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StateSubmitted, sub.State)
	require.Len(t, sub.RevisionHistory, 1)
	assert.Equal(t, 1, sub.RevisionHistory[0].Number)

	sub, err = f.svc.BeginReview(ctx, sub.ID, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StateUnderReview, sub.State)

	sub, err = f.svc.RequestRevision(ctx, sub.ID, f.teacher.ID, "add more detail")
	require.NoError(t, err)
	assert.Equal(t, review.StateNeedsRevision, sub.State)
	assert.Len(t, sub.FeedbackHistory, 1)

	revised := testutil.ReportPayload("Week 3", "Wrote the ingestion job", "Benchmarked it against last week's data")
	sub, err = f.svc.Resubmit(ctx, sub.ID, f.student.ID, &revised)
	require.NoError(t, err)
	assert.Equal(t, review.StateSubmitted, sub.State)
	require.Len(t, sub.RevisionHistory, 2)
	assert.Equal(t, 2, sub.RevisionHistory[1].Number)
	assert.Len(t, sub.RevisionHistory[1].Payload.Sections, 2)

	_, err = f.svc.BeginReview(ctx, sub.ID, f.teacher.ID)
	require.NoError(t, err)
	sub, err = f.svc.Decide(ctx, sub.ID, f.teacher.ID, review.StateApproved, "good")
	require.NoError(t, err)
	assert.Equal(t, review.StateApproved, sub.State)
	require.NotNil(t, sub.ReviewedBy)
	assert.Equal(t, f.teacher.ID, sub.ReviewedBy.ActorID)
	assert.Len(t, sub.FeedbackHistory, 2)

	stored, err := f.repo.Load(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub, stored)
	assert.Equal(t, int64(7), stored.Version)

	require.Equal(t, 6, f.notifier.Len())
	last := f.notifier.Events[5]
	assert.Equal(t, review.StateUnderReview, last.From)
	assert.Equal(t, review.StateApproved, last.To)
	assert.Equal(t, f.student.ID, last.OwnerID)
	assert.Equal(t, "good", last.Feedback)
}

func TestService_evaluationScorePreserved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, f.mentor.ID, review.NewSubmission{
		Kind:    review.KindEvaluation,
		Subtype: review.SubtypeMentor,
		OwnerID: f.student.ID,
		Payload: testutil.EvaluationPayload(
			review.Criterion{Name: "Technical", Weight: 2, Score: 4},
			review.Criterion{Name: "Communication", Weight: 1, Score: 3},
		),
	})
	require.NoError(t, err)
	assert.Equal(t, f.mentor.ID, sub.ActorID)
	assert.Equal(t, f.student.ID, sub.OwnerID)
	require.NotNil(t, sub.Score())
	assert.Equal(t, 73.3, *sub.Score())

	steps := []func() (review.Submission, error){
		func() (review.Submission, error) { return f.svc.SubmitDraft(ctx, sub.ID, f.mentor.ID) },
		func() (review.Submission, error) { return f.svc.BeginReview(ctx, sub.ID, f.teacher.ID) },
		func() (review.Submission, error) {
			return f.svc.Decide(ctx, sub.ID, f.teacher.ID, review.StateApproved, "")
		},
	}
	for _, step := range steps {
		sub, err = step()
		require.NoError(t, err)
		require.NotNil(t, sub.Score())
		assert.Equal(t, 73.3, *sub.Score(), "state %s", sub.State)
	}
	assert.Equal(t, review.StateApproved, sub.State)
}

func TestService_concurrentTransitions(t *testing.T) {
	var loads sync.WaitGroup
	loads.Add(2)
	f := setup(t, func(r review.Repository) review.Repository {
		return &barrierRepo{Repository: r, wg: &loads}
	})
	ctx := context.Background()

	// set up with the barrier disarmed
	barrier := f.repo.(*barrierRepo)
	barrier.disarmed = true
	sub := f.report(t)
	_, err := f.svc.SubmitDraft(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)
	barrier.disarmed = false

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, reviewer := range []string{f.teacher.ID, f.mentor.ID} {
		wg.Add(1)
		go func(i int, reviewer string) {
			defer wg.Done()
			_, errs[i] = f.svc.BeginReview(ctx, sub.ID, reviewer)
		}(i, reviewer)
	}
	wg.Wait()
	barrier.disarmed = true

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, review.ErrConcurrentModification):
			conflicts++
		default:
			t.Errorf("BeginReview() unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	stored, err := f.repo.Load(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StateUnderReview, stored.State)
	assert.Len(t, stored.Transitions, 2)
}

// barrierRepo holds every Load until two callers have loaded, so both act on the same version.
type barrierRepo struct {
	review.Repository
	wg       *sync.WaitGroup
	disarmed bool
}

func (r *barrierRepo) Load(ctx context.Context, id string) (review.Submission, error) {
	sub, err := r.Repository.Load(ctx, id)
	if !r.disarmed {
		r.wg.Done()
		r.wg.Wait()
	}
	return sub, err
}

func TestService_rejectWithoutFeedback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.underReview(t)
	events := f.notifier.Len()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Decide(ctx, sub.ID, f.teacher.ID, review.StateRejected, "   ")
		assert.ErrorIs(t, err, review.ErrMissingFeedback)
	}

	stored, err := f.repo.Load(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub, stored)
	assert.Equal(t, events, f.notifier.Len())
}

func TestService_decideValidatesDecision(t *testing.T) {
	f := setup(t)
	sub := f.underReview(t)
	_, err := f.svc.Decide(context.Background(), sub.ID, f.teacher.ID, review.StateNeedsRevision, "why")
	assert.ErrorIs(t, err, review.ErrValidationFailed)
}

func TestService_notificationFailureIsLogged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.report(t)
	f.notifier.Err = errors.New("smtp down")

	sub, err := f.svc.SubmitDraft(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StateSubmitted, sub.State)

	stored, err := f.repo.Load(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StateSubmitted, stored.State)
	assert.Equal(t, 1, f.logger.Count("warn"))
}

func TestService_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.report(t)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name: "unknown submission",
			call: func() error {
				_, err := f.svc.SubmitDraft(ctx, "00000000-0000-4000-8000-000000000000", f.student.ID)
				return err
			},
			wantErr: review.ErrNotFound,
		},
		{
			name: "unknown actor",
			call: func() error {
				_, err := f.svc.SubmitDraft(ctx, sub.ID, "nobody")
				return err
			},
			wantErr: review.ErrUnauthorized,
		},
		{
			name: "deactivated reviewer",
			call: func() error {
				_, err := f.svc.BeginReview(ctx, sub.ID, f.inactive.ID)
				return err
			},
			wantErr: review.ErrUnauthorized,
		},
		{
			name: "other student submits",
			call: func() error {
				_, err := f.svc.SubmitDraft(ctx, sub.ID, f.student2.ID)
				return err
			},
			wantErr: review.ErrUnauthorized,
		},
		{
			name: "review a draft",
			call: func() error {
				_, err := f.svc.BeginReview(ctx, sub.ID, f.teacher.ID)
				return err
			},
			wantErr: review.ErrInvalidTransition,
		},
		{
			name: "resubmit a draft",
			call: func() error {
				_, err := f.svc.Resubmit(ctx, sub.ID, f.student.ID, nil)
				return err
			},
			wantErr: review.ErrInvalidTransition,
		},
		{
			name: "admin decides a draft",
			call: func() error {
				_, err := f.svc.Decide(ctx, sub.ID, f.admin.ID, review.StateApproved, "")
				return err
			},
			wantErr: review.ErrInvalidTransition,
		},
		{
			name: "admin reviews a draft",
			call: func() error {
				_, err := f.svc.BeginReview(ctx, sub.ID, f.admin.ID)
				return err
			},
			wantErr: review.ErrInvalidTransition,
		},
		{
			name: "admin requests revision of a draft",
			call: func() error {
				_, err := f.svc.RequestRevision(ctx, sub.ID, f.admin.ID, "redo")
				return err
			},
			wantErr: review.ErrInvalidTransition,
		},
		{
			name: "other student reads",
			call: func() error {
				_, err := f.svc.Get(ctx, sub.ID, f.student2.ID)
				return err
			},
			wantErr: review.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	evalPayload := testutil.EvaluationPayload(review.Criterion{Name: "Teamwork", Weight: 1, Score: 5})

	tests := []struct {
		name    string
		actorID string
		ns      review.NewSubmission
		wantErr error
	}{
		{
			name:    "student report",
			actorID: f.student.ID,
			ns:      review.NewSubmission{Kind: review.KindReport, Subtype: review.SubtypeFinal, Payload: testutil.ReportPayload("Final")},
		},
		{
			name:    "teacher cannot own a report",
			actorID: f.teacher.ID,
			ns:      review.NewSubmission{Kind: review.KindReport, Subtype: review.SubtypeFinal, Payload: testutil.ReportPayload("Final")},
			wantErr: review.ErrUnauthorized,
		},
		{
			name:    "subtype of another kind",
			actorID: f.student.ID,
			ns:      review.NewSubmission{Kind: review.KindReport, Subtype: review.SubtypeMentor, Payload: testutil.ReportPayload("Final")},
			wantErr: review.ErrValidationFailed,
		},
		{
			name:    "payload of another kind",
			actorID: f.student.ID,
			ns:      review.NewSubmission{Kind: review.KindReport, Subtype: review.SubtypeFinal, Payload: testutil.ApplicationPayload("intern")},
			wantErr: review.ErrValidationFailed,
		},
		{
			name:    "self evaluation",
			actorID: f.student.ID,
			ns:      review.NewSubmission{Kind: review.KindEvaluation, Subtype: review.SubtypeSelf, Payload: evalPayload},
		},
		{
			name:    "teacher evaluation by a mentor",
			actorID: f.mentor.ID,
			ns:      review.NewSubmission{Kind: review.KindEvaluation, Subtype: review.SubtypeTeacher, OwnerID: f.student.ID, Payload: evalPayload},
			wantErr: review.ErrUnauthorized,
		},
		{
			name:    "mentor evaluation of a teacher",
			actorID: f.mentor.ID,
			ns:      review.NewSubmission{Kind: review.KindEvaluation, Subtype: review.SubtypeMentor, OwnerID: f.teacher.ID, Payload: evalPayload},
			wantErr: review.ErrValidationFailed,
		},
		{
			name:    "application assigned to a mentor",
			actorID: f.student.ID,
			ns:      review.NewSubmission{Kind: review.KindApplication, Subtype: review.SubtypeInternship, ActorID: f.mentor.ID, Payload: testutil.ApplicationPayload("Backend intern")},
		},
		{
			name:    "application assigned to a student",
			actorID: f.student.ID,
			ns:      review.NewSubmission{Kind: review.KindApplication, Subtype: review.SubtypeInternship, ActorID: f.student2.ID, Payload: testutil.ApplicationPayload("Backend intern")},
			wantErr: review.ErrValidationFailed,
		},
		{
			name:    "admin on behalf of a student",
			actorID: f.admin.ID,
			ns:      review.NewSubmission{Kind: review.KindReport, Subtype: review.SubtypeWeekly, OwnerID: f.student.ID, Payload: testutil.ReportPayload("W1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := f.svc.Create(ctx, tt.actorID, tt.ns)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, sub.ID)
			assert.Equal(t, review.StateDraft, sub.State)
			assert.Equal(t, tt.ns.Kind, sub.Kind)
		})
	}
}

func TestService_UpdateDraft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, f.student.ID, review.NewSubmission{
		Kind:    review.KindEvaluation,
		Subtype: review.SubtypeSelf,
		Payload: testutil.EvaluationPayload(),
	})
	require.NoError(t, err)
	assert.Nil(t, sub.Score(), "an empty rubric has no score")

	sub, err = f.svc.UpdateDraft(ctx, sub.ID, f.student.ID, testutil.EvaluationPayload(
		review.Criterion{Name: "Autonomy", Weight: 1, Score: 2},
	))
	require.NoError(t, err)
	require.NotNil(t, sub.Score())
	assert.Equal(t, 40.0, *sub.Score())
	assert.Equal(t, int64(2), sub.Version)

	_, err = f.svc.UpdateDraft(ctx, sub.ID, f.student2.ID, testutil.EvaluationPayload())
	assert.ErrorIs(t, err, review.ErrUnauthorized)

	_, err = f.svc.SubmitDraft(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateDraft(ctx, sub.ID, f.student.ID, testutil.EvaluationPayload())
	assert.ErrorIs(t, err, review.ErrInvalidTransition)
}

func TestService_adminForcedTransition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.report(t)
	_, err := f.svc.SubmitDraft(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, sub.ID, f.teacher.ID, review.TransitionRequest{To: review.StateApproved})
	assert.ErrorIs(t, err, review.ErrInvalidTransition)

	sub, err = f.svc.Transition(ctx, sub.ID, f.admin.ID, review.TransitionRequest{To: review.StateApproved})
	require.NoError(t, err)
	assert.Equal(t, review.StateApproved, sub.State)
	assert.True(t, sub.Transitions[len(sub.Transitions)-1].Forced)
	require.NotNil(t, sub.ReviewedBy)
	assert.Equal(t, f.admin.ID, sub.ReviewedBy.ActorID)

	t.Run("empty rubric cannot be forced out of draft", func(t *testing.T) {
		eval, err := f.svc.Create(ctx, f.mentor.ID, review.NewSubmission{
			Kind:    review.KindEvaluation,
			Subtype: review.SubtypeMentor,
			OwnerID: f.student.ID,
			Payload: testutil.EvaluationPayload(),
		})
		require.NoError(t, err)

		for _, to := range []review.State{review.StateUnderReview, review.StateApproved, review.StateNeedsRevision} {
			_, err = f.svc.Transition(ctx, eval.ID, f.admin.ID, review.TransitionRequest{To: to, Feedback: "forced"})
			assert.ErrorIs(t, err, review.ErrValidationFailed, "draft -> %s", to)
		}
		stored, err := f.repo.Load(ctx, eval.ID)
		require.NoError(t, err)
		assert.Equal(t, review.StateDraft, stored.State)
		assert.Equal(t, eval.Version, stored.Version)
	})
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	draft := f.report(t)
	submitted := f.report(t)
	_, err := f.svc.SubmitDraft(ctx, submitted.ID, f.student.ID)
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, f.student2.ID, review.NewSubmission{
		Kind: review.KindReport, Subtype: review.SubtypeMonthly, Payload: testutil.ReportPayload("March"),
	})
	require.NoError(t, err)

	ids := func(subs []review.Submission) []string {
		out := make([]string, 0, len(subs))
		for _, s := range subs {
			out = append(out, s.ID)
		}
		return out
	}

	got, err := f.svc.Query(ctx, f.student.ID, review.QueryFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{draft.ID, submitted.ID}, ids(got))

	got, err = f.svc.Query(ctx, f.teacher.ID, review.QueryFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{submitted.ID}, ids(got), "drafts stay private")

	got, err = f.svc.Query(ctx, f.admin.ID, review.QueryFilter{States: []review.State{review.StateDraft}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{draft.ID, other.ID}, ids(got))
}

func TestService_stats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	now := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	review.NowFunc = func() time.Time { return now }
	defer func() { review.NowFunc = time.Now }()

	approved := f.underReview(t)
	now = now.Add(2 * time.Hour)
	_, err := f.svc.Decide(ctx, approved.ID, f.teacher.ID, review.StateApproved, "", 5)
	require.NoError(t, err)

	pending := f.report(t)
	_, err = f.svc.SubmitDraft(ctx, pending.ID, f.student.ID)
	require.NoError(t, err)
	f.report(t) // draft

	ownerStats, err := f.svc.OwnerStats(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ownerStats.Total)
	assert.Equal(t, 1, ownerStats.ByState[review.StateApproved])
	assert.Equal(t, 1, ownerStats.ByState[review.StateSubmitted])
	assert.Equal(t, 1, ownerStats.ByState[review.StateDraft])
	assert.Equal(t, 0, ownerStats.ByState[review.StateRejected])
	assert.Equal(t, 33.3, ownerStats.CompletionRate)

	reviewerStats, err := f.svc.ReviewerStats(ctx, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewerStats.PendingReview)
	assert.Equal(t, 0, reviewerStats.InReview)
	assert.Equal(t, 1, reviewerStats.Reviewed)
	assert.Equal(t, 2*time.Hour, reviewerStats.AverageReviewTime)

	_, err = f.svc.ReviewerStats(ctx, f.student.ID)
	assert.ErrorIs(t, err, review.ErrUnauthorized)
}

func TestService_Attachments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	payload := testutil.ReportPayload("Week 4")
	payload.Report.Attachments = []string{"reports/w4.pdf", "reports/w4-data.csv"}
	sub, err := f.svc.Create(ctx, f.student.ID, review.NewSubmission{
		Kind: review.KindReport, Subtype: review.SubtypeWeekly, Payload: payload,
	})
	require.NoError(t, err)

	locs, err := f.svc.Attachments(ctx, sub.ID, f.student.ID)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "https://files.example.com/reports/w4.pdf", locs[0].URL)

	_, err = f.svc.Attachments(ctx, sub.ID, f.student2.ID)
	assert.ErrorIs(t, err, review.ErrNotFound)
}

func TestRetryOnConflict(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  int
		otherErr  error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, wantCalls: 1},
		{name: "succeeds after conflicts", attempts: 3, failures: 2, wantCalls: 3},
		{name: "gives up", attempts: 3, failures: 5, wantCalls: 3, wantErr: review.ErrConcurrentModification},
		{name: "other errors are not retried", attempts: 3, otherErr: review.ErrUnauthorized, wantCalls: 1, wantErr: review.ErrUnauthorized},
		{name: "at least once", attempts: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := review.RetryOnConflict(context.Background(), tt.attempts, func(context.Context) error {
				calls++
				if tt.otherErr != nil {
					return tt.otherErr
				}
				if calls <= tt.failures {
					return review.ErrConcurrentModification
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
