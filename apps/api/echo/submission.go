package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
)

var submissionOrderingFields = []string{"created_at", "updated_at", "kind", "subtype", "state"}

type submissionApi struct {
	svc     *review.Service
	retries int
}

func registerSubmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *review.Service, retries int) {
	api := submissionApi{svc: svc, retries: retries}

	sg := g.Group("/submissions", jwt)
	sg.POST("", api.create)
	sg.GET("", api.query)

	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.updateDraft)
	dg.GET("/attachments", api.attachments)

	// workflow
	dg.POST("/submit", api.submit)
	dg.POST("/review", api.beginReview)
	dg.POST("/decide", api.decide)
	dg.POST("/request-revision", api.requestRevision)
	dg.POST("/resubmit", api.resubmit)
	dg.POST("/transition", api.transition, adminMiddleware())
}

// run executes a workflow use case on behalf of the token holder, rerunning it
// from scratch when it loses an optimistic concurrency race.
func (api *submissionApi) run(
	ctx echo.Context,
	useCase func(c context.Context, actorID string) (review.Submission, error),
) (review.Submission, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return review.Submission{}, errors.Wrap(err, "getting context claims")
	}

	var sub review.Submission
	err = review.RetryOnConflict(ctx.Request().Context(), api.retries, func(c context.Context) error {
		var ucErr error
		sub, ucErr = useCase(c, claims.Subject)
		return ucErr
	})
	return sub, err
}

// Handlers

func (api *submissionApi) create(ctx echo.Context) error {
	var data review.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sub, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating submission")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *submissionApi) query(ctx echo.Context) error {
	var query SubmissionQuery
	if err := ctx.Bind(&query); err != nil {
		return ctx.JSON(http.StatusOK, []review.Submission{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, submissionOrderingFields...)

	filter, err := query.Filter()
	if err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	subs, err := api.svc.Query(ctx.Request().Context(), claims.Subject, filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []review.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sub, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "retrieving submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) attachments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	locs, err := api.svc.Attachments(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "resolving attachments")
	}
	return ctx.JSON(http.StatusOK, locs)
}

func (api *submissionApi) updateDraft(ctx echo.Context) error {
	var data review.Payload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Payload")
	}
	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.UpdateDraft(c, ctx.Param("id"), actorID, data)
	})
	if err != nil {
		return errors.Wrap(err, "updating draft")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) submit(ctx echo.Context) error {
	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.SubmitDraft(c, ctx.Param("id"), actorID)
	})
	if err != nil {
		return errors.Wrap(err, "submitting draft")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) beginReview(ctx echo.Context) error {
	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.BeginReview(c, ctx.Param("id"), actorID)
	})
	if err != nil {
		return errors.Wrap(err, "beginning review")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) decide(ctx echo.Context) error {
	var data DecideRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DecideRequest")
	}
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	var rating []int
	if data.Rating != nil {
		rating = append(rating, *data.Rating)
	}
	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.Decide(c, ctx.Param("id"), actorID, data.Decision, data.Feedback, rating...)
	})
	if err != nil {
		return errors.Wrap(err, "deciding")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) requestRevision(ctx echo.Context) error {
	var data FeedbackRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FeedbackRequest")
	}
	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.RequestRevision(c, ctx.Param("id"), actorID, data.Feedback)
	})
	if err != nil {
		return errors.Wrap(err, "requesting revision")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) resubmit(ctx echo.Context) error {
	var data ResubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResubmitRequest")
	}
	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.Resubmit(c, ctx.Param("id"), actorID, data.Payload)
	})
	if err != nil {
		return errors.Wrap(err, "resubmitting")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) transition(ctx echo.Context) error {
	var data TransitionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionRequest")
	}
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	sub, err := api.run(ctx, func(c context.Context, actorID string) (review.Submission, error) {
		return api.svc.Transition(c, ctx.Param("id"), actorID, review.TransitionRequest{
			To:       data.To,
			Feedback: data.Feedback,
			Rating:   data.Rating,
		})
	})
	if err != nil {
		return errors.Wrap(err, "forcing transition")
	}
	return ctx.JSON(http.StatusOK, sub)
}

type (
	SubmissionQuery struct {
		OwnerID     string   `query:"owner_id"`
		ActorID     string   `query:"actor_id"`
		Kinds       []string `query:"kind"`
		Subtypes    []string `query:"subtype"`
		States      []string `query:"state"`
		CreatedFrom string   `query:"created_from"` // RFC 3339
		CreatedTo   string   `query:"created_to"`
	}

	DecideRequest struct {
		Decision review.State `json:"decision" validate:"required,decision"`
		Feedback string       `json:"feedback"`
		Rating   *int         `json:"rating" validate:"omitempty,min=1,max=5"`
	}

	FeedbackRequest struct {
		Feedback string `json:"feedback"`
	}

	ResubmitRequest struct {
		// Payload replaces the content; omit to resubmit unchanged.
		Payload *review.Payload `json:"payload"`
	}

	TransitionRequest struct {
		To       review.State `json:"to" validate:"required,submissionstate"`
		Feedback string       `json:"feedback"`
		Rating   *int         `json:"rating" validate:"omitempty,min=1,max=5"`
	}
)

func (q SubmissionQuery) Filter() (review.QueryFilter, error) {
	filter := review.QueryFilter{
		OwnerID:  core.CleanString(q.OwnerID),
		ActorID:  core.CleanString(q.ActorID),
		Kinds:    lo.Map(q.Kinds, func(k string, _ int) review.Kind { return review.Kind(core.CleanString(k, true)) }),
		Subtypes: lo.Map(q.Subtypes, func(st string, _ int) review.Subtype { return review.Subtype(core.CleanString(st, true)) }),
		States:   lo.Map(q.States, func(s string, _ int) review.State { return review.State(core.CleanString(s, true)) }),
	}

	var err error
	if filter.CreatedFrom, err = parseTime("created_from", q.CreatedFrom); err != nil {
		return review.QueryFilter{}, err
	}
	if filter.CreatedTo, err = parseTime("created_to", q.CreatedTo); err != nil {
		return review.QueryFilter{}, err
	}
	return filter, nil
}

func parseTime(field, val string) (*time.Time, error) {
	if val = core.CleanString(val); val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "expected an RFC 3339 timestamp"})
	}
	t = t.UTC()
	return &t, nil
}
