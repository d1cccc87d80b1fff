package review

import (
	"time"

	"github.com/samber/lo"
)

type Kind string

const (
	KindReport      Kind = "report"
	KindEvaluation  Kind = "evaluation"
	KindApplication Kind = "application"
)

var AllKinds = []Kind{KindReport, KindEvaluation, KindApplication}

func (k Kind) Valid() bool {
	_, ok := subtypesByKind[k]
	return ok
}

type Subtype string

const (
	// Report
	SubtypePreliminary Subtype = "preliminary"
	SubtypeWeekly      Subtype = "weekly"
	SubtypeMonthly     Subtype = "monthly"
	SubtypeFinal       Subtype = "final"

	// Evaluation
	SubtypeMentor  Subtype = "mentor"
	SubtypeTeacher Subtype = "teacher"
	SubtypeSelf    Subtype = "self"

	// Application
	SubtypeInternship Subtype = "internship"
	SubtypePlacement  Subtype = "placement"
)

var subtypesByKind = map[Kind][]Subtype{
	KindReport:      {SubtypePreliminary, SubtypeWeekly, SubtypeMonthly, SubtypeFinal},
	KindEvaluation:  {SubtypeMentor, SubtypeTeacher, SubtypeSelf},
	KindApplication: {SubtypeInternship, SubtypePlacement},
}

// SubtypeOf reports whether st is a valid subtype for kind k.
func SubtypeOf(k Kind, st Subtype) bool {
	return lo.Contains(subtypesByKind[k], st)
}

type State string

const (
	StateDraft         State = "draft"
	StateSubmitted     State = "submitted"
	StateUnderReview   State = "under_review"
	StateNeedsRevision State = "needs_revision"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
)

var AllStates = []State{
	StateDraft, StateSubmitted, StateUnderReview, StateNeedsRevision, StateApproved, StateRejected,
}

func (s State) Valid() bool {
	return lo.Contains(AllStates, s)
}

// Terminal states retire a submission: nothing leaves them.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// MaxCriterionScore is the top of the rubric scale.
const MaxCriterionScore = 5.0

type Criterion struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
	Comments string  `json:"comments,omitempty"`
}

type (
	Section struct {
		Heading string `json:"heading"`
		Body    string `json:"body"`
	}

	ReportPayload struct {
		Title       string     `json:"title"`
		Sections    []Section  `json:"sections"`
		Attachments []string   `json:"attachments,omitempty"`
		Tags        []string   `json:"tags,omitempty"`
		DueDate     *time.Time `json:"dueDate,omitempty"`
	}

	EvaluationPayload struct {
		Criteria            []Criterion `json:"criteria"`
		Score               *float64    `json:"score,omitempty"` // computed, never client-provided
		Strengths           []string    `json:"strengths,omitempty"`
		AreasForImprovement []string    `json:"areasForImprovement,omitempty"`
		Recommendations     string      `json:"recommendations,omitempty"`
		Attachments         []string    `json:"attachments,omitempty"`
	}

	ApplicationPayload struct {
		InternshipID string   `json:"internshipId,omitempty"`
		Position     string   `json:"position"`
		CoverLetter  string   `json:"coverLetter,omitempty"`
		Attachments  []string `json:"attachments,omitempty"`
	}

	// Payload is a tagged variant: exactly one member is set, matching the submission Kind.
	Payload struct {
		Report      *ReportPayload      `json:"report,omitempty"`
		Evaluation  *EvaluationPayload  `json:"evaluation,omitempty"`
		Application *ApplicationPayload `json:"application,omitempty"`
	}
)

// Kind returns the kind of the single variant set, or false if zero or several are set.
func (p Payload) Kind() (Kind, bool) {
	var (
		k Kind
		n int
	)
	if p.Report != nil {
		k, n = KindReport, n+1
	}
	if p.Evaluation != nil {
		k, n = KindEvaluation, n+1
	}
	if p.Application != nil {
		k, n = KindApplication, n+1
	}
	return k, n == 1
}

// Attachments lists the attachment references of whichever variant is set.
func (p Payload) Attachments() []string {
	switch {
	case p.Report != nil:
		return p.Report.Attachments
	case p.Evaluation != nil:
		return p.Evaluation.Attachments
	case p.Application != nil:
		return p.Application.Attachments
	}
	return nil
}

type (
	FeedbackEntry struct {
		AuthorID     string    `json:"authorId"`
		Text         string    `json:"text"`
		Rating       *int      `json:"rating,omitempty"` // 1-5
		CreatedAt    time.Time `json:"createdAt"`
		RelatedState State     `json:"relatedState"`
	}

	Revision struct {
		Number      int           `json:"number"`
		Payload     ReportPayload `json:"payload"`
		SubmittedAt time.Time     `json:"submittedAt"`
	}

	TransitionRecord struct {
		From    State     `json:"from"`
		To      State     `json:"to"`
		ActorID string    `json:"actorId"`
		At      time.Time `json:"at"`
		Forced  bool      `json:"forced,omitempty"` // admin override outside the transition table
	}

	ReviewDecision struct {
		ActorID  string    `json:"actorId"`
		At       time.Time `json:"at"`
		Decision State     `json:"decision"`
	}

	Submission struct {
		ID              string             `json:"id"`
		Kind            Kind               `json:"kind"`
		Subtype         Subtype            `json:"subtype"`
		OwnerID         string             `json:"ownerId"`
		ActorID         string             `json:"actorId,omitempty"`
		State           State              `json:"state"`
		Payload         Payload            `json:"payload"`
		FeedbackHistory []FeedbackEntry    `json:"feedbackHistory"`
		RevisionHistory []Revision         `json:"revisionHistory,omitempty"`
		Transitions     []TransitionRecord `json:"transitions"`
		CreatedAt       time.Time          `json:"createdAt"`
		UpdatedAt       time.Time          `json:"updatedAt"`
		ReviewedBy      *ReviewDecision    `json:"reviewedBy,omitempty"`
		Version         int64              `json:"version"`
	}
)

// SubmitterID is whoever drives the submission forward: the evaluation author for
// evaluations, the owning student otherwise.
func (s Submission) SubmitterID() string {
	if s.Kind == KindEvaluation && s.ActorID != "" {
		return s.ActorID
	}
	return s.OwnerID
}

// Score is the frozen evaluation score, if any.
func (s Submission) Score() *float64 {
	if s.Payload.Evaluation == nil {
		return nil
	}
	return s.Payload.Evaluation.Score
}

// Clone returns a deep copy; snapshots handed out never share mutable state.
func (s Submission) Clone() Submission {
	c := s
	c.Payload = s.Payload.Clone()
	if s.FeedbackHistory != nil {
		c.FeedbackHistory = make([]FeedbackEntry, len(s.FeedbackHistory))
		for i, fb := range s.FeedbackHistory {
			fb.Rating = cloneInt(fb.Rating)
			c.FeedbackHistory[i] = fb
		}
	}
	if s.RevisionHistory != nil {
		c.RevisionHistory = make([]Revision, len(s.RevisionHistory))
		for i, rev := range s.RevisionHistory {
			rev.Payload = rev.Payload.clone()
			c.RevisionHistory[i] = rev
		}
	}
	c.Transitions = cloneSlice(s.Transitions)
	if s.ReviewedBy != nil {
		rb := *s.ReviewedBy
		c.ReviewedBy = &rb
	}
	return c
}

func (p Payload) Clone() Payload {
	var c Payload
	if p.Report != nil {
		r := p.Report.clone()
		c.Report = &r
	}
	if p.Evaluation != nil {
		e := *p.Evaluation
		e.Criteria = cloneSlice(p.Evaluation.Criteria)
		e.Score = cloneFloat(p.Evaluation.Score)
		e.Strengths = cloneSlice(p.Evaluation.Strengths)
		e.AreasForImprovement = cloneSlice(p.Evaluation.AreasForImprovement)
		e.Attachments = cloneSlice(p.Evaluation.Attachments)
		c.Evaluation = &e
	}
	if p.Application != nil {
		a := *p.Application
		a.Attachments = cloneSlice(p.Application.Attachments)
		c.Application = &a
	}
	return c
}

func (r ReportPayload) clone() ReportPayload {
	c := r
	c.Sections = cloneSlice(r.Sections)
	c.Attachments = cloneSlice(r.Attachments)
	c.Tags = cloneSlice(r.Tags)
	if r.DueDate != nil {
		d := *r.DueDate
		c.DueDate = &d
	}
	return c
}

// cloneSlice copies s, keeping nil and empty apart.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

type (
	NewSubmission struct {
		Kind    Kind    `json:"kind" validate:"required,submissionkind"`
		Subtype Subtype `json:"subtype" validate:"required"`
		// OwnerID is the evaluated student; ignored for reports and applications.
		OwnerID string  `json:"ownerId" validate:"omitempty,uuid4"`
		// ActorID is the reviewer an application is assigned to.
		ActorID string  `json:"actorId" validate:"omitempty,uuid4"`
		Payload Payload `json:"payload"`
	}

	QueryFilter struct {
		OwnerID     string
		ActorID     string
		// InvolvedID matches submissions owned or authored by the id.
		InvolvedID  string
		Kinds       []Kind
		Subtypes    []Subtype
		States      []State
		CreatedFrom *time.Time
		CreatedTo   *time.Time
	}
)

// Match applies the filter in memory. Storage adapters translate it to their query language.
func (f QueryFilter) Match(s Submission) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if f.ActorID != "" && s.ActorID != f.ActorID {
		return false
	}
	if f.InvolvedID != "" && s.OwnerID != f.InvolvedID && s.ActorID != f.InvolvedID {
		return false
	}
	if len(f.Kinds) > 0 && !lo.Contains(f.Kinds, s.Kind) {
		return false
	}
	if len(f.Subtypes) > 0 && !lo.Contains(f.Subtypes, s.Subtype) {
		return false
	}
	if len(f.States) > 0 && !lo.Contains(f.States, s.State) {
		return false
	}
	if f.CreatedFrom != nil && s.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && s.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
