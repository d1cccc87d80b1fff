package review

import (
	"context"
	"time"

	"github.com/internly/internly/core"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Actor is an authenticated principal as seen by the review workflow.
type Actor struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Role    Role   `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
}

// IsReviewer reports whether the actor holds a reviewing role.
func (a Actor) IsReviewer() bool {
	return a.IsAdmin || a.Role == RoleMentor || a.Role == RoleTeacher
}

// Event is emitted after every persisted transition.
type Event struct {
	SubmissionID string    `json:"submissionId"`
	Kind         Kind      `json:"kind"`
	Subtype      Subtype   `json:"subtype"`
	OwnerID      string    `json:"ownerId"`
	ActorID      string    `json:"actorId"`
	From         State     `json:"from"`
	To           State     `json:"to"`
	Feedback     string    `json:"feedback,omitempty"`
	At           time.Time `json:"at"`
}

// Locator is a resolved, fetchable attachment.
type Locator struct {
	Ref       string     `json:"ref"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type (
	Repository interface {
		// Create stores a new submission at version 1.
		Create(ctx context.Context, sub Submission) (Submission, error)
		Load(ctx context.Context, id string) (Submission, error)
		// Save writes sub only if the stored version still equals expectedVersion,
		// returning ErrConcurrentModification otherwise. The stored version is bumped by one.
		Save(ctx context.Context, sub Submission, expectedVersion int64) (Submission, error)
		// Query applies AND on the QueryFilter fields.
		Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Submission, error)
	}

	Identity interface {
		ResolveActor(ctx context.Context, id string) (Actor, error)
	}

	// Notifier delivers events on a best-effort basis.
	Notifier interface {
		Emit(ctx context.Context, evt Event) error
	}

	AttachmentResolver interface {
		Resolve(ctx context.Context, ref string) (Locator, error)
	}
)
