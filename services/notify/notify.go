package notifysvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
)

const transitionTemplate = "submission_transition"

// UserDirectory looks up the people an event is about.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type transitionData struct {
	RecipientName string
	SubmissionID  string
	Kind          review.Kind
	Subtype       review.Subtype
	From          review.State
	To            review.State
	Feedback      string
}

// MailNotifier emails the submission owner about transitions made by someone else.
type MailNotifier struct {
	users UserDirectory
	email core.EmailService
}

var _ review.Notifier = (*MailNotifier)(nil)

func NewMailNotifier(users UserDirectory, email core.EmailService) *MailNotifier {
	return &MailNotifier{users: users, email: email}
}

func (n *MailNotifier) Emit(ctx context.Context, evt review.Event) error {
	if evt.OwnerID == "" || evt.OwnerID == evt.ActorID {
		return nil
	}
	owner, err := n.users.GetByID(ctx, evt.OwnerID)
	if err != nil {
		return errors.Wrapf(err, "finding owner of submission %s", evt.SubmissionID)
	}
	if owner.Email == "" || !owner.IsActive {
		return nil
	}

	n.email.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject:      fmt.Sprintf("Your %s is now %s", evt.Kind, evt.To),
		Tags:         []string{"submission", string(evt.To)},
		TemplateName: transitionTemplate,
		TemplateData: transitionData{
			RecipientName: owner.Name,
			SubmissionID:  evt.SubmissionID,
			Kind:          evt.Kind,
			Subtype:       evt.Subtype,
			From:          evt.From,
			To:            evt.To,
			Feedback:      evt.Feedback,
		},
	})
	return nil
}

// LogNotifier records every event in the application log.
type LogNotifier struct {
	logger core.Logger
}

var _ review.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger core.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Emit(_ context.Context, evt review.Event) error {
	n.logger.Debug(
		fmt.Sprintf("event: submission %s %s -> %s by %s", evt.SubmissionID, evt.From, evt.To, evt.ActorID),
		map[string]interface{}{"event": evt},
	)
	return nil
}

// Multi delivers every event to all notifiers, even when some of them fail.
type Multi []review.Notifier

var _ review.Notifier = Multi(nil)

func (m Multi) Emit(ctx context.Context, evt review.Event) error {
	var (
		first  error
		failed int
	)
	for _, n := range m {
		if err := n.Emit(ctx, evt); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d notifiers failed", failed, len(m))
	}
	return nil
}
