package review

// WorkflowRole is the part an actor plays relative to one submission.
type WorkflowRole int

const (
	WorkflowNone WorkflowRole = iota
	WorkflowSubmitter
	WorkflowReviewer
	WorkflowAdmin
)

func (r WorkflowRole) String() string {
	switch r {
	case WorkflowSubmitter:
		return "submitter"
	case WorkflowReviewer:
		return "reviewer"
	case WorkflowAdmin:
		return "admin"
	}
	return "none"
}

type edge struct {
	from, to State
}

var transitionTable = map[edge]WorkflowRole{
	{StateDraft, StateSubmitted}:           WorkflowSubmitter,
	{StateSubmitted, StateUnderReview}:     WorkflowReviewer,
	{StateUnderReview, StateApproved}:      WorkflowReviewer,
	{StateUnderReview, StateRejected}:      WorkflowReviewer,
	{StateUnderReview, StateNeedsRevision}: WorkflowReviewer,
	{StateNeedsRevision, StateSubmitted}:   WorkflowSubmitter,
}

// Allowed reports whether from -> to is an edge of the transition table.
func Allowed(from, to State) bool {
	_, ok := transitionTable[edge{from, to}]
	return ok
}

// CanTransition is the transition policy.
func CanTransition(role WorkflowRole, from, to State) bool {
	// admin override: any move out of a live state
	if role == WorkflowAdmin {
		return from.Valid() && to.Valid() && from != to && !from.Terminal()
	}
	party, ok := transitionTable[edge{from, to}]
	return ok && party == role
}

// RequiresFeedback lists the targets that cannot be reached without a written reason.
func RequiresFeedback(to State) bool {
	return to == StateRejected || to == StateNeedsRevision
}

// RoleOf derives the workflow role of actor on sub. Admins act as reviewers on table edges;
// the override is applied separately by Authorize.
func RoleOf(actor Actor, sub Submission) WorkflowRole {
	switch {
	case actor.ID == "":
		return WorkflowNone
	case actor.ID == sub.SubmitterID():
		return WorkflowSubmitter
	case actor.IsAdmin:
		return WorkflowReviewer
	case actor.Role == RoleMentor || actor.Role == RoleTeacher:
		// an assigned application only accepts its own reviewer
		if sub.Kind == KindApplication && sub.ActorID != "" && sub.ActorID != actor.ID {
			return WorkflowNone
		}
		return WorkflowReviewer
	}
	return WorkflowNone
}

// Authorize checks that actor may move sub to the target state. forced is true when the move
// was only possible through the admin override.
func Authorize(actor Actor, sub Submission, to State) (forced bool, err error) {
	role := RoleOf(actor, sub)
	if CanTransition(role, sub.State, to) {
		return false, nil
	}
	if actor.IsAdmin && CanTransition(WorkflowAdmin, sub.State, to) {
		return true, nil
	}
	if !Allowed(sub.State, to) {
		return false, ErrInvalidTransition
	}
	return false, ErrUnauthorized
}

// Reachable reports whether to can be reached from the current state by anyone, actor included.
func Reachable(actor Actor, from, to State) bool {
	return Allowed(from, to) || (actor.IsAdmin && CanTransition(WorkflowAdmin, from, to))
}

// CanView reports whether actor may read sub. Drafts are private to their author, except
// for admins, who oversee every submission.
func CanView(actor Actor, sub Submission) bool {
	switch {
	case actor.IsAdmin:
		return true
	case actor.ID == sub.OwnerID || actor.ID == sub.ActorID:
		return true
	case actor.Role == RoleMentor || actor.Role == RoleTeacher:
		// drafts stay private to their author
		return sub.State != StateDraft
	}
	return false
}
