package review

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		role     WorkflowRole
		from, to State
		want     bool
	}{
		{"submitter submits draft", WorkflowSubmitter, StateDraft, StateSubmitted, true},
		{"reviewer cannot submit draft", WorkflowReviewer, StateDraft, StateSubmitted, false},
		{"reviewer begins review", WorkflowReviewer, StateSubmitted, StateUnderReview, true},
		{"submitter cannot begin review", WorkflowSubmitter, StateSubmitted, StateUnderReview, false},
		{"reviewer approves", WorkflowReviewer, StateUnderReview, StateApproved, true},
		{"reviewer cannot approve unreviewed", WorkflowReviewer, StateSubmitted, StateApproved, false},
		{"submitter resubmits", WorkflowSubmitter, StateNeedsRevision, StateSubmitted, true},
		{"nobody regresses to draft", WorkflowSubmitter, StateApproved, StateDraft, false},
		{"none never moves", WorkflowNone, StateDraft, StateSubmitted, false},
		{"admin forces", WorkflowAdmin, StateSubmitted, StateApproved, true},
		{"admin reopens", WorkflowAdmin, StateNeedsRevision, StateDraft, true},
		{"admin cannot leave terminal", WorkflowAdmin, StateRejected, StateSubmitted, false},
		{"admin cannot stay", WorkflowAdmin, StateSubmitted, StateSubmitted, false},
		{"admin cannot reach unknown state", WorkflowAdmin, StateSubmitted, State("archived"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.role, tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s, %s) = %v, want %v", tt.role, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRoleOf(t *testing.T) {
	report := newReport(StateSubmitted)
	eval := newEvaluation()

	tests := []struct {
		name  string
		actor Actor
		sub   Submission
		want  WorkflowRole
	}{
		{"report owner", owner, report, WorkflowSubmitter},
		{"report teacher", teacher, report, WorkflowReviewer},
		{"report mentor", mentor, report, WorkflowReviewer},
		{"report other student", outsider, report, WorkflowNone},
		{"report admin", admin, report, WorkflowReviewer},
		{"anonymous", Actor{}, report, WorkflowNone},
		{"evaluation author", mentor, eval, WorkflowSubmitter},
		{"evaluated student", owner, eval, WorkflowNone},
		{"evaluation teacher", teacher, eval, WorkflowReviewer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleOf(tt.actor, tt.sub); got != tt.want {
				t.Errorf("RoleOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanView(t *testing.T) {
	draft := newReport(StateDraft)
	submitted := newReport(StateSubmitted)

	tests := []struct {
		name  string
		actor Actor
		sub   Submission
		want  bool
	}{
		{"owner sees draft", owner, draft, true},
		{"teacher does not see draft", teacher, draft, false},
		{"mentor does not see draft", mentor, draft, false},
		{"admin sees draft", admin, draft, true},
		{"teacher sees submitted", teacher, submitted, true},
		{"other student sees nothing", outsider, submitted, false},
		{"evaluated student sees evaluation", owner, newEvaluation(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanView(tt.actor, tt.sub); got != tt.want {
				t.Errorf("CanView() = %v, want %v", got, tt.want)
			}
		})
	}
}
