package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func ReportPayload(title string, sections ...string) review.Payload {
	p := &review.ReportPayload{Title: title}
	for i, body := range sections {
		p.Sections = append(p.Sections, review.Section{Heading: fmt.Sprintf("Section %d", i+1), Body: body})
	}
	return review.Payload{Report: p}
}

func EvaluationPayload(criteria ...review.Criterion) review.Payload {
	return review.Payload{Evaluation: &review.EvaluationPayload{Criteria: criteria}}
}

func ApplicationPayload(position string) review.Payload {
	return review.Payload{Application: &review.ApplicationPayload{Position: position}}
}

// Logger records log calls for assertions.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Args    []interface{}
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Message: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Count returns the number of entries logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Notifier records emitted events; Err makes every Emit fail.
type Notifier struct {
	mu     sync.Mutex
	Events []review.Event
	Err    error
}

var _ review.Notifier = (*Notifier)(nil)

func (n *Notifier) Emit(_ context.Context, evt review.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Events = append(n.Events, evt)
	return nil
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Events)
}
