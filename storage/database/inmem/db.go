package inmemdb

import (
	"sync"

	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
)

type (
	DB struct {
		user       *userTable
		submission *submissionTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	submissionTable struct {
		table map[string]review.Submission
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		submission: &submissionTable{table: make(map[string]review.Submission)},
	}
}
