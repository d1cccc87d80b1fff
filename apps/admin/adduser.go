package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/user"
)

type addUser struct {
	name, uname, email, pwd string
	roles                   []string
	isAdmin                 bool
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(au addUser) error {
	ctx := context.Background()
	if au.isAdmin {
		au.roles = user.AllRoles
	}

	lookup := au.uname
	if lookup == "" {
		lookup = au.email
	}
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, lookup)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}
		name := au.name
		if core.CleanString(name) == "" {
			name = au.uname
		}
		nu := user.NewUser{
			Name:            name,
			Username:        au.uname,
			Email:           au.email,
			Password:        au.pwd,
			PasswordConfirm: au.pwd,
			Roles:           au.roles,
		}
		if err = nu.Validate(ctx, cli.usrSvc); err != nil {
			return err
		}
		_, err = cli.usrSvc.Create(ctx, nu)
		return err
	}

	active := true
	uu := user.UpdateUser{
		Name:            au.name,
		Username:        au.uname,
		Email:           au.email,
		IsActive:        &active,
		Roles:           au.roles,
		Password:        au.pwd,
		PasswordConfirm: au.pwd,
	}
	if err = uu.Validate(ctx, usr, cli.usrSvc); err != nil {
		return err
	}
	_, err = cli.usrSvc.Update(ctx, usr, uu)
	return err
}
