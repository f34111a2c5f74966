package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// addUser updates or creates an active user.User. Roles replace the existing ones when given.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	for _, role := range roles {
		if user.RolePriority(role) == 0 {
			return errors.Errorf("unknown role %q", role)
		}
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if core.IsNotFound(err) {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	isNew := core.IsNotFound(err)
	if err != nil && !isNew {
		return errors.Wrap(err, "finding user")
	}

	now := time.Now().UTC()
	if isNew {
		usr = user.User{Roles: []string{}, CreatedAt: now}
	}
	if name != "" {
		usr.Name = core.CleanString(name)
	} else if usr.Name == "" {
		usr.Name = uname
	}
	usr.Username = uname
	usr.Email = email
	if roles != nil {
		usr.Roles = roles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if isNew {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	cli.printf("user %s (%s) saved\n", usr.Username, usr.ID)
	return nil
}
