package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/user"
)

// createOrg creates an organization owned by the `owner` username or email.
func (cli *commandLine) createOrg(no org.NewOrganization, owner string) error {
	ctx := context.Background()
	if err := no.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: owner})
	if err != nil {
		return errors.Wrap(err, "finding owner")
	}
	o, err := cli.orgSvc.Create(ctx, no, usr)
	if err != nil {
		return err
	}
	cli.printf("organization %s (%s) created\n", o.Slug, o.ID)
	return nil
}
