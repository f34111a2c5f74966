package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	appfs "github.com/trezcool/darasa/fs"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(args []string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting dialect")
	}
	goose.SetBaseFS(appfs.FS)
	return gooseRunFunc(context.Background(), args[0], cli.db, appfs.MigrationsDir, args[1:]...)
}
