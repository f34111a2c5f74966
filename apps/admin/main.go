package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/user"
	cachesvc "github.com/trezcool/darasa/services/cache"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	zl, err := logsvc.NewProductionZap(conf)
	if err != nil {
		zl = zap.NewExample()
	}
	logger := logsvc.NewZapLogger(zl.Named("admin"))

	// set up DB
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	org.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrRepo:  usrRepo,
		orgSvc:   org.NewService(sqlxrepos.NewOrgRepository(db), usrSvc, emailsvc.NewConsoleService(conf, logger), cachesvc.NewMemory(), logger),
		validate: validate,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}
