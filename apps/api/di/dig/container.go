package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/generate"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/progress"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/workflow"
	brokersvc "github.com/trezcool/darasa/services/broker"
	cachesvc "github.com/trezcool/darasa/services/cache"
	emailsvc "github.com/trezcool/darasa/services/email"
	llmsvc "github.com/trezcool/darasa/services/llm"
	logsvc "github.com/trezcool/darasa/services/logger"
	metricsvc "github.com/trezcool/darasa/services/metrics"
	schedulersvc "github.com/trezcool/darasa/services/scheduler"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

// newRedis returns nil when no Redis URL is configured: the cache & the broker then live in-process.
func newRedis(conf *core.Config, logger core.Logger) *redis.Client {
	if conf.Redis.URL == "" {
		return nil
	}
	rdb, err := cachesvc.NewRedisClient(context.Background(), conf.Redis.URL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return rdb
}

func newCache(rdb *redis.Client) core.Cache {
	if rdb == nil {
		return cachesvc.NewMemory()
	}
	return cachesvc.NewRedis(rdb)
}

func newBroker(rdb *redis.Client, logger core.Logger) workflow.Broker {
	if rdb == nil {
		return workflow.NewMemoryBroker()
	}
	return brokersvc.NewRedis(rdb, logger)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newProgressService(repo progress.Repository, courses course.Service) progress.Service {
	return progress.NewService(repo, courses)
}

func newModel(conf *core.Config, m *metricsvc.Metrics, logger core.Logger) generate.Model {
	model, err := llmsvc.NewModelOrDisabled(context.Background(), conf.LLM, conf.LLM.Model)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up language model: %v", err), err)
	}
	if _, ok := model.(llmsvc.Disabled); ok {
		logger.Warn("no LLM API key configured: course generation runs will fail", llmsvc.ErrNoAPIKey)
	}
	return m.InstrumentModel(model)
}

func newRunner(
	conf *core.Config,
	repo workflow.Repository,
	broker workflow.Broker,
	logger core.Logger,
	m *metricsvc.Metrics,
	courses course.Service,
	model generate.Model,
) (*workflow.Runner, error) {
	runner := workflow.NewRunner(repo, broker, logger, conf.Workflow, m)
	err := generate.Register(runner, generate.Deps{
		Courses:     courses,
		Model:       model,
		Logger:      logger,
		MaxParallel: conf.Workflow.MaxParallelSteps,
	})
	return runner, err
}

func newScheduler(conf *core.Config, runner *workflow.Runner, logger core.Logger) (*schedulersvc.Scheduler, error) {
	s := schedulersvc.New(logger)
	job := schedulersvc.FailStaleRuns(runner, conf.Workflow.StaleAfter, logger)
	if err := s.Add("failStaleRuns", conf.Workflow.SweepSchedule, job); err != nil {
		return nil, err
	}
	return s, nil
}

type serverParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	Cache       core.Cache
	Metrics     *metricsvc.Metrics
	UserSvc     user.Service
	OrgSvc      org.Service
	CourseSvc   course.Service
	ProgressSvc progress.Service
	Runner      *workflow.Runner
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		Cache:       p.Cache,
		Metrics:     p.Metrics,
		UserSvc:     p.UserSvc,
		OrgSvc:      p.OrgSvc,
		CourseSvc:   p.CourseSvc,
		ProgressSvc: p.ProgressSvc,
		Runner:      p.Runner,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewProductionZap))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRedis))
	must(c.Provide(newCache))
	must(c.Provide(newBroker))
	must(c.Provide(newEmailService))
	must(c.Provide(metricsvc.New))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewOrgRepository))
	must(c.Provide(sqlxrepos.NewCourseRepository))
	must(c.Provide(sqlxrepos.NewProgressRepository))
	must(c.Provide(sqlxrepos.NewWorkflowRepository))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(org.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(newProgressService))
	must(c.Provide(newModel))
	must(c.Provide(newRunner))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
