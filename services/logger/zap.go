package logsvc

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// ZapLogger is a core.Logger writing structured lines through zap.
type ZapLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{zl: zl.WithOptions(zap.AddCallerSkip(2))}
}

// NewProductionZap returns a JSON zap logger, or a human friendly one in debug.
func NewProductionZap(conf *core.Config) (*zap.Logger, error) {
	if conf.Debug {
		return zap.NewDevelopment(zap.Fields(zap.String("app", conf.AppName)))
	}
	return zap.NewProduction(zap.Fields(zap.String("app", conf.AppName), zap.String("build", conf.Build)))
}

// fields maps the logger args to zap fields: errors, users & maps get dedicated keys.
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			flds = append(flds, zap.Error(v))
		case user.User:
			flds = append(flds, zap.String("user_id", v.ID), zap.String("user_email", v.Email))
		case map[string]interface{}:
			for k, val := range v {
				flds = append(flds, zap.Any(k, val))
			}
		default:
			flds = append(flds, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return flds
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.log(zap.DebugLevel, msg, args) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.log(zap.InfoLevel, msg, args) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.log(zap.WarnLevel, msg, args) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.log(zap.ErrorLevel, msg, args) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.log(zap.FatalLevel, msg, args) }

func (l *ZapLogger) log(lvl zapcore.Level, msg string, args []interface{}) {
	if ce := l.zl.Check(lvl, msg); ce != nil {
		ce.Write(fields(args)...)
	}
}

func (l *ZapLogger) Sync() error {
	return l.zl.Sync()
}
