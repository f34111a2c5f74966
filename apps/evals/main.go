// Command evals scores the course generation tasks on a set of cases, with a language model as judge.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/trezcool/darasa/core"
	logsvc "github.com/trezcool/darasa/services/logger"
)

func main() {
	conf := core.NewConfig()
	zl, err := logsvc.NewProductionZap(conf)
	if err != nil {
		zl = zap.NewExample()
	}
	defer func() { _ = zl.Sync() }()

	a := &app{conf: conf, logger: logsvc.NewZapLogger(zl.Named("evals")), out: os.Stdout}
	if err := run(context.Background(), a, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		_ = zl.Sync()
		os.Exit(1)
	}
}
