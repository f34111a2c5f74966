package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/eval"
	llmsvc "github.com/trezcool/darasa/services/llm"
)

var newModelFunc = llmsvc.NewModel // mockable

type app struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer

	cacheDir string
	asJSON   bool
}

func (a *app) write(rep eval.Report) error {
	if !a.asJSON {
		return rep.Write(a.out)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "evals",
		Short:         "Evaluate the course generation tasks with an LLM judge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", ".evals", "directory of the cached results")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print reports as JSON")

	root.AddCommand(newRunCmd(a), newReportCmd(a), newTasksCmd(a))
	return root
}

func newRunCmd(a *app) *cobra.Command {
	var (
		casesPath  string
		task       string
		parallel   int
		model      string
		judgeModel string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the cases not cached yet, then report on all of them",
		Example: `  evals run --cases core/eval/testdata/cases.yaml
  evals run --cases cases.yaml --task write_activity --model gemini-2.5-pro`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if task != "" {
				if _, ok := eval.LookupTask(task); !ok {
					return errors.Errorf("unknown task %q, see `evals tasks`", task)
				}
			}
			cases, err := eval.LoadCases(casesPath)
			if err != nil {
				return err
			}
			if task != "" {
				cases = eval.FilterCases(cases, task)
			}
			if len(cases) == 0 {
				return errors.New("no cases to evaluate")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			gen, err := newModelFunc(ctx, a.conf.LLM, model)
			if err != nil {
				return errors.Wrap(err, "setting up model")
			}
			judge, err := newModelFunc(ctx, a.conf.LLM, judgeModel)
			if err != nil {
				return errors.Wrap(err, "setting up judge")
			}

			runner := eval.NewRunner(gen, eval.NewJudge(judge), a.cacheDir, parallel, a.logger)
			rep, err := runner.Run(ctx, cases)
			if err != nil {
				return err
			}
			return a.write(rep)
		},
	}
	cmd.Flags().StringVar(&casesPath, "cases", "", "YAML or JSON file of cases")
	cmd.Flags().StringVar(&task, "task", "", "only evaluate the cases of this task")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "cases evaluated concurrently")
	cmd.Flags().StringVar(&model, "model", a.conf.LLM.Model, "model under evaluation")
	cmd.Flags().StringVar(&judgeModel, "judge-model", a.conf.LLM.JudgeModel, "model grading the outputs")
	_ = cmd.MarkFlagRequired("cases")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var model, judgeModel, task string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report on the cached results of a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := eval.LoadReport(a.cacheDir, model, judgeModel, task)
			if err != nil {
				return err
			}
			return a.write(rep)
		},
	}
	cmd.Flags().StringVar(&model, "model", a.conf.LLM.Model, "model to report on")
	cmd.Flags().StringVar(&judgeModel, "judge-model", a.conf.LLM.JudgeModel, "model that graded the outputs")
	cmd.Flags().StringVar(&task, "task", "", "only report on this task")
	return cmd
}

func newTasksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks cases can evaluate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			for _, t := range eval.Tasks() {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
			}
			return tw.Flush()
		},
	}
}

// run executes the CLI with `args` (without program name).
func run(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.out)
	return root.ExecuteContext(ctx)
}
