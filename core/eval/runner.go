package eval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/generate"
)

// NowFunc is mockable in tests
var NowFunc = time.Now

// Result is the evaluation of one case, as cached on disk.
type Result struct {
	CaseID    string          `json:"case_id"`
	Task      string          `json:"task"`
	Model     string          `json:"model"`
	Judge     string          `json:"judge"`
	Output    json.RawMessage `json:"output,omitempty"`
	Score     int             `json:"score"`
	Reasoning string          `json:"reasoning,omitempty"`
	Error     string          `json:"error,omitempty"`
	Took      time.Duration   `json:"took"`
	CreatedAt time.Time       `json:"created_at"`
	Cached    bool            `json:"-"`
}

func (r Result) Failed() bool { return r.Error != "" }

// Runner evaluates cases concurrently. Successful results are cached per model, task & case,
// so a rerun only evaluates the new and previously failed cases.
type Runner struct {
	model    generate.Model
	judge    *Judge
	cacheDir string
	parallel int
	logger   core.Logger
}

func NewRunner(model generate.Model, judge *Judge, cacheDir string, parallel int, logger core.Logger) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{model: model, judge: judge, cacheDir: cacheDir, parallel: parallel, logger: logger}
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")

// cacheDir is where the results of `model` graded by `judge` are cached: scores of different judges
// do not compare.
func cacheDir(dir, model, judge string) string {
	return filepath.Join(dir, unsafeChars.Replace(model), unsafeChars.Replace(judge))
}

func cachePath(dir, model, judge, task, caseID string) string {
	return filepath.Join(cacheDir(dir, model, judge), unsafeChars.Replace(task), unsafeChars.Replace(caseID)+".json")
}

func readResult(path string) (Result, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, errors.Wrapf(err, "reading %s", path)
	}
	var res Result
	if err = json.Unmarshal(data, &res); err != nil {
		return Result{}, false, errors.Wrapf(err, "decoding %s", path)
	}
	return res, true, nil
}

func writeResult(path string, res Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating cache dir")
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing result")
	}
	return errors.Wrap(os.Rename(tmp, path), "writing result")
}

// evaluate runs the task of c then has its output judged. Task & judge errors end up in the result.
func (r *Runner) evaluate(ctx context.Context, c Case) Result {
	res := Result{CaseID: c.ID, Task: c.Task, Model: r.model.Name(), Judge: r.judge.Name(), CreatedAt: NowFunc().UTC()}
	task, ok := LookupTask(c.Task)
	if !ok {
		res.Error = "unknown task " + c.Task
		return res
	}

	start := time.Now()
	out, err := task.Run(ctx, r.model, c.Input)
	res.Took = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if res.Output, err = json.Marshal(out); err != nil {
		res.Error = errors.Wrap(err, "encoding output").Error()
		return res
	}

	verdict, err := r.judge.Score(ctx, c, res.Output)
	if err != nil {
		res.Error = errors.Wrap(err, "judging").Error()
		return res
	}
	res.Score, res.Reasoning = verdict.Score, verdict.Reasoning
	return res
}

// Run evaluates `cases` and reports on them. Only context cancellation & cache write failures abort the run.
func (r *Runner) Run(ctx context.Context, cases []Case) (Report, error) {
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(cases))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for _, c := range cases {
		g.Go(func() error {
			path := cachePath(r.cacheDir, r.model.Name(), r.judge.Name(), c.Task, c.ID)
			res, found, err := readResult(path)
			if err != nil {
				r.logger.Warn("ignoring unreadable cached result", err, map[string]interface{}{"case": c.ID})
			}
			if found && !res.Failed() {
				res.Cached = true
			} else {
				if err = ctx.Err(); err != nil {
					return err
				}
				res = r.evaluate(ctx, c)
				if res.Failed() {
					r.logger.Warn("case failed", map[string]interface{}{"case": c.ID, "task": c.Task, "error": res.Error})
				} else if err = writeResult(path, res); err != nil {
					return err
				}
				r.logger.Info("case evaluated", map[string]interface{}{"case": c.ID, "score": res.Score})
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return NewReport(r.model.Name(), results), nil
}
