package eval

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
)

type TaskSummary struct {
	Task    string  `json:"task"`
	Cases   int     `json:"cases"`
	Failed  int     `json:"failed"`
	Average float64 `json:"average"`
}

type Report struct {
	Model   string        `json:"model"`
	Results []Result      `json:"results"`
	Tasks   []TaskSummary `json:"tasks"`
	Average float64       `json:"average"` // over the successful cases
	Failed  int           `json:"failed"`
	Cached  int           `json:"cached"`
}

func average(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// NewReport sorts the results by task & case, and sums them up per task.
func NewReport(model string, results []Result) Report {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Task != results[j].Task {
			return results[i].Task < results[j].Task
		}
		return results[i].CaseID < results[j].CaseID
	})

	rep := Report{Model: model, Results: results}
	var (
		sum, scored int
		summary     *TaskSummary
		taskSum     int
	)
	flush := func() {
		if summary != nil {
			summary.Average = average(taskSum, summary.Cases-summary.Failed)
			rep.Tasks = append(rep.Tasks, *summary)
		}
	}
	for _, res := range results {
		if summary == nil || summary.Task != res.Task {
			flush()
			summary, taskSum = &TaskSummary{Task: res.Task}, 0
		}
		summary.Cases++
		if res.Cached {
			rep.Cached++
		}
		if res.Failed() {
			summary.Failed++
			rep.Failed++
			continue
		}
		taskSum += res.Score
		sum += res.Score
		scored++
	}
	flush()
	rep.Average = average(sum, scored)
	return rep
}

// LoadReport reports on the results cached for `model` graded by `judge`, restricted to `task` if given.
func LoadReport(dir, model, judge, task string) (Report, error) {
	dir = cacheDir(dir, model, judge)
	if task != "" {
		dir = filepath.Join(dir, unsafeChars.Replace(task))
	}

	var results []Result
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".json" {
			return err
		}
		res, _, err := readResult(path)
		if err != nil {
			return err
		}
		res.Cached = true
		results = append(results, res)
		return nil
	})
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return NewReport(model, nil), nil
		}
		return Report{}, errors.Wrap(err, "loading cached results")
	}
	return NewReport(model, results), nil
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

// Write prints the report as a table.
func (rep Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "model: %s\n\n", rep.Model)
	fmt.Fprintln(tw, "TASK\tCASE\tSCORE\tNOTES")
	for _, res := range rep.Results {
		score, notes := fmt.Sprintf("%d/%d", res.Score, MaxScore), oneLine(res.Reasoning, 80)
		if res.Failed() {
			score, notes = "error", oneLine(res.Error, 80)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Task, res.CaseID, score, notes)
	}
	fmt.Fprintln(tw)
	for _, ts := range rep.Tasks {
		fmt.Fprintf(tw, "%s\t%d cases\t%.1f\t%d failed\n", ts.Task, ts.Cases, ts.Average, ts.Failed)
	}
	fmt.Fprintf(tw, "overall\t%d cases\t%.1f\t%d failed, %d cached\n", len(rep.Results), rep.Average, rep.Failed, rep.Cached)
	return tw.Flush()
}
