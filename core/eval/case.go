// Package eval scores the generation prompts against a set of cases, with a language model as judge.
package eval

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Case is one input of a task, plus what a good output is expected to do.
type Case struct {
	ID           string                 `yaml:"id" json:"id"`
	Task         string                 `yaml:"task" json:"task"`
	Input        map[string]interface{} `yaml:"input" json:"input"`
	Expectations []string               `yaml:"expectations" json:"expectations"`
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadCases reads the cases of a YAML file, or of every YAML file of a directory.
// Case ids must be unique & name a known task.
func LoadCases(path string) ([]Case, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading cases")
	}

	files := []string{path}
	if info.IsDir() {
		files = files[:0]
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrap(err, "listing cases")
		}
		for _, e := range entries {
			if !e.IsDir() && isYAML(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	var cases []Case
	seen := make(map[string]string)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", f)
		}
		var cf caseFile
		if err = yaml.Unmarshal(data, &cf); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", f)
		}
		for i, c := range cf.Cases {
			switch {
			case c.ID == "":
				return nil, errors.Errorf("%s: case %d has no id", f, i)
			case seen[c.ID] != "":
				return nil, errors.Errorf("%s: case %q already defined in %s", f, c.ID, seen[c.ID])
			}
			if _, ok := LookupTask(c.Task); !ok {
				return nil, errors.Errorf("%s: case %q: unknown task %q", f, c.ID, c.Task)
			}
			seen[c.ID] = f
			cases = append(cases, c)
		}
	}
	return cases, nil
}

// FilterCases keeps the cases of `task`, all of them if empty.
func FilterCases(cases []Case, task string) []Case {
	if task == "" {
		return cases
	}
	out := make([]Case, 0, len(cases))
	for _, c := range cases {
		if c.Task == task {
			out = append(out, c)
		}
	}
	return out
}
