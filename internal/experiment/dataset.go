// Package experiment evaluates techniques against human-annotated ground
// truth: dataset loading, precision/recall/F1 metrics, prompt logging,
// and the runner that ties them together.
package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"defectlab/internal/model"
)

// GroundTruthExample is one annotated code sample. An example with no
// expected issues is a negative case; detecting anything in it counts
// against precision.
type GroundTruthExample struct {
	ID             string        `json:"id"`
	Description    string        `json:"description"`
	Code           string        `json:"code"`
	FilePath       string        `json:"file_path"`
	ExpectedIssues []model.Issue `json:"expected_issues"`
}

// IsClean reports whether this is a negative example.
func (e GroundTruthExample) IsClean() bool {
	return len(e.ExpectedIssues) == 0
}

// CategoryCounts counts expected issues by category.
func (e GroundTruthExample) CategoryCounts() map[model.Category]int {
	counts := make(map[model.Category]int)
	for _, issue := range e.ExpectedIssues {
		counts[issue.Category]++
	}
	return counts
}

// Dataset is an ordered collection of ground truth examples.
type Dataset struct {
	examples []GroundTruthExample
}

// LoadDataset loads examples from path. A directory is read as one JSON
// file per example, sorted by filename; a file is read as a JSON array.
func LoadDataset(path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("dataset path not found: %s", path)
	}

	var examples []GroundTruthExample
	if info.IsDir() {
		examples, err = loadDir(path)
	} else {
		examples, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples found in %s", path)
	}

	for _, ex := range examples {
		if ex.ID == "" {
			return nil, fmt.Errorf("example without id in %s", path)
		}
		if ex.Code == "" {
			return nil, fmt.Errorf("example %s has no code", ex.ID)
		}
	}
	return &Dataset{examples: examples}, nil
}

func loadDir(dir string) ([]GroundTruthExample, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var examples []GroundTruthExample
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		var ex GroundTruthExample
		if err := json.Unmarshal(data, &ex); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
		examples = append(examples, ex)
	}
	return examples, nil
}

func loadFile(path string) ([]GroundTruthExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var examples []GroundTruthExample
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return examples, nil
}

// All returns the examples in load order.
func (d *Dataset) All() []GroundTruthExample {
	return d.examples
}

// Size returns the number of examples.
func (d *Dataset) Size() int {
	return len(d.examples)
}

// ByID finds an example by its identifier.
func (d *Dataset) ByID(id string) (GroundTruthExample, error) {
	for _, ex := range d.examples {
		if ex.ID == id {
			return ex, nil
		}
	}
	return GroundTruthExample{}, fmt.Errorf("example not found: %s", id)
}

// FilterByCategory returns examples with at least one expected issue of
// the given category.
func (d *Dataset) FilterByCategory(category model.Category) []GroundTruthExample {
	var out []GroundTruthExample
	for _, ex := range d.examples {
		for _, issue := range ex.ExpectedIssues {
			if issue.Category == category {
				out = append(out, ex)
				break
			}
		}
	}
	return out
}

// CleanExamples returns the negative examples.
func (d *Dataset) CleanExamples() []GroundTruthExample {
	var out []GroundTruthExample
	for _, ex := range d.examples {
		if ex.IsClean() {
			out = append(out, ex)
		}
	}
	return out
}

// CategoryDistribution counts how many examples mention each category.
func (d *Dataset) CategoryDistribution() map[model.Category]int {
	counts := make(map[model.Category]int)
	for _, ex := range d.examples {
		for category := range ex.CategoryCounts() {
			counts[category]++
		}
	}
	return counts
}
