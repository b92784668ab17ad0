package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"defectlab/internal/model"
)

const exampleJSON = `{
	"id": "off_by_one",
	"description": "loop bound defect",
	"code": "for (int i = 0; i <= n; i++) sum += v[i];",
	"file_path": "loop.cpp",
	"expected_issues": [{
		"category": "logic-errors",
		"severity": "high",
		"line": 1,
		"description": "inclusive bound reads past the end",
		"reasoning": "the index reaches n which is one past the last element"
	}]
}`

const cleanJSON = `{
	"id": "clean_add",
	"description": "correct addition",
	"code": "int add(int a, int b) { return a + b; }",
	"file_path": "add.cpp",
	"expected_issues": []
}`

func writeDatasetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "01_off_by_one.json"), []byte(exampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "02_clean.json"), []byte(cleanJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadDatasetFromDir(t *testing.T) {
	ds, err := LoadDataset(writeDatasetDir(t))
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if ds.Size() != 2 {
		t.Fatalf("size = %d, want 2", ds.Size())
	}
	// Sorted by filename.
	if ds.All()[0].ID != "off_by_one" || ds.All()[1].ID != "clean_add" {
		t.Errorf("order = %s, %s", ds.All()[0].ID, ds.All()[1].ID)
	}

	ex, err := ds.ByID("off_by_one")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if len(ex.ExpectedIssues) != 1 || ex.ExpectedIssues[0].Category != model.CategoryLogicErrors {
		t.Errorf("expected issues = %+v", ex.ExpectedIssues)
	}

	if _, err := ds.ByID("ghost"); err == nil {
		t.Error("ByID(ghost) should fail")
	}
}

func TestLoadDatasetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ground_truth.json")
	if err := os.WriteFile(path, []byte("["+exampleJSON+","+cleanJSON+"]"), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if ds.Size() != 2 {
		t.Errorf("size = %d", ds.Size())
	}
}

func TestLoadDatasetErrors(t *testing.T) {
	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing path should fail")
	}

	empty := t.TempDir()
	if _, err := LoadDataset(empty); err == nil {
		t.Error("empty directory should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"id": ""}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDataset(bad); err == nil {
		t.Error("example without id should fail")
	}
}

func TestDatasetFilters(t *testing.T) {
	ds, err := LoadDataset(writeDatasetDir(t))
	if err != nil {
		t.Fatal(err)
	}

	clean := ds.CleanExamples()
	if len(clean) != 1 || clean[0].ID != "clean_add" {
		t.Errorf("clean = %+v", clean)
	}

	logic := ds.FilterByCategory(model.CategoryLogicErrors)
	if len(logic) != 1 || logic[0].ID != "off_by_one" {
		t.Errorf("logic-errors examples = %+v", logic)
	}

	dist := ds.CategoryDistribution()
	if dist[model.CategoryLogicErrors] != 1 {
		t.Errorf("distribution = %+v", dist)
	}
}
