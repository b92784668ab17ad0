// Package staticfilter keeps LLM output complementary to static analysis.
// It runs clang-tidy when available, and strips LLM issues that a
// mechanical tool would have found anyway, so results measure only the
// semantic value the model adds.
package staticfilter

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"defectlab/internal/logging"
	"defectlab/internal/model"
)

// Finding is one diagnostic from a static analysis run.
type Finding struct {
	File    string
	Line    int
	Column  int
	Level   string // warning, error, note
	Check   string // e.g. "bugprone-use-after-move"
	Message string
}

// outputPattern matches clang-tidy's diagnostic lines:
// /path/to/file.cpp:10:5: warning: message [check-name]
var outputPattern = regexp.MustCompile(`(?m)^([^:\n]+):(\d+):(\d+): (warning|error|note): (.+?) \[([^\]]+)\]$`)

// Runner executes clang-tidy against a file.
type Runner struct {
	Path      string
	ExtraArgs []string
}

func NewRunner() *Runner {
	return &Runner{Path: "clang-tidy"}
}

// Available reports whether the clang-tidy binary can be found.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.Path)
	return err == nil
}

// Run analyzes one file and returns its diagnostics. Diagnostics from
// headers pulled in by the file are dropped.
func (r *Runner) Run(ctx context.Context, filePath string) ([]Finding, error) {
	args := append([]string{}, r.ExtraArgs...)
	args = append(args, filePath, "--", "-std=c++17", "-I.")

	out, err := exec.CommandContext(ctx, r.Path, args...).CombinedOutput()
	if err != nil {
		// clang-tidy exits non-zero when it reports errors; only a
		// failure to run at all is fatal.
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("running clang-tidy: %w", err)
		}
	}

	findings := ParseOutput(string(out), filePath)
	logging.AnalyzerDebug("clang-tidy found %d diagnostics in %s", len(findings), filePath)
	return findings, nil
}

// ParseOutput extracts diagnostics for filePath from raw clang-tidy output.
func ParseOutput(output, filePath string) []Finding {
	var findings []Finding
	for _, m := range outputPattern.FindAllStringSubmatch(output, -1) {
		if !sameFile(m[1], filePath) {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		findings = append(findings, Finding{
			File:    m[1],
			Line:    line,
			Column:  col,
			Level:   m[4],
			Message: m[5],
			Check:   m[6],
		})
	}
	return findings
}

func sameFile(reported, target string) bool {
	return baseName(reported) == baseName(target)
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// mechanicalPatterns are defect descriptions that static tools detect
// reliably. An LLM issue matching one of these adds no semantic value.
var mechanicalPatterns = []string{
	"memory leak",
	"use-after-free",
	"use after free",
	"double free",
	"null pointer dereference",
	"uninitialized variable",
	"buffer overflow",
	"unnecessary copy",
	"inefficient string concatenation",
	"pass by value",
	"use nullptr",
	"use auto",
	"use override",
	"use smart pointer",
	"use make_unique",
	"use make_shared",
	"range-based for",
	"data race",
	"deadlock",
}

// FilterIssues drops LLM issues that collide with static findings or
// describe a mechanically-detectable defect.
func FilterIssues(issues []model.Issue, findings []Finding) []model.Issue {
	staticLines := make(map[int]bool, len(findings))
	for _, f := range findings {
		staticLines[f.Line] = true
	}

	kept := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		if staticLines[issue.Line] {
			continue
		}
		if Mechanical(issue.Description) {
			continue
		}
		kept = append(kept, issue)
	}
	return kept
}

// Mechanical reports whether a description matches a defect class that
// static analysis already covers.
func Mechanical(description string) bool {
	lower := strings.ToLower(description)
	for _, pattern := range mechanicalPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// PromptContext renders findings as prompt text telling the model which
// lines are already covered. At most ten findings are listed.
func PromptContext(findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("**Static Analysis Already Found:**\n")
	shown := findings
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, f := range shown {
		fmt.Fprintf(&b, "- Line %d: %s [%s]\n", f.Line, f.Message, f.Check)
	}
	if rest := len(findings) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "- ... and %d more\n", rest)
	}
	b.WriteString("\nDO NOT report issues on these lines or similar issues.\n")
	return b.String()
}
