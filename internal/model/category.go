package model

import (
	"fmt"
	"strings"
)

// Category classifies a detected defect. Only the five semantic-focused
// categories below are allowed; everything an LLM reports is normalized
// into this set before an Issue is constructed.
type Category string

const (
	CategoryLogicErrors           Category = "logic-errors"
	CategoryAPIMisuse             Category = "api-misuse"
	CategorySemanticInconsistency Category = "semantic-inconsistency"
	CategoryEdgeCaseHandling      Category = "edge-case-handling"
	CategoryCodeIntentMismatch    Category = "code-intent-mismatch"
)

// AllowedCategories is the closed set of valid categories.
var AllowedCategories = map[Category]bool{
	CategoryLogicErrors:           true,
	CategoryAPIMisuse:             true,
	CategorySemanticInconsistency: true,
	CategoryEdgeCaseHandling:      true,
	CategoryCodeIntentMismatch:    true,
}

// categoryAliases maps common LLM category variations to allowed categories.
// LLMs rarely stick to the requested vocabulary, so we fold the usual
// synonyms into the closed set instead of discarding the finding.
var categoryAliases = map[string]Category{
	// Identity mappings
	"logic-errors":           CategoryLogicErrors,
	"api-misuse":             CategoryAPIMisuse,
	"semantic-inconsistency": CategorySemanticInconsistency,
	"edge-case-handling":     CategoryEdgeCaseHandling,
	"code-intent-mismatch":   CategoryCodeIntentMismatch,

	// Variations -> edge-case-handling
	"code-quality":     CategoryEdgeCaseHandling,
	"error-handling":   CategoryEdgeCaseHandling,
	"null-check":       CategoryEdgeCaseHandling,
	"boundary-check":   CategoryEdgeCaseHandling,
	"division-by-zero": CategoryEdgeCaseHandling,
	"empty-check":      CategoryEdgeCaseHandling,
	"input-validation": CategoryEdgeCaseHandling,

	// Variations -> logic-errors
	"logic-error":      CategoryLogicErrors,
	"logical-error":    CategoryLogicErrors,
	"off-by-one":       CategoryLogicErrors,
	"boolean-logic":    CategoryLogicErrors,
	"integer-division": CategoryLogicErrors,
	"arithmetic-error": CategoryLogicErrors,
	"operator-error":   CategoryLogicErrors,

	// Variations -> api-misuse
	"resource-leak":   CategoryAPIMisuse,
	"memory-leak":     CategoryAPIMisuse,
	"file-leak":       CategoryAPIMisuse,
	"api-usage":       CategoryAPIMisuse,
	"cleanup-missing": CategoryAPIMisuse,

	// Variations -> semantic-inconsistency
	"naming-issue":           CategorySemanticInconsistency,
	"side-effect":            CategorySemanticInconsistency,
	"documentation-mismatch": CategorySemanticInconsistency,
	"misleading-name":        CategorySemanticInconsistency,

	// Variations -> code-intent-mismatch
	"requirement-mismatch":   CategoryCodeIntentMismatch,
	"specification-mismatch": CategoryCodeIntentMismatch,
}

// NormalizeCategory folds a raw category string from an LLM into one of
// the allowed categories. Resolution order: exact alias lookup,
// separator-swapped lookup, then keyword matching. Returns an error when
// nothing matches; callers drop the offending issue rather than fail the
// whole result.
func NormalizeCategory(raw string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))

	if cat, ok := categoryAliases[normalized]; ok {
		return cat, nil
	}
	if cat, ok := categoryAliases[strings.ReplaceAll(normalized, "_", "-")]; ok {
		return cat, nil
	}
	if cat, ok := categoryAliases[strings.ReplaceAll(normalized, "-", "_")]; ok {
		return cat, nil
	}

	// Keyword fallback for freeform labels
	switch {
	case containsAny(normalized, "logic", "boolean", "operator"):
		return CategoryLogicErrors, nil
	case containsAny(normalized, "api", "resource", "leak"):
		return CategoryAPIMisuse, nil
	case containsAny(normalized, "semantic", "naming", "side"):
		return CategorySemanticInconsistency, nil
	case containsAny(normalized, "edge", "boundary", "empty", "null"):
		return CategoryEdgeCaseHandling, nil
	case containsAny(normalized, "intent", "requirement", "mismatch"):
		return CategoryCodeIntentMismatch, nil
	case containsAny(normalized, "quality", "check", "validation"):
		return CategoryEdgeCaseHandling, nil
	}

	return "", fmt.Errorf("%w: %q", ErrBadCategory, raw)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
