package technique

import "defectlab/internal/model"

// DefaultExamples returns the curated few-shot set: one example per
// category plus a clean negative. n caps the count; n <= 0 or n larger
// than the set returns all of them.
func DefaultExamples(n int) []Example {
	examples := []Example{
		{
			ID:          "loop_bound_off_by_one",
			Description: "Off-by-one in a loop bound",
			Code: `int sum(const std::vector<int>& v) {
    int total = 0;
    for (size_t i = 0; i <= v.size(); ++i) {
        total += v[i];
    }
    return total;
}`,
			Issues: []model.Issue{
				{
					Category:    model.CategoryLogicErrors,
					Severity:    model.SeverityHigh,
					Line:        3,
					Description: "Loop condition uses <= against v.size(), reading one element past the end",
					Reasoning:   "Valid indexes run from 0 to size()-1. The final iteration reads v[v.size()], which is out of bounds and corrupts the sum or crashes.",
				},
			},
		},
		{
			ID:          "unchecked_find_iterator",
			Description: "map::find result used without an end() check",
			Code: `int price(const std::map<std::string, int>& prices, const std::string& item) {
    auto it = prices.find(item);
    return it->second;
}`,
			Issues: []model.Issue{
				{
					Category:    model.CategoryAPIMisuse,
					Severity:    model.SeverityHigh,
					Line:        3,
					Description: "Iterator returned by find() is dereferenced without comparing to end()",
					Reasoning:   "find() returns end() when the key is absent, and dereferencing end() is undefined behavior. The contract requires checking the iterator before use.",
				},
			},
		},
		{
			ID:          "comment_contradicts_code",
			Description: "Code contradicts its own comment",
			Code: `// Returns the larger of the two values.
int larger(int a, int b) {
    return a < b ? a : b;
}`,
			Issues: []model.Issue{
				{
					Category:    model.CategorySemanticInconsistency,
					Severity:    model.SeverityMedium,
					Line:        3,
					Description: "Function documented and named 'larger' returns the smaller value",
					Reasoning:   "The ternary picks a when a < b, which is the minimum. Every caller trusting the name or the comment gets the opposite of what was promised.",
				},
			},
		},
		{
			ID:          "average_wrong_guard",
			Description: "Average helper with a wrong guard and no empty handling",
			Code: `double average(const std::vector<double>& samples) {
    double sum = 0.0;
    for (double s : samples) {
        sum += s;
    }
    if (samples.size() > 1) {
        return sum / samples.size();
    }
    return sum;
}`,
			Issues: []model.Issue{
				{
					Category:    model.CategoryCodeIntentMismatch,
					Severity:    model.SeverityMedium,
					Line:        6,
					Description: "Single-element input returns the raw sum instead of the average",
					Reasoning:   "The guard only divides when size() > 1, so a one-sample vector skips the division. The function's name promises an average for any non-empty input.",
				},
				{
					Category:    model.CategoryEdgeCaseHandling,
					Severity:    model.SeverityLow,
					Line:        9,
					Description: "Empty input silently returns 0.0, indistinguishable from a real zero average",
					Reasoning:   "An empty sample set has no defined average. Returning 0.0 hides the condition from callers who cannot tell it apart from legitimate data.",
				},
			},
		},
		{
			ID:          "clean_bounded_copy",
			Description: "Correct bounded copy, no issues",
			Code: `std::vector<int> firstN(const std::vector<int>& v, size_t n) {
    if (n > v.size()) {
        n = v.size();
    }
    return std::vector<int>(v.begin(), v.begin() + n);
}`,
			Issues: nil,
		},
	}

	if n <= 0 || n >= len(examples) {
		return examples
	}
	return examples[:n]
}
