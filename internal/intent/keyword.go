package intent

import "strings"

// kpiKeywords mark questions that likely ask for reported figures.
var kpiKeywords = []string{
	"value", "values", "how much", "amount", "performance",
	"emissions", "energy", "water", "waste", "ratio",
	"percentage", "total", "scope",
}

// KeywordClassifier flags KPI questions by case-insensitive substring match.
// It is English-only; swap in another domain.Classifier for other languages.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier returns a classifier over the default KPI keyword set.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{keywords: kpiKeywords}
}

// Classify reports whether text mentions any KPI keyword.
func (c *KeywordClassifier) Classify(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
