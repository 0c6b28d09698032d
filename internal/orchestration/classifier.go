package orchestration

import (
	"strings"

	"github.com/studybuddy/backend/internal/models"
)

// Query classification is a cheap heuristic pass. It only has to be good
// enough to pick a context depth and tag a subject; generation does the rest.

var subjectKeywords = map[string][]string{
	"mathematics": {"math", "algebra", "calculus", "equation", "geometry", "derivative", "integral", "fraction"},
	"biology":     {"cell", "dna", "photosynthesis", "organism", "evolution", "mitosis", "protein"},
	"chemistry":   {"chemistry", "molecule", "atom", "reaction", "element", "compound", "acid"},
	"physics":     {"physics", "force", "gravity", "energy", "velocity", "quantum", "momentum"},
	"history":     {"history", "war", "revolution", "empire", "century", "ancient"},
	"literature":  {"poem", "novel", "author", "literature", "shakespeare", "essay"},
}

var greetingPhrases = []string{"hi", "hello", "hey", "thanks", "thank you", "good morning", "good evening"}

var deepMarkers = []string{"why does", "why is", "explain why", "prove", "derive", "in depth", "in detail", "walk me through"}

// Classify tags a query with category, subject and a rough complexity score.
func Classify(query string) models.QueryClassification {
	lower := strings.ToLower(strings.TrimSpace(query))

	classification := models.QueryClassification{
		Category:   "factual",
		Complexity: complexityOf(lower),
	}

	for _, g := range greetingPhrases {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+",") {
			classification.Category = "greeting"
			classification.Complexity = 0.1
			return classification
		}
	}

	for subject, keywords := range subjectKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				classification.Subject = subject
				break
			}
		}
		if classification.Subject != "" {
			break
		}
	}

	for _, marker := range deepMarkers {
		if strings.Contains(lower, marker) {
			classification.Category = "deep_understanding"
			if classification.Complexity < 0.7 {
				classification.Complexity = 0.7
			}
			return classification
		}
	}

	if strings.Contains(lower, "explain") || strings.Contains(lower, "how does") ||
		strings.Contains(lower, "compare") || strings.Contains(lower, "difference between") {
		classification.Category = "conceptual"
		if classification.Complexity < 0.6 {
			classification.Complexity = 0.6
		}
	}

	if strings.Contains(lower, "my ") || strings.Contains(lower, " me ") ||
		strings.HasSuffix(lower, " me") {
		classification.IsPersonal = true
	}

	return classification
}

func complexityOf(query string) float64 {
	words := len(strings.Fields(query))
	switch {
	case words <= 3:
		return 0.2
	case words <= 8:
		return 0.4
	case words <= 20:
		return 0.6
	default:
		return 0.8
	}
}
