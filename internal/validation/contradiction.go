package validation

import (
	"fmt"
	"strings"

	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/models"
)

// Contradiction scan compares the new response against the user's recent
// interaction history. Two statements about the same topic with inverted
// polarity count as a contradiction.

var negationMarkers = []string{
	"not ", "never ", "no ", "isn't", "aren't", "wasn't", "doesn't",
	"don't", "cannot", "can't", "incorrect", "false",
}

const contradictionSimilarity = 0.55

func hasNegation(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range negationMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (v *Validator) scanContradictions(response string, history []models.Interaction) models.ContradictionAnalysis {
	analysis := models.ContradictionAnalysis{}

	responseNegated := hasNegation(response)

	for _, past := range history {
		if past.Response == "" {
			continue
		}
		sim := ctxpkg.Similarity(response, past.Response)
		if sim < contradictionSimilarity {
			continue
		}
		if hasNegation(past.Response) == responseNegated {
			continue
		}

		analysis.Found = true
		analysis.Count++
		analysis.Details = append(analysis.Details,
			fmt.Sprintf("conflicts with earlier answer to %q", truncate(past.Query, 60)))
	}

	return analysis
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
