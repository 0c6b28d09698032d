package validation

import (
	"context"
	"regexp"
	"strings"

	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/models"
)

// Claim extraction is deliberately shallow. A sentence is treated as a
// checkable claim when it asserts something concrete rather than hedging or
// asking. The knowledge base then looks for a supporting source.

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

var assertionMarkers = []string{
	" is ", " are ", " was ", " were ", " has ", " have ",
	" equals ", " means ", " causes ", " consists ",
}

var hedgeMarkers = []string{
	"might", "maybe", "perhaps", "possibly", "i think", "it depends",
	"could be", "not sure",
}

func extractClaims(response string, max int) []string {
	sentences := sentenceSplit.Split(response, -1)

	claims := make([]string, 0, max)
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) < 20 {
			continue
		}
		lower := strings.ToLower(s)
		if strings.HasSuffix(s, "?") {
			continue
		}
		if containsAny(lower, hedgeMarkers) {
			continue
		}
		if !containsAny(lower, assertionMarkers) {
			continue
		}
		claims = append(claims, s)
		if len(claims) == max {
			break
		}
	}
	return claims
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

const maxClaimsPerResponse = 8

func (v *Validator) factCheck(ctx context.Context, response string) models.FactCheckSummary {
	claims := extractClaims(response, maxClaimsPerResponse)

	summary := models.FactCheckSummary{
		ClaimsChecked: len(claims),
		PassRate:      1.0,
	}
	if len(claims) == 0 {
		return summary
	}

	for _, claim := range claims {
		passed, sourceID := v.knowledge.VerifyClaim(ctx, claim, v.cfg.MinReliability)
		check := models.ClaimCheck{Claim: claim, Passed: passed, SourceID: sourceID}
		if passed {
			summary.ClaimsPassed++
		}
		summary.Claims = append(summary.Claims, check)
	}

	summary.PassRate = float64(summary.ClaimsPassed) / float64(summary.ClaimsChecked)
	return summary
}

// structureScore rewards responses that look like teaching material and
// penalizes degenerate output.
func structureScore(response string) float64 {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return 0
	}

	score := 0.5

	tokens := ctxpkg.EstimateTokens(trimmed)
	if tokens >= 20 && tokens <= 800 {
		score += 0.2
	}
	if strings.Contains(trimmed, "\n") || strings.Count(trimmed, ". ") >= 2 {
		score += 0.2
	}
	if strings.Contains(strings.ToLower(trimmed), "for example") ||
		strings.Contains(trimmed, ":") {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}
