package repair

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// MaxToolNameDistance is the largest edit distance accepted by
// FindBestToolMatch.
const MaxToolNameDistance = 3

// FindBestToolMatch resolves a misspelled tool name against the available
// tools: a case-insensitive exact match wins, otherwise the closest tool by
// Levenshtein distance, if within MaxToolNameDistance. Ties go to the tool
// listed first.
func FindBestToolMatch(name string, available []string) (string, bool) {
	if len(available) == 0 {
		return "", false
	}
	for _, tool := range available {
		if strings.EqualFold(tool, name) {
			return tool, true
		}
	}
	best := ""
	bestDistance := MaxToolNameDistance + 1
	for _, tool := range available {
		d := levenshtein.ComputeDistance(name, tool)
		if d < bestDistance {
			best, bestDistance = tool, d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
