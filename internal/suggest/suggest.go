// Package suggest ranks near-miss candidates for diagnostics, for
// example command names and element ids that almost match.
package suggest

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxDistance is the edit distance beyond which a candidate is not
// worth suggesting.
const maxDistance = 3

// Closest returns up to max candidates ordered by edit distance to
// input, nearest first. Ties keep lexical order so output is stable.
// Exact matches and empty inputs return nil.
func Closest(input string, candidates []string, max int) []string {
	if input == "" || max <= 0 {
		return nil
	}
	type scored struct {
		name string
		dist int
	}
	var matches []scored
	lowerIn := strings.ToLower(input)
	for _, c := range candidates {
		if c == "" || c == input {
			continue
		}
		d := levenshtein.ComputeDistance(lowerIn, strings.ToLower(c))
		if d > maxDistance && !strings.Contains(strings.ToLower(c), lowerIn) {
			continue
		}
		if d > maxDistance {
			// Substring hit: rank after true near-misses.
			d = maxDistance + 1
		}
		matches = append(matches, scored{name: c, dist: d})
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > max {
		matches = matches[:max]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// List formats names for a log message, comma separated, capped at
// max with a trailing ellipsis when truncated.
func List(names []string, max int) string {
	if len(names) == 0 {
		return ""
	}
	if max > 0 && len(names) > max {
		return strings.Join(names[:max], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}
