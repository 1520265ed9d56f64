package reply

import (
	"regexp"
	"strings"
)

var (
	numberedArtifactExpr = regexp.MustCompile(`^[🔹•\-\s]*\d+\.*\s*$`)
	bulletSplitExpr      = regexp.MustCompile(`\s+—\s+| - `)
)

// Filter removes list-numbering leftovers and bullet recommendations that are
// excluded or already mentioned. Non-bullet lines pass unchanged.
func Filter(text string, exclude []string) string {
	excluded := lowerSet(exclude)
	seen := map[string]struct{}{}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if numberedArtifactExpr.MatchString(stripped) {
			continue
		}
		if title, ok := BulletTitle(stripped); ok {
			key := strings.ToLower(title)
			if _, skip := excluded[key]; skip {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// BulletTitle extracts the product title from a "🔹 Title — comment" style line.
func BulletTitle(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "🔹") && !strings.HasPrefix(s, "•") && !strings.HasPrefix(s, "-") {
		return "", false
	}

	s = strings.TrimSpace(strings.TrimLeft(s, "🔹•- "))
	if s == "" {
		return "", false
	}

	title := bulletSplitExpr.Split(s, 2)[0]
	title = strings.Trim(strings.TrimSpace(title), "*")
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false
	}
	return title, true
}
