package catalog

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

var (
	volumeExpr = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])\d+\s*(?:ml|мл)($|[^\p{L}\p{N}])`)
	wordExpr   = regexp.MustCompile(`[a-zA-Zа-яА-ЯёЁ']+`)
)

var stopWords = setOf(
	"духи", "парфюм", "парфюмерная", "вода", "масляные", "масляный", "аромат",
	"edp", "edt", "cologne", "парф", "ml", "мл",
)

var brandWords = setOf(
	"armoule", "tom", "ford", "zara", "chanel", "dior", "hermes", "ysl", "jo", "malone",
	"mancera", "montale", "kenzo", "gucci", "burberry", "versace", "lancome", "creed",
	"kilian", "valentino", "givenchy", "prada", "loewe", "byredo", "zadig", "voltaire",
)

func setOf(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// normalizeTitle lowercases, strips volume suffixes such as "50 ml" and collapses spaces.
func normalizeTitle(title string) string {
	s := strings.ToLower(norm.NFKC.String(title))
	for {
		next := volumeExpr.ReplaceAllString(s, "${1} ${2}")
		if next == s {
			break
		}
		s = next
	}
	return strings.Join(strings.Fields(s), " ")
}

// titleKey is the case and whitespace insensitive identity of a title.
func titleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func titleTokens(normalized string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, w := range wordExpr.FindAllString(normalized, -1) {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, brand := brandWords[w]; brand {
			continue
		}
		tokens[w] = struct{}{}
	}
	return tokens
}

func sequenceRatio(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// scoreTitles blends token overlap with character similarity, plus a bonus
// when the titles share any meaningful word.
func scoreTitles(a, b string) float64 {
	an, bn := normalizeTitle(a), normalizeTitle(b)
	ta, tb := titleTokens(an), titleTokens(bn)

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}

	var jaccard float64
	if len(ta) > 0 && len(tb) > 0 {
		union := len(ta) + len(tb) - shared
		jaccard = float64(shared) / float64(union)
	}

	var bonus float64
	if shared > 0 {
		bonus = 0.1
	}

	return 0.6*jaccard + 0.4*sequenceRatio(an, bn) + bonus
}
