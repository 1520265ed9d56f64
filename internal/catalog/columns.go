package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ganz677/wb/internal/domain"
)

var (
	idAliases = []string{
		"nm_id", "nm id", "nmid", "nm", "nm id wb",
		"артикул wb", "артикул", "код wb", "код",
		"wb id", "wb артикул", "id", "ид", "номер товара", "номер карточки",
		"n mid", "nm- id", "nm-id",
	}
	titleAliases = []string{
		"название wb", "наименование", "название", "product name",
		"title", "name", "card name", "товар", "наименование товара",
	}
	descAliases = []string{
		"описание", "description", "desc", "описание товара", "описание wb",
		"описание продукта", "product description",
	}
)

var (
	articleExpr = regexp.MustCompile(`^\d{6,12}$`)
	digitsExpr  = regexp.MustCompile(`^\d+$`)
	numberExpr  = regexp.MustCompile(`^[+\-]?\d+(?:[.,]\d+)?$`)
	lettersExpr = regexp.MustCompile(`[A-Za-zА-Яа-яЁё]`)
)

const (
	minIDSamples     = 10
	minIDDigitShare  = 0.7
	minIDUniqueShare = 0.5
)

// columns holds detected column positions; -1 means absent.
type columns struct {
	id, title, desc int
}

func normalizeColumnName(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("\n", " ", "\r", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

func detectColumns(t Table) (columns, error) {
	cols := pickByAlias(t.Header)

	if cols.id < 0 || cols.title < 0 {
		inferred := inferColumns(t)
		if cols.id < 0 {
			cols.id = inferred.id
		}
		if cols.title < 0 {
			cols.title = inferred.title
		}
		if cols.desc < 0 && inferred.desc != cols.title && inferred.desc != cols.id {
			cols.desc = inferred.desc
		}
	}

	if cols.id < 0 {
		return cols, &domain.ConfigurationError{Field: "catalog", Reason: "no product id column found"}
	}
	if cols.title < 0 {
		return cols, &domain.ConfigurationError{Field: "catalog", Reason: "no product title column found"}
	}

	return cols, nil
}

func pickByAlias(header []string) columns {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeColumnName(name)
		if _, ok := byName[key]; !ok {
			byName[key] = i
		}
	}

	first := func(aliases []string) int {
		for _, alias := range aliases {
			if idx, ok := byName[alias]; ok {
				return idx
			}
		}
		return -1
	}

	return columns{id: first(idAliases), title: first(titleAliases), desc: first(descAliases)}
}

func inferColumns(t Table) columns {
	cols := columns{id: -1, title: -1, desc: -1}

	for i := range t.Header {
		if looksLikeArticleColumn(t.column(i)) {
			cols.id = i
			break
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	var candidates []scored
	for i := range t.Header {
		values := t.column(i)
		if !isTextual(values) {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: titleScore(values)})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	if len(candidates) > 0 && candidates[0].score > 0 {
		cols.title = candidates[0].idx
	}
	for _, c := range candidates {
		if c.idx == cols.title || c.score <= 0 {
			continue
		}
		cols.desc = c.idx
		break
	}

	return cols
}

// looksLikeArticleColumn accepts columns dominated by unique 6-12 digit identifiers.
func looksLikeArticleColumn(values []string) bool {
	if len(values) < minIDSamples {
		return false
	}

	matched := 0
	unique := make(map[string]struct{}, len(values))
	for _, v := range values {
		if articleExpr.MatchString(v) {
			matched++
		}
		unique[v] = struct{}{}
	}

	digitShare := float64(matched) / float64(len(values))
	uniqueShare := float64(len(unique)) / float64(len(values))
	return digitShare >= minIDDigitShare && uniqueShare >= minIDUniqueShare
}

// isTextual excludes purely numeric columns from title scoring.
func isTextual(values []string) bool {
	for _, v := range values {
		if !numberExpr.MatchString(v) {
			return true
		}
	}
	return false
}

func titleScore(values []string) float64 {
	if len(values) == 0 {
		return 0
	}

	var texty, digits, length float64
	for _, v := range values {
		if lettersExpr.MatchString(v) {
			texty++
		}
		if digitsExpr.MatchString(v) {
			digits++
		}
		length += float64(len([]rune(v)))
	}

	n := float64(len(values))
	return texty/n*2 + (length/n)/50 - digits/n
}
