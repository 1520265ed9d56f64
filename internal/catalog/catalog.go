// Package catalog loads the product catalog once and answers title lookups
// and "similar product" queries used to enrich generated replies.
package catalog

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ganz677/wb/internal/domain"
)

// Index is immutable after Build and safe for concurrent readers.
type Index struct {
	entries   []domain.CatalogEntry
	byID      map[string]string
	titles    []string
	described []bool // row has description text after markup stripping
	vectors   []sparseVector
	model     *vectorizer
}

// Build detects the id/title/description columns and precomputes lookups and vectors.
func Build(t Table) (*Index, error) {
	cols, err := detectColumns(t)
	if err != nil {
		return nil, err
	}

	idx := &Index{byID: map[string]string{}}
	for _, row := range t.Rows {
		id := t.cell(row, cols.id)
		title := t.cell(row, cols.title)
		if id == "" || title == "" {
			continue
		}
		entry := domain.CatalogEntry{ID: id, Title: title}
		if cols.desc >= 0 {
			entry.Description = t.cell(row, cols.desc)
		}
		idx.entries = append(idx.entries, entry)
		idx.byID[id] = title
	}

	seen := map[string]struct{}{}
	for _, e := range idx.entries {
		if _, ok := seen[e.Title]; ok {
			continue
		}
		seen[e.Title] = struct{}{}
		idx.titles = append(idx.titles, e.Title)
	}
	sort.SliceStable(idx.titles, func(a, b int) bool {
		return strings.ToLower(idx.titles[a]) < strings.ToLower(idx.titles[b])
	})

	docs := make([]string, len(idx.entries))
	for i, e := range idx.entries {
		docs[i] = cleanDescription(plainText(e.Description))
	}
	idx.described = make([]bool, len(docs))
	for i, doc := range docs {
		idx.described[i] = strings.TrimSpace(doc) != ""
	}
	idx.model = fitVectorizer(docs)
	idx.vectors = make([]sparseVector, len(docs))
	for i, doc := range docs {
		idx.vectors[i] = idx.model.transform(doc)
	}

	return idx, nil
}

// Len returns the number of usable catalog rows.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// NameByID resolves a marketplace product id to its catalog title.
func (x *Index) NameByID(id int64) (string, bool) {
	if x == nil {
		return "", false
	}
	title, ok := x.byID[strconv.FormatInt(id, 10)]
	return title, ok
}

// Titles returns the distinct titles sorted case-insensitively. The slice is a copy.
func (x *Index) Titles() []string {
	if x == nil {
		return nil
	}
	return append([]string(nil), x.titles...)
}

// SimilarTitles returns at most k catalog titles resembling query, never query itself.
// Description similarity is used when query has a described catalog row,
// otherwise titles are compared directly.
func (x *Index) SimilarTitles(query string, k int) []string {
	if x == nil || k <= 0 || strings.TrimSpace(query) == "" || len(x.titles) == 0 {
		return []string{}
	}

	if out, ok := x.similarByDescription(query, k); ok {
		return out
	}
	return x.similarByTitle(query, k)
}

func (x *Index) similarByDescription(query string, k int) ([]string, bool) {
	key := titleKey(query)
	row := -1
	for i, e := range x.entries {
		if titleKey(e.Title) == key {
			row = i
			break
		}
	}
	if row < 0 || !x.described[row] {
		return nil, false
	}

	q := x.vectors[row]
	order := make([]int, len(x.entries))
	sims := make([]float64, len(x.entries))
	for i := range x.entries {
		order[i] = i
		sims[i] = cosine(q, x.vectors[i])
	}
	// Equal scores rank later rows first.
	sort.Slice(order, func(a, b int) bool {
		if sims[order[a]] != sims[order[b]] {
			return sims[order[a]] > sims[order[b]]
		}
		return order[a] > order[b]
	})

	queryNorm := normalizeTitle(query)
	out := make([]string, 0, k)
	seen := map[string]struct{}{}
	for _, i := range order {
		title := x.entries[i].Title
		if normalizeTitle(title) == queryNorm {
			continue
		}
		lower := strings.ToLower(title)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, title)
		if len(out) >= k {
			break
		}
	}

	return out, true
}

func (x *Index) similarByTitle(query string, k int) []string {
	queryNorm := normalizeTitle(query)

	type scored struct {
		title string
		score float64
	}
	candidates := make([]scored, 0, len(x.titles))
	for _, t := range x.titles {
		if normalizeTitle(t) == queryNorm {
			continue
		}
		candidates = append(candidates, scored{title: t, score: scoreTitles(query, t)})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	out := make([]string, 0, k)
	seen := map[string]struct{}{}
	for _, c := range candidates {
		key := titleKey(c.title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c.title)
		if len(out) >= k {
			break
		}
	}

	return out
}
