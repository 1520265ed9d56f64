package catalog

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxVocabulary = 6000

var nonWordExpr = regexp.MustCompile(`[^A-Za-zА-Яа-яЁё0-9\s]`)

// cleanDescription keeps letters, digits and single spaces, lowercased.
func cleanDescription(value string) string {
	value = nonWordExpr.ReplaceAllString(value, " ")
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

func descriptionTerms(cleaned string) []string {
	fields := strings.Fields(cleaned)
	terms := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

type weight struct {
	term  int
	value float64
}

// sparseVector is sorted by term index.
type sparseVector []weight

// vectorizer is a term-frequency times smoothed inverse-document-frequency model
// with L2-normalized rows.
type vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

func fitVectorizer(docs []string) *vectorizer {
	frequency := map[string]int{}
	documentFrequency := map[string]int{}
	for _, doc := range docs {
		seen := map[string]struct{}{}
		for _, term := range descriptionTerms(doc) {
			frequency[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				documentFrequency[term]++
			}
		}
	}

	terms := make([]string, 0, len(frequency))
	for term := range frequency {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) > maxVocabulary {
		sort.SliceStable(terms, func(a, b int) bool {
			return frequency[terms[a]] > frequency[terms[b]]
		})
		terms = terms[:maxVocabulary]
		sort.Strings(terms)
	}

	v := &vectorizer{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(docs))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(documentFrequency[term]))) + 1
	}

	return v
}

func (v *vectorizer) transform(doc string) sparseVector {
	counts := map[int]float64{}
	for _, term := range descriptionTerms(doc) {
		if idx, ok := v.vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	vec := make(sparseVector, 0, len(counts))
	var norm float64
	for idx, tf := range counts {
		w := tf * v.idf[idx]
		norm += w * w
		vec = append(vec, weight{term: idx, value: w})
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].value /= norm
	}
	sort.Slice(vec, func(a, b int) bool { return vec[a].term < vec[b].term })

	return vec
}

// cosine assumes both vectors are L2-normalized.
func cosine(a, b sparseVector) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].term == b[j].term:
			dot += a[i].value * b[j].value
			i++
			j++
		case a[i].term < b[j].term:
			i++
		default:
			j++
		}
	}
	return dot
}
