// Package reply holds the deterministic parts of answer composition: the
// template path for reviews without text, recommendation picking and the
// clean-up applied to generated answers.
package reply

import (
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/ganz677/wb/internal/domain"
)

const (
	// MaxRecommendations bounds the titles suggested in a single reply.
	MaxRecommendations = 3
	defaultProduct     = "аромат"
	recommendationMark = "🔹 "
)

var noTextMarkers = []string{
	strings.ToLower(domain.FeedbackNoTextMarker),
	strings.ToLower(domain.QuestionNoTextMarker),
}

var noTextVariants = []string{
	"Спасибо за доверие! Если вам близок характер «{product}», загляните в профиль {brand}: там ждут новые истории ароматов.",
	"Благодарим за высокую оценку! Если настроение «{product}» откликнулось, посмотрите и другие ароматы {brand}.",
	"Спасибо за 5★! Раз вы полюбили «{product}», в профиле {brand} найдётся ещё несколько настроений.",
	"Рады вашей оценке! Если «{product}» пришёлся по душе, загляните к {brand} за вдохновением.",
	"Спасибо! Если понравился характер «{product}», у {brand} есть и другие истории ароматов.",
	"Благодарим! Если «{product}» стал вашим настроением, присмотритесь к другим ароматам {brand}.",
	"Спасибо за оценку! Если «{product}» вам близок, загляните к {brand} за новыми открытиями.",
	"Признательны за 5★! Если «{product}» понравился, в профиле {brand} вас ждут родственные настроения.",
}

// IsNoText reports whether a feedback carries no usable text: empty, a
// placeholder sentence, or at most two characters.
func IsNoText(kind domain.Kind, text string) bool {
	if kind != domain.KindFeedback {
		return false
	}

	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	for _, marker := range noTextMarkers {
		if strings.HasPrefix(t, marker) {
			return true
		}
	}
	return utf8.RuneCountInString(t) <= 2
}

// VariantIndex picks a template deterministically from the product title.
func VariantIndex(product string) int {
	key := strings.ToLower(strings.TrimSpace(product))
	if key == "" {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(len(noTextVariants)))
}

// RenderNoText builds the templated thank-you reply with bullet recommendations.
func RenderNoText(product, brand string, recommendations []string) string {
	p := strings.TrimSpace(product)
	name := p
	if name == "" {
		name = defaultProduct
	}

	lead := strings.NewReplacer("{product}", name, "{brand}", brand).Replace(noTextVariants[VariantIndex(p)])

	lines := []string{lead}
	for _, r := range recommendations {
		lines = append(lines, recommendationMark+r)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// PickRecommendations fills up to k titles from preferred first, then from the
// pool, skipping excluded titles and case-insensitive repeats.
func PickRecommendations(preferred, pool, exclude []string, k int) []string {
	excluded := lowerSet(exclude)
	out := make([]string, 0, k)
	seen := map[string]struct{}{}

	push := func(titles []string) {
		for _, t := range titles {
			if len(out) >= k {
				return
			}
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if _, skip := excluded[key]; skip {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}

	push(preferred)
	push(pool)
	return out
}

// Dedup trims, drops blanks and case-insensitive repeats, keeping order. limit <= 0 means unbounded.
func Dedup(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		s := strings.TrimSpace(item)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if s := strings.ToLower(strings.TrimSpace(item)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
