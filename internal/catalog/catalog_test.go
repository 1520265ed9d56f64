package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ganz677/wb/internal/domain"
)

func perfumeTable() Table {
	return Table{
		Header: []string{"nm_id", "Название", "Описание"},
		Rows: [][]string{
			{"100001", "Rose Noir 50ml", "Роза пачули, тёмный шлейф и древесные ноты"},
			{"100002", "Vanille Intense", "Сладкая ваниль с карамелью"},
			{"100003", "Oud Royal", "Уд, пачули и древесные ноты"},
		},
	}
}

func mustBuild(t *testing.T, table Table) *Index {
	t.Helper()
	idx, err := Build(table)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return idx
}

func TestSimilarTitlesByDescription(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, perfumeTable())

	got := idx.SimilarTitles("Rose Noir 50ml", 2)
	want := []string{"Oud Royal", "Vanille Intense"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSimilarTitlesExcludesQueryAndRespectsK(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, perfumeTable())

	for _, query := range []string{"Rose Noir 50ml", "rose noir 50ML", "Unknown Musk"} {
		for k := 0; k <= 4; k++ {
			got := idx.SimilarTitles(query, k)
			if len(got) > k {
				t.Fatalf("query %q k=%d: got %d titles", query, k, len(got))
			}
			for _, title := range got {
				if normalizeTitle(title) == normalizeTitle(query) {
					t.Fatalf("query %q returned itself", query)
				}
			}
		}
	}
}

func TestSimilarTitlesEmptyInputs(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, perfumeTable())
	if got := idx.SimilarTitles("", 3); len(got) != 0 {
		t.Fatalf("expected empty result for empty query, got %v", got)
	}

	empty := mustBuild(t, Table{Header: []string{"nm_id", "title"}})
	if got := empty.SimilarTitles("Rose Noir", 3); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result for empty catalog, got %v", got)
	}

	var nilIndex *Index
	if got := nilIndex.SimilarTitles("Rose Noir", 3); len(got) != 0 {
		t.Fatalf("expected empty result for nil index, got %v", got)
	}
}

func TestSimilarTitlesTiesRankLaterRowsFirst(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, Table{
		Header: []string{"nm_id", "Название", "Описание"},
		Rows: [][]string{
			{"400001", "Rose", "роза"},
			{"400002", "Alpha", "цитрус"},
			{"400003", "Beta", "ваниль"},
			{"400004", "Gamma", "мускус"},
		},
	})

	got := idx.SimilarTitles("Rose", 3)
	want := []string{"Gamma", "Beta", "Alpha"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SimilarTitles = %v, want %v", got, want)
	}
}

func TestMarkupOnlyDescriptionUsesTitleScore(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, Table{
		Header: []string{"nm_id", "Название", "Описание"},
		Rows: [][]string{
			{"300001", "Amber Night", "<br>"},
			{"300002", "Amber Night Intense", "тёплая амбра"},
			{"300003", "Citrus Day", "цитрус и бергамот"},
			{"300004", "Vetiver Green", "ветивер"},
		},
	})

	if idx.described[0] {
		t.Fatalf("markup-only description must count as empty")
	}
	got := idx.SimilarTitles("Amber Night", 1)
	if !reflect.DeepEqual(got, []string{"Amber Night Intense"}) {
		t.Fatalf("SimilarTitles = %v, want title-based match", got)
	}
}

func TestSimilarTitlesFallsBackToTitleScore(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, Table{
		Header: []string{"id", "title"},
		Rows: [][]string{
			{"1", "Vanilla Sky"},
			{"2", "Oud Royal"},
			{"3", "Vanilla Musk 30 ml"},
			{"4", "vanilla musk 30 ml"},
		},
	})

	got := idx.SimilarTitles("Vanilla Musk Intense", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 titles, got %v", got)
	}
	if !strings.EqualFold(got[0], "Vanilla Musk 30 ml") {
		t.Fatalf("expected closest title first, got %v", got)
	}
	if got[1] != "Vanilla Sky" {
		t.Fatalf("expected case-insensitive duplicates to be dropped, got %v", got)
	}
}

func TestNameByIDAndTitles(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, perfumeTable())

	title, ok := idx.NameByID(100002)
	if !ok || title != "Vanille Intense" {
		t.Fatalf("unexpected lookup result %q %v", title, ok)
	}
	if _, ok := idx.NameByID(42); ok {
		t.Fatalf("expected miss for unknown id")
	}

	want := []string{"Oud Royal", "Rose Noir 50ml", "Vanille Intense"}
	if got := idx.Titles(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildSkipsIncompleteRows(t *testing.T) {
	t.Parallel()

	idx := mustBuild(t, Table{
		Header: []string{"Артикул WB", "Наименование"},
		Rows: [][]string{
			{"1", "First"},
			{"", "No id"},
			{"3", "  "},
			{"4"},
		},
	})
	if idx.Len() != 1 {
		t.Fatalf("expected 1 usable row, got %d", idx.Len())
	}
}

func TestDetectColumnsByInference(t *testing.T) {
	t.Parallel()

	table := Table{Header: []string{"col_a", "col_b", "col_c"}}
	for i := 0; i < 12; i++ {
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("%d", 15000000+i),
			fmt.Sprintf("Armoule Fleur %d парфюмерная вода для неё", i),
			"роза",
		})
	}

	cols, err := detectColumns(table)
	if err != nil {
		t.Fatalf("detect columns: %v", err)
	}
	if cols.id != 0 || cols.title != 1 || cols.desc != 2 {
		t.Fatalf("unexpected columns %+v", cols)
	}
}

func TestDetectColumnsMissingID(t *testing.T) {
	t.Parallel()

	_, err := Build(Table{
		Header: []string{"title"},
		Rows:   [][]string{{"Rose"}},
	})

	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadCSVStripsMarkup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.csv")
	content := "nm id,product name,description\n" +
		"200001,Amber Night,<p>Тёплая <b>амбра</b> и смолы</p>\n" +
		"200002,Citrus Day,<p>Цитрус и бергамот</p>\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	idx, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", idx.Len())
	}
	if _, ok := idx.model.vocabulary["амбра"]; !ok {
		t.Fatalf("expected markup to be stripped before vectorizing")
	}
	if _, ok := idx.model.vocabulary["p"]; ok {
		t.Fatalf("tag names leaked into vocabulary")
	}
}

func TestLoadWithoutPath(t *testing.T) {
	t.Parallel()

	_, err := Load("  ")
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Rose Noir 50ml":         "rose noir",
		"Rose  Noir 50 ML":       "rose noir",
		"Масло 10 мл, 30мл":      "масло ,",
		"Vanille Intense":        "vanille intense",
		"Oud 2024 Edition 100ml": "oud 2024 edition",
	}
	for in, want := range cases {
		if got := normalizeTitle(in); got != want {
			t.Fatalf("normalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVectorizerIDF(t *testing.T) {
	t.Parallel()

	v := fitVectorizer([]string{"роза уд", "роза", ""})
	rose := v.idf[v.vocabulary["роза"]]
	oud := v.idf[v.vocabulary["уд"]]
	if !(oud > rose) {
		t.Fatalf("rarer term must weigh more: rose=%f oud=%f", rose, oud)
	}

	vec := v.transform("роза уд")
	if c := cosine(vec, vec); c < 0.999 || c > 1.001 {
		t.Fatalf("expected unit self-similarity, got %f", c)
	}
}
