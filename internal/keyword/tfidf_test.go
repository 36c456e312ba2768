package keyword

import (
	"errors"
	"math"
	"testing"
)

var corpus = []string{
	"Pizza King Food Wood fired pizza delivery",
	"Burger Hub Food Grilled burgers and fries",
	"Tea Time Beverage Herbal tea lounge",
	"Coffee Corner Beverage Espresso coffee bar",
}

func fit(t *testing.T, docs []string, opts ...VectorizerOption) (*Vectorizer, *Matrix) {
	t.Helper()
	v := NewVectorizer(opts...)
	m, err := v.Fit(docs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return v, m
}

func TestAnalyze_StemsAndDropsStopWords(t *testing.T) {
	terms, err := Analyze("The pizzas and the Burgers", 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pizza", "burger"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v", terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("terms[%d] = %q, want %q", i, terms[i], want[i])
		}
	}
}

func TestAnalyze_Bigrams(t *testing.T) {
	terms, err := Analyze("wood fired pizza", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 5 {
		t.Fatalf("terms = %v", terms)
	}
	if terms[3] != "wood fire" && terms[3] != "wood fired" {
		t.Errorf("first bigram = %q", terms[3])
	}
}

func TestFit_RowsFollowInputOrder(t *testing.T) {
	v, m := fit(t, corpus)
	if m.Len() != len(corpus) {
		t.Fatalf("rows = %d", m.Len())
	}
	scores, err := v.Score("pizza", m)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] <= 0 {
		t.Errorf("pizza row scored %v", scores[0])
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] != 0 {
			t.Errorf("row %d shares no terms but scored %v", i, scores[i])
		}
	}
}

func TestScore_Range(t *testing.T) {
	v, m := fit(t, corpus)
	for _, q := range []string{"pizza", "coffee tea", "food beverage", "Pizza King Food Wood fired pizza delivery", "submarine"} {
		scores, err := v.Score(q, m)
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range scores {
			if s < 0 || s > 1 || math.IsNaN(s) {
				t.Errorf("Score(%q)[%d] = %v out of range", q, i, s)
			}
		}
	}
	exact, _ := v.Score(corpus[0], m)
	if math.Abs(exact[0]-1) > 1e-6 {
		t.Errorf("identical document scored %v, want 1", exact[0])
	}
}

func TestFit_VocabularyOnlyFromInput(t *testing.T) {
	v, m := fit(t, corpus)
	scores, _ := v.Score("sushi", m)
	for _, s := range scores {
		if s != 0 {
			t.Fatal("unknown term produced a score")
		}
	}
	if _, ok := v.Vocabulary["sushi"]; ok {
		t.Error("sushi in vocabulary")
	}
	v2, m2 := fit(t, []string{"sushi bar"})
	if _, ok := v2.Vocabulary["pizza"]; ok {
		t.Error("refit kept old vocabulary")
	}
	if m2.Len() != 1 {
		t.Errorf("rows = %d", m2.Len())
	}
}

func TestFit_MaxFeatures(t *testing.T) {
	v, _ := fit(t, corpus, WithMaxFeatures(3), WithNGramMax(1))
	if len(v.Vocabulary) != 3 || len(v.IDF) != 3 {
		t.Errorf("vocabulary size = %d", len(v.Vocabulary))
	}
	// Six stems occur twice; "king" occurs once and cannot make the cut.
	if _, ok := v.Vocabulary["king"]; ok {
		t.Errorf("vocabulary %v kept a term seen once", v.Vocabulary)
	}
}

func TestFit_Empty(t *testing.T) {
	if _, err := NewVectorizer().Fit(nil); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("Fit(nil) error = %v", err)
	}
}

func TestSparseVector_Dot(t *testing.T) {
	a := SparseVector{Indices: []int32{0, 2, 5}, Values: []float32{1, 2, 3}}
	b := SparseVector{Indices: []int32{2, 3, 5}, Values: []float32{4, 1, 1}}
	if got := a.Dot(b); got != 11 {
		t.Errorf("Dot = %v, want 11", got)
	}
}

func TestSpellChecker(t *testing.T) {
	v, _ := fit(t, corpus)
	sc, err := NewSpellChecker(v)
	if err != nil {
		t.Fatal(err)
	}
	got, changed := sc.Correct("piza delivry")
	if !changed || got != "pizza delivery" {
		t.Errorf("Correct = %q, %v", got, changed)
	}
	if _, changed := sc.Correct("pizza"); changed {
		t.Error("known word corrected")
	}
	if _, changed := sc.Correct("xyzzyq"); changed {
		t.Error("unrelated word corrected")
	}
}

func TestDamerauDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "ab", 2},
		{"pizza", "pizza", 0},
		{"piza", "pizza", 1},
		{"pizza", "pziza", 1},
		{"kitten", "sitting", 3},
		{"café", "cafe", 1},
	}
	for _, c := range cases {
		if got := DamerauDistance(c.a, c.b); got != c.want {
			t.Errorf("DamerauDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
