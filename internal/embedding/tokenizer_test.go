package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP 102 after two words, got %d", ids[3])
	}
	if attn[0] != 1 || attn[4] != 0 {
		t.Errorf("attention mask = %v", attn)
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  Pizza-King,  Food & Drinks ")
	want := []string{"pizza", "king", "food", "drinks"}
	if len(words) != len(want) {
		t.Fatalf("got %v", words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("words[%d] = %q, want %q", i, words[i], want[i])
		}
	}
	if len(SplitWords("")) != 0 {
		t.Error("empty string should give no words")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h < 0 {
		t.Error("hash should be non-negative")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}
