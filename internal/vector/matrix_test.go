package vector

import (
	"bytes"
	"errors"
	"testing"
)

func TestMatrixRoundTrip(t *testing.T) {
	rows := [][]float32{{1, 2, 3}, {-1, 0.5, 0}}
	var buf bytes.Buffer
	if err := WriteMatrix(&buf, 3, rows); err != nil {
		t.Fatal(err)
	}
	dims, got, err := ReadMatrix(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if dims != 3 || len(got) != 2 || got[1][1] != 0.5 {
		t.Errorf("got dims=%d rows=%v", dims, got)
	}
}

func TestReadMatrix_Corrupt(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteMatrix(&buf, 2, [][]float32{{1, 2}, {3, 4}})
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, _, err := ReadMatrix(bytes.NewReader(truncated)); !errors.Is(err, ErrBadMatrix) {
		t.Errorf("truncated: %v", err)
	}
	if _, _, err := ReadMatrix(bytes.NewReader([]byte("nope"))); !errors.Is(err, ErrBadMatrix) {
		t.Errorf("foreign: %v", err)
	}
	if err := WriteMatrix(&bytes.Buffer{}, 2, [][]float32{{1}}); err == nil {
		t.Error("expected ragged row error")
	}
}
