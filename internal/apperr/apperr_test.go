package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKind(t *testing.T) {
	err := Validation("dataset.append", "title is required")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "dataset.append: title is required", err.Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := Persist("dataset.persist", io.ErrShortWrite)
	assert.True(t, errors.Is(err, ErrPersist))
	assert.True(t, errors.Is(err, io.ErrShortWrite))
	assert.Contains(t, err.Error(), "persist error")
	assert.Contains(t, err.Error(), io.ErrShortWrite.Error())
}

func TestKindOfThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("retrain: %w", Training("model.train", "dataset is empty", nil))
	assert.Equal(t, ErrTraining, KindOf(wrapped))
	assert.Nil(t, KindOf(errors.New("plain")))
	assert.Equal(t, ErrDataCorrupt, KindOf(DataCorrupt("load", io.ErrUnexpectedEOF)))
	assert.Equal(t, ErrEncoding, KindOf(Encoding("encode", io.EOF)))
	assert.Equal(t, ErrNotFound, KindOf(NotFound("recommend", "listing %d", 9)))
}
