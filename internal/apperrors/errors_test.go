package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := NewFetch("https://example.com/a", 503, errors.New("unavailable"))
	assert.Equal(t, "[fetch] fetch https://example.com/a (status 503): unavailable", err.Error())

	err = NewValidation("submit task", "requests must not be empty")
	assert.Equal(t, "[validation] submit task: requests must not be empty", err.Error())
}

func TestKindThroughWrapping(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := fmt.Errorf("scrape product: %w", NewFetch("https://example.com", 0, base))

	assert.True(t, IsFetch(wrapped))
	assert.False(t, IsRemote(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, Kind(""), KindOf(base))
}

func TestKindHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"parse", NewParse("parse product", "u", nil), IsParse},
		{"auth", NewAuth("u", 401, nil), IsAuth},
		{"remote", NewRemote("video exists", "u", 500, nil), IsRemote},
		{"media", NewMedia("transcode", "/tmp/a.webm", nil), IsMedia},
		{"validation", NewValidation("op", "bad"), IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}
