package utils

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

var errNotFound = errors.New("not found")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewBreaker("test", nil)
	boom := errors.New("upstream unavailable")

	for i := 0; i < 6; i++ {
		assert.ErrorIs(t, Guard(cb, func() error { return boom }), boom)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.ErrorIs(t, Guard(cb, func() error { return nil }), gobreaker.ErrOpenState)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	cb := NewBreaker("test", func(err error) bool { return errors.Is(err, errNotFound) })

	for i := 0; i < 20; i++ {
		assert.ErrorIs(t, Guard(cb, func() error { return errNotFound }), errNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
