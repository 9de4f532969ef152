package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "worker")
		panic("boom")
	})

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["panic"])
	assert.Equal(t, "worker", entries[0]["context"])
	assert.NotEmpty(t, entries[0]["stack"])
}

func TestRecoverPanicWithCallback(t *testing.T) {
	logger := NewNopLogger()

	called := false
	func() {
		defer RecoverPanicWithCallback(logger, "worker", func() { called = true })
		panic("boom")
	}()
	assert.True(t, called)

	called = false
	func() {
		defer RecoverPanicWithCallback(logger, "worker", func() { called = true })
	}()
	assert.False(t, called, "callback only runs after a panic")
}

func TestRecoverToError(t *testing.T) {
	sentinel := errors.New("bad handler")

	run := func(v interface{}) (err error) {
		defer RecoverToError(NewNopLogger(), "handler", &err)
		if v != nil {
			panic(v)
		}
		return nil
	}

	assert.NoError(t, run(nil))
	assert.EqualError(t, run("boom"), "panic: boom")
	assert.ErrorIs(t, run(sentinel), sentinel)
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover(42), "panic: 42")
}
