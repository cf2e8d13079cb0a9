package tilequeue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	q.Put("a")
	q.Put("b")
	q.Put("c")
	assert.Equal(t, "a", q.Get())
	assert.Equal(t, "b", q.Get())
	assert.Equal(t, "c", q.Get())
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := New()
	done := make(chan string, 1)
	go func() { done <- q.Get() }()

	select {
	case <-done:
		t.Fatal("Get returned before any Put")
	case <-time.After(20 * time.Millisecond):
	}

	q.Put("later")
	select {
	case got := <-done:
		assert.Equal(t, "later", got)
	case <-time.After(time.Second):
		t.Fatal("Get never woke up after Put")
	}
}

func TestCloseEnqueuesEOF(t *testing.T) {
	q := New()
	q.Put("first")
	q.Close()
	require.Equal(t, "first", q.Get())
	require.Equal(t, EOF, q.Get())

	// Put after Close is a no-op.
	q.Put("dropped")
	q.Close()
}

func TestCursorPositionRoundTrip(t *testing.T) {
	q := New()
	_, ok := q.CursorPosition(1, 0)
	assert.False(t, ok)

	q.UpdateCursorPosition(1, 0, 10, 20, 30, 40)
	c, ok := q.CursorPosition(1, 0)
	require.True(t, ok)
	assert.Equal(t, Cursor{X: 10, Y: 20, Width: 30, Height: 40}, c)

	q.RemoveCursorPosition(1)
	_, ok = q.CursorPosition(1, 0)
	assert.False(t, ok)
}
