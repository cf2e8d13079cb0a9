package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id       string
	viewID   int
	userName string
	closed   bool
	lines    []string
}

func (f *fakeSession) ID() string       { return f.id }
func (f *fakeSession) ViewID() int      { return f.viewID }
func (f *fakeSession) UserName() string { return f.userName }
func (f *fakeSession) HandleInput(line string) error {
	f.lines = append(f.lines, line)
	return nil
}
func (f *fakeSession) IsCloseFrame() bool                            { return f.closed }
func (f *fakeSession) IsActive() bool                                { return !f.closed }
func (f *fakeSession) SendTextFrame(line string) error               { return nil }
func (f *fakeSession) SendBinaryFrame(header string, payload []byte) error { return nil }

func TestInsertLookupErase(t *testing.T) {
	r := New(nil)
	s := &fakeSession{id: "a", viewID: 1}
	r.Insert(s)

	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Erase("a")
	_, ok = r.Lookup("a")
	assert.False(t, ok)
}

func TestFindByViewID(t *testing.T) {
	r := New(nil)
	r.Insert(&fakeSession{id: "a", viewID: 1})
	r.Insert(&fakeSession{id: "b", viewID: 2})

	s, ok := r.FindByViewID(2)
	require.True(t, ok)
	assert.Equal(t, "b", s.ID())

	_, ok = r.FindByViewID(99)
	assert.False(t, ok)
}

func TestTryPurgeRemovesClosedSessionsAndSignalsEmpty(t *testing.T) {
	emptied := false
	r := New(func() { emptied = true })

	r.Insert(&fakeSession{id: "a", viewID: 1, closed: true})
	r.Insert(&fakeSession{id: "b", viewID: 2, closed: false})

	retained, err := r.TryPurge()
	require.NoError(t, err)
	assert.Equal(t, 1, retained)
	assert.False(t, emptied)
	assert.Equal(t, 1, r.Count())

	r2 := New(func() { emptied = true })
	r2.Insert(&fakeSession{id: "c", viewID: 3, closed: true})
	retained, err = r2.TryPurge()
	require.NoError(t, err)
	assert.Equal(t, 0, retained)
	assert.True(t, emptied)
}

func TestEachVisitsEverySession(t *testing.T) {
	r := New(nil)
	r.Insert(&fakeSession{id: "a", viewID: 1})
	r.Insert(&fakeSession{id: "b", viewID: 2})

	seen := map[string]bool{}
	r.Each(func(s ChildSession) {
		seen[s.ID()] = true
	})
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}
