package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabora-online/kitworker/internal/engine/enginefake"
	"github.com/collabora-online/kitworker/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T) (*Worker, *transport.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		clientSide.Close()
	})

	w := New(discardLogger(), transport.New(serverSide), enginefake.New(), "/jail", nil)
	return w, transport.New(clientSide)
}

func TestHandleSessionFirstMessageCreatesDocument(t *testing.T) {
	w, _ := newTestWorker(t)

	docKey := url.QueryEscape("file:///test.odt")
	err := w.dispatch("session a1 " + docKey)
	require.NoError(t, err)

	w.mu.Lock()
	doc := w.doc
	w.mu.Unlock()
	require.NotNil(t, doc)
	assert.Equal(t, "file:///test.odt", doc.URL())
	assert.Equal(t, 1, w.sessions.Count())
}

func TestHandleSessionSecondMessageValidatesDocKey(t *testing.T) {
	w, _ := newTestWorker(t)

	docKey := url.QueryEscape("file:///test.odt")
	require.NoError(t, w.dispatch("session a1 "+docKey))

	otherKey := url.QueryEscape("file:///other.odt")
	err := w.dispatch("session a2 " + otherKey)
	assert.Error(t, err)
}

func TestDispatchEnqueuesTileMessagesVerbatim(t *testing.T) {
	w, _ := newTestWorker(t)

	require.NoError(t, w.dispatch("tile part=0 width=1 height=1 tileposx=0 tileposy=0 tilewidth=1 tileheight=1"))
	got := w.queue.Get()
	assert.Contains(t, got, "tile part=0")
}

func TestCanDiscardAfterLastSessionPurged(t *testing.T) {
	w, _ := newTestWorker(t)

	docKey := url.QueryEscape("file:///test.odt")
	require.NoError(t, w.dispatch("session a1 "+docKey))
	assert.False(t, w.canDiscard())

	s, ok := w.sessions.Lookup("a1")
	require.True(t, ok)
	require.NoError(t, s.HandleInput("disconnect"))

	assert.True(t, w.canDiscard())
}

// TestChildDisconnectThroughPumpErasesSessionAndUnloadsView drives the real
// production path: a "child-<viewId> disconnect" message dispatched into
// the tile queue, consumed by the Document's own pump goroutine, must erase
// the session synchronously (not merely mark it close-framed) and tear down
// its view, so a racing child-<viewId> message sent immediately afterward
// finds no session to deliver into.
func TestChildDisconnectThroughPumpErasesSessionAndUnloadsView(t *testing.T) {
	w, _ := newTestWorker(t)

	docKey := url.QueryEscape("file:///test.odt")
	require.NoError(t, w.dispatch("session a1 "+docKey))

	w.mu.Lock()
	doc := w.doc
	w.mu.Unlock()
	require.NotNil(t, doc)
	s, ok := w.sessions.Lookup("a1")
	require.True(t, ok)
	viewID := s.ViewID()
	require.Equal(t, 1, doc.ClientViews())

	require.NoError(t, w.dispatch(fmt.Sprintf("child-%d disconnect", viewID)))

	require.Eventually(t, func() bool {
		_, stillPresent := w.sessions.Lookup("a1")
		return !stillPresent
	}, 2*time.Second, 10*time.Millisecond, "session was never erased from the registry")

	assert.Equal(t, 0, doc.ClientViews())
	assert.True(t, w.canDiscard())
}

func TestAlertAllSessionsBroadcastsToEverySession(t *testing.T) {
	w, supervisor := newTestWorker(t)

	docKey := url.QueryEscape("file:///test.odt")
	require.NoError(t, w.dispatch("session a1 "+docKey))

	done := make(chan struct{})
	var msg transport.Message
	go func() {
		m, err := supervisor.ReadMessage()
		if err == nil {
			msg = m
		}
		close(done)
	}()

	w.AlertAllSessions("load", "failure")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
	assert.Contains(t, msg.Line, "errortoall: cmd=load kind=failure")
}

func TestRegisterSendsChildPidHandshake(t *testing.T) {
	w, supervisor := newTestWorker(t)
	w.SetHandshakeVersion(`{"ProductName":"fake"}`)

	done := make(chan struct{})
	var msg transport.Message
	go func() {
		m, err := supervisor.ReadMessage()
		if err == nil {
			msg = m
		}
		close(done)
	}()

	require.NoError(t, w.Register(4242))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for registration handshake")
	}
	assert.Contains(t, msg.Line, "child pid=4242")
	assert.Contains(t, msg.Line, "version=")
}

// TestRunExitsWithinOnePurgeCycleAfterDisconnect drives Run() over the
// actual wire (scenario S6): one session opens, then disconnects via the
// real "child-<viewId> disconnect" control message, and nothing further
// arrives. Run must notice canDiscard() on its own idle poll tick and
// return, rather than hang in a blocking ReadMessage with no message left
// to wake it.
func TestRunExitsWithinOnePurgeCycleAfterDisconnect(t *testing.T) {
	w, supervisor := newTestWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	docKey := url.QueryEscape("file:///test.odt")
	require.NoError(t, supervisor.SendText("session a1 "+docKey))

	var viewID int
	require.Eventually(t, func() bool {
		s, ok := w.sessions.Lookup("a1")
		if !ok {
			return false
		}
		viewID = s.ViewID()
		return true
	}, 2*time.Second, 10*time.Millisecond, "session a1 was never created")

	require.NoError(t, supervisor.SendText(fmt.Sprintf("child-%d disconnect", viewID)))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit within one purge cycle after disconnect")
	}
}

func TestDispatchUnknownTokenDiscardsOnlyWhenDiscardable(t *testing.T) {
	w, _ := newTestWorker(t)

	require.NoError(t, w.dispatch("shutdown"))
	assert.False(t, w.terminate.Load())

	docKey := url.QueryEscape("file:///test.odt")
	require.NoError(t, w.dispatch("session a1 "+docKey))
	s, ok := w.sessions.Lookup("a1")
	require.True(t, ok)
	require.NoError(t, s.HandleInput("disconnect"))

	require.NoError(t, w.dispatch("shutdown"))
	assert.True(t, w.terminate.Load())
}
