// Package worker implements the process-wide Worker lifecycle and control
// loop described in spec.md §4.6, §5, and §9's "explicit lifecycle" design
// note: start -> build-jail -> engine-init -> serve(Document) -> exit. The
// Document itself is owned by the Worker, created by the first "session"
// message and passed by reference; the
// termination flag and signal-handler mutex are the only process-wide
// state, touched only at well-defined boundaries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/collabora-online/kitworker/internal/document"
	"github.com/collabora-online/kitworker/internal/engine"
	"github.com/collabora-online/kitworker/internal/metrics"
	"github.com/collabora-online/kitworker/internal/session"
	"github.com/collabora-online/kitworker/internal/tilequeue"
	"github.com/collabora-online/kitworker/internal/transport"
)

// idlePollInterval bounds how long Run blocks in ReadMessage before
// falling through to re-check canDiscard(), the Go-native analogue of the
// original's SocketProcessor idle-tick predicate (spec.md §4.6, "on every
// iteration (including idle), poll canDiscard()").
const idlePollInterval = 500 * time.Millisecond

// Worker owns the single Document a process hosts for its lifetime, the
// control connection to the supervisor, and the process-wide cancellation
// state spec.md §3 assigns to the Worker rather than to any component.
type Worker struct {
	logger *slog.Logger
	conn   *transport.Conn

	jailPath string
	metrics  *metrics.Collectors
	office   engine.Office

	sessions *session.Registry
	queue    *tilequeue.Queue

	mu  sync.Mutex
	doc *document.Document

	// terminate is set either by a discardable control-loop iteration or
	// by the session registry's onEmptyAfterPurge hook (S6/S7: last
	// session closes -> next purge sees zero -> exit).
	terminate atomic.Bool
	// hadSession gates canDiscard(): a worker with no Document yet, or one
	// that has never seen a session, must never discard itself just
	// because the registry is currently empty.
	hadSession atomic.Bool

	// signalMu is held across clean shutdown to block a second termination
	// signal from racing the first one's cleanup, per spec.md §5.
	signalMu sync.Mutex

	// EnableRenderIDs is forwarded to every Document this worker creates.
	EnableRenderIDs bool
	// VersionHandshakeQuery holds the "&version=..." handshake suffix, set by
	// SetHandshakeVersion before the registration handshake is sent. Empty
	// when --query-version was not requested.
	VersionHandshakeQuery string
}

// New constructs a Worker bound to conn (the supervisor control channel)
// and office (the pre-initialized engine binding). jailPath is recorded on
// the Worker; jailedURL does not use it and passes each docKey through
// unchanged.
func New(logger *slog.Logger, conn *transport.Conn, office engine.Office, jailPath string, m *metrics.Collectors) *Worker {
	w := &Worker{
		logger:   logger,
		conn:     conn,
		office:   office,
		jailPath: jailPath,
		metrics:  m,
		queue:    tilequeue.New(),
	}
	w.sessions = session.New(w.onSessionsEmptied)
	return w
}

func (w *Worker) onSessionsEmptied() {
	if w.hadSession.Load() {
		w.logger.Info("worker: last session purged, marking for exit")
		w.terminate.Store(true)
	}
}

// canDiscard reports whether the worker has nothing left to serve: a
// Document exists, at least one session has ever registered, and the
// registry is presently empty of live sessions.
func (w *Worker) canDiscard() bool {
	if w.terminate.Load() {
		return true
	}
	w.mu.Lock()
	hasDoc := w.doc != nil
	w.mu.Unlock()
	if !hasDoc || !w.hadSession.Load() {
		return false
	}
	retained, err := w.sessions.TryPurge()
	if err != nil {
		return false
	}
	return retained == 0
}

// AlertAllSessions implements the errortoall broadcast supplemented from
// LOOLKit.cpp's Util::alertAllUsers: a worker-wide error distinct from the
// per-session error: frame, sent regardless of view state.
func (w *Worker) AlertAllSessions(cmd, kind string) {
	line := fmt.Sprintf("errortoall: cmd=%s kind=%s", cmd, kind)
	w.sessions.Each(func(s session.ChildSession) {
		if err := s.SendTextFrame(line); err != nil {
			w.logger.Warn("worker: alertAllSessions send failed", "session", s.ID(), "error", err)
		}
	})
}

// SetHandshakeVersion stores version in VersionHandshakeQuery as the
// "&version=<url-encoded>" suffix Register appends to the handshake, the
// --query-version behavior from lokit_main this module carries forward.
func (w *Worker) SetHandshakeVersion(version string) {
	w.VersionHandshakeQuery = "&version=" + url.QueryEscape(version)
}

// Register sends the worker's registration handshake to the supervisor:
// "child pid=<pid>" plus the optional version query set by
// SetHandshakeVersion, the Go-native analogue of the original's
// NEW_CHILD_URI WebSocket upgrade request. Must be called once, before
// Run, after the control connection is dialed.
func (w *Worker) Register(pid int) error {
	return w.conn.SendText(fmt.Sprintf("child pid=%d%s", pid, w.VersionHandshakeQuery))
}

// Run drives the control loop until EOF, a discard condition, or a fatal
// transport error. It implements spec.md §4.6's dispatch table. Canceling
// ctx closes the control connection, unblocking a pending ReadMessage so
// the loop observes EOF and shuts down.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.conn.Close()
	}()

	for {
		if w.canDiscard() {
			return w.shutdown()
		}

		if err := w.conn.SetReadDeadline(time.Now().Add(idlePollInterval)); err != nil {
			w.logger.Warn("worker: set read deadline failed", "error", err)
		}

		msg, err := w.conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			w.logger.Info("worker: control connection closed", "error", err)
			return w.shutdown()
		}

		if err := w.dispatch(msg.Line); err != nil {
			w.logger.Warn("worker: dispatch failed", "message", msg.Line, "error", err)
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (w *Worker) dispatch(line string) error {
	word, rest := splitFirst(line)
	switch {
	case word == "session":
		return w.handleSession(rest)
	case word == "tile" || word == "tilecombine" || word == "canceltiles" || strings.HasPrefix(word, "child-"):
		w.queue.Put(line)
		return nil
	default:
		if w.canDiscard() {
			w.terminate.Store(true)
			return nil
		}
		w.logger.Info("worker: dropping unrecognized control message", "message", line)
		return nil
	}
}

// handleSession implements the "session <id> <urlEncodedDocKey>" branch:
// construct the Document on the first such message, validate the URL on
// every subsequent one, then create the session.
func (w *Worker) handleSession(rest string) error {
	sessionID, docKeyEncoded := splitFirst(rest)
	if sessionID == "" || docKeyEncoded == "" {
		return fmt.Errorf("malformed session message %q", rest)
	}
	docKey, err := url.QueryUnescape(docKeyEncoded)
	if err != nil {
		return fmt.Errorf("decode docKey: %w", err)
	}

	w.mu.Lock()
	doc := w.doc
	w.mu.Unlock()

	if doc == nil {
		doc = document.New(w.logger, w.office, docKey, w.jailedURL(docKey), docKey, w.sessions, w.queue)
		doc.EnableRenderIDs = w.EnableRenderIDs
		doc.Metrics = w.metrics
		w.mu.Lock()
		w.doc = doc
		w.mu.Unlock()
		go doc.Pump()
	} else if doc.URL() != docKey {
		return fmt.Errorf("session %s: docKey %q does not match existing document %q", sessionID, docKey, doc.URL())
	}

	// A bare "session" message carries no username or password; the
	// document is loaded (and a view created) on behalf of this session
	// immediately,
	// matching the original's eager per-session onLoad call rather than
	// deferring to a later child-<viewId> command that has no session-id
	// route to key off of before a view exists.
	result := doc.Load(nil, "")
	viewID := result.ViewID
	if result.Err != nil {
		viewID = -1
		w.logger.Warn("worker: document load failed for session", "session", sessionID, "kind", result.Err.Kind)
	}

	child := session.NewChild(sessionID, viewID, "", w.conn, func(line string) error {
		return nil
	})
	w.sessions.Insert(child)
	w.hadSession.Store(true)
	if w.metrics != nil {
		w.metrics.ActiveSessions.Set(float64(w.sessions.Count()))
	}

	if result.Err != nil {
		return child.SendTextFrame(fmt.Sprintf("error: cmd=load kind=%s", result.Err.Kind))
	}
	return nil
}

// jailedURL builds the absolute in-jail load path for a document key. The
// worker's donor filesystem places every uploaded document under the jail
// root by its own path, so within the jail the docKey (already an absolute
// or file:// URL from the supervisor) is used unchanged; kept as its own
// method because a future revision may need to remap it.
func (w *Worker) jailedURL(docKey string) string {
	return docKey
}

// shutdown acquires the signal mutex (blocking a racing termination
// signal), stops the Document's pump, and returns nil for a clean exit
// (spec.md §6.5 EXIT_OK).
func (w *Worker) shutdown() error {
	w.signalMu.Lock()
	defer w.signalMu.Unlock()

	w.mu.Lock()
	doc := w.doc
	w.mu.Unlock()
	if doc != nil {
		doc.Terminate()
	}
	w.logger.Info("worker: shutting down")
	return nil
}

// HandleSignal is the entry point an installed os/signal handler calls. It
// takes the same signal mutex Run's shutdown path uses, so a signal
// delivered mid-shutdown blocks until the orderly path finishes rather than
// racing it.
func (w *Worker) HandleSignal() {
	w.signalMu.Lock()
	defer w.signalMu.Unlock()
	w.terminate.Store(true)
	w.queue.Close()
	os.Exit(0)
}

func splitFirst(s string) (head, rest string) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}
