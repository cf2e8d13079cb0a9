package document

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collabora-online/kitworker/internal/session"
	"github.com/collabora-online/kitworker/internal/tilequeue"
)

// Pump is the single-threaded consumer of the TileQueue described in
// spec.md §4.5. It runs on its own goroutine for the Document's lifetime
// and returns when it dequeues tilequeue.EOF.
func (d *Document) Pump() {
	for {
		if d.Terminating() {
			return
		}
		msg := d.queue.Get()
		if msg == tilequeue.EOF {
			return
		}
		d.dispatch(msg)
	}
}

func (d *Document) observeRender(kind, outcome string, dur time.Duration) {
	if d.Metrics != nil {
		d.Metrics.ObserveRender(kind, outcome, dur)
		d.Metrics.TileQueueDepth.Set(float64(d.queue.Len()))
	}
}

func (d *Document) dispatch(msg string) {
	word, rest := splitFirst(msg)
	switch {
	case word == "tile":
		d.handleTile(rest)
	case word == "tilecombine":
		d.handleTileCombine(rest)
	case word == "canceltiles":
		d.logger.Debug("document: canceltiles is not implemented, accepted as a no-op")
	case strings.HasPrefix(word, "child-"):
		d.handleChild(strings.TrimPrefix(word, "child-"), rest)
	case word == "callback":
		d.handleCallbackMessage(rest)
	default:
		d.logger.Warn("document: dropping unrecognized pump message", "message", msg)
	}
}

func splitFirst(s string) (head, rest string) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// canRender reports whether the engine state allows a paint attempt right
// now, per spec.md §4.5's "a render attempted before loKitDocument exists
// or when getViewsCount() == 0 logs and drops" rule.
func (d *Document) canRender() bool {
	d.engineMu.Lock()
	defer d.engineMu.Unlock()
	if d.loKitDocument == nil {
		return false
	}
	return d.loKitDocument.GetViewsCount() > 0
}

func (d *Document) handleTile(tokens string) {
	if !d.canRender() {
		d.logger.Warn("document: dropping tile request, no renderable view")
		return
	}
	t, err := ParseTileDesc(tokens)
	if err != nil {
		d.logger.Warn("document: bad tile request", "error", err)
		return
	}

	start := time.Now()
	d.engineMu.Lock()
	png, err := paintSingleTile(d.loKitDocument, t)
	d.engineMu.Unlock()
	if err != nil {
		d.observeRender("tile", "error", time.Since(start))
		d.logger.Error("document: tile render failed", "error", err)
		return
	}
	d.observeRender("tile", "ok", time.Since(start))

	t.ImgSize = len(png)
	if d.EnableRenderIDs {
		t.RenderID = uuid.NewString()
	}
	d.broadcastBinary(t.Serialize(), png)
}

func (d *Document) handleTileCombine(tokens string) {
	if !d.canRender() {
		d.logger.Warn("document: dropping tilecombine request, no renderable view")
		return
	}
	tc, err := ParseTileCombined(tokens)
	if err != nil {
		d.logger.Warn("document: bad tilecombine request", "error", err)
		return
	}

	start := time.Now()
	d.engineMu.Lock()
	images, err := paintCombinedTiles(d.loKitDocument, tc)
	d.engineMu.Unlock()
	if err != nil {
		d.observeRender("tilecombine", "error", time.Since(start))
		d.logger.Error("document: tilecombine render failed", "error", err)
		return
	}
	d.observeRender("tilecombine", "ok", time.Since(start))

	var tail []byte
	for i, img := range images {
		tc.Positions[i].ImgSize = len(img)
		tail = append(tail, img...)
	}
	d.broadcastBinary(tc.Serialize(), tail)
}

// handleChild dispatches a "child-<viewId> <command>" message to the
// session whose view matches viewID, per spec.md §4.5's render pump
// dispatch rules. "disconnect" erases the session from the registry and
// tears down its view synchronously, matching the original's
// forwardToChild, which erases the session before any further delegation
// rather than marking it closed and leaving removal to the next purge: a
// child-<viewId> message arriving between disconnect and the next purge
// must never reach a handler for a session that no longer exists.
func (d *Document) handleChild(viewIDStr, command string) {
	viewID, err := strconv.Atoi(viewIDStr)
	if err != nil {
		d.logger.Warn("document: bad child-<viewId> prefix", "value", viewIDStr)
		return
	}

	s, ok := d.sessions.FindByViewID(viewID)
	if !ok {
		d.logger.Warn("document: child message for unknown view", "viewId", viewID)
		return
	}

	if command == "disconnect" {
		d.sessions.Erase(s.ID())
		d.Unload(viewID)
		return
	}

	if err := s.HandleInput(command); err != nil {
		d.logger.Warn("document: session input handler failed", "session", s.ID(), "error", err)
	}
}

func (d *Document) handleCallbackMessage(rest string) {
	viewIDStr, typeAndPayload := splitFirst(rest)
	viewID, err := strconv.Atoi(viewIDStr)
	if err != nil {
		d.logger.Warn("document: bad callback message", "message", rest)
		return
	}

	line := "callback: " + typeAndPayload
	d.sessions.Each(func(s session.ChildSession) {
		if !s.IsActive() {
			return
		}
		if viewID != -1 && s.ViewID() != viewID {
			return
		}
		if err := s.SendTextFrame(line); err != nil {
			d.logger.Warn("document: send callback failed", "session", s.ID(), "error", err)
		}
	})
}

// broadcastBinary fans a rendered tile reply out to every active session.
// The control loop's tile/tilecombine enqueue carries no requester
// identity once the message reaches the pump, so every active session on
// this document receives the reply, matching the original's single shared
// transport per worker.
func (d *Document) broadcastBinary(header string, payload []byte) {
	d.sessions.Each(func(s session.ChildSession) {
		if !s.IsActive() {
			return
		}
		if err := s.SendBinaryFrame(header, payload); err != nil {
			d.logger.Warn("document: send binary frame failed", "session", s.ID(), "error", err)
		}
	})
}
