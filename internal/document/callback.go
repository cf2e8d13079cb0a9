package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/collabora-online/kitworker/internal/engine"
)

func marshalRenderOpts(opts map[string]any) (string, error) {
	if len(opts) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// cursor-related callback type names, per spec.md §4.5.
const (
	callbackInvalidateVisibleCursor = "invalidateVisibleCursor"
	callbackCellCursor              = "cellCursor"
	callbackInvalidateViewCursor    = "invalidateViewCursor"
	callbackCellViewCursor          = "cellViewCursor"
	callbackPassword                = "password"
	callbackPasswordToModify        = "passwordToModify"
)

// globalCallback is registered with the Office handle and fires for
// notifications not scoped to any view; it enqueues a broadcast message
// with viewId -1.
func (d *Document) globalCallback(typ engine.CallbackType, payload string, _ int) {
	if d.Terminating() {
		return
	}
	if name, ok := callbackTypeName(typ); ok && isPasswordCallback(name) {
		d.handlePasswordCallback(name, payload)
		return
	}
	name, _ := callbackTypeName(typ)
	d.queue.Put(fmt.Sprintf("callback -1 %s %s", name, payload))
}

// viewCallback is registered per view, with the view id as userdata; it
// enqueues a view-scoped message and, for cursor-carrying types, updates
// the tile queue's cursor side-index.
func (d *Document) viewCallback(typ engine.CallbackType, payload string, viewID int) {
	if d.Terminating() {
		return
	}
	name, _ := callbackTypeName(typ)

	switch name {
	case callbackInvalidateVisibleCursor, callbackCellCursor:
		if x, y, w, h, ok := parseCommaCursor(payload); ok {
			d.queue.UpdateCursorPosition(0, 0, x, y, w, h)
		}
	case callbackInvalidateViewCursor, callbackCellViewCursor:
		if v, part, x, y, w, h, ok := parseJSONCursor(payload); ok {
			d.queue.UpdateCursorPosition(v, part, x, y, w, h)
		}
	}

	d.queue.Put(fmt.Sprintf("callback %d %s %s", viewID, name, payload))
}

func isPasswordCallback(name string) bool {
	return name == callbackPassword || name == callbackPasswordToModify
}

// handlePasswordCallback implements spec.md §4.5's password callback
// handling: a second prompt while already marked protected with a password
// supplied means the supplied password was wrong, so the load is aborted by
// clearing it; otherwise the document is marked protected and the stored
// (or absent) password is (re-)supplied.
func (d *Document) handlePasswordCallback(name, _ string) {
	kind := PasswordToView
	if name == callbackPasswordToModify {
		kind = PasswordToModify
	}

	d.mu.Lock()
	alreadyProtected := d.password.protected
	provided := d.password.provided
	stored := d.password.password
	d.password.protected = true
	d.password.kind = kind
	d.mu.Unlock()

	if alreadyProtected && provided {
		d.office.SetDocumentPassword(d.url, nil)
		return
	}
	if provided {
		d.office.SetDocumentPassword(d.url, &stored)
	} else {
		d.office.SetDocumentPassword(d.url, nil)
	}
}

// parseCommaCursor parses "x,y,w,h"; payload "EMPTY" or any parse with a
// field count other than 4 yields ok=false, per spec.md §4.5.
func parseCommaCursor(payload string) (x, y, w, h int64, ok bool) {
	if payload == "EMPTY" {
		return 0, 0, 0, 0, false
	}
	parts := strings.Split(payload, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, false
	}
	vals := make([]int64, 4)
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0, 0, 0, 0, false
		}
		vals[i] = n
	}
	return vals[0], vals[1], vals[2], vals[3], true
}

// parseJSONCursor parses {"viewId":N,"part":N,"rectangle":"x,y,w,h"}.
func parseJSONCursor(payload string) (viewID, part int, x, y, w, h int64, ok bool) {
	var raw struct {
		ViewID    int    `json:"viewId"`
		Part      int    `json:"part"`
		Rectangle string `json:"rectangle"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return 0, 0, 0, 0, 0, 0, false
	}
	rx, ry, rw, rh, rectOK := parseCommaCursor(raw.Rectangle)
	if !rectOK {
		return 0, 0, 0, 0, 0, 0, false
	}
	return raw.ViewID, raw.Part, rx, ry, rw, rh, true
}

// callbackTypeName resolves the engine's opaque numeric callback type to
// its name. Unknown codes are preserved verbatim as a numeric string,
// since the pump forwards unrecognized types through without special
// handling, per spec.md §6.2.
func callbackTypeName(typ engine.CallbackType) (string, bool) {
	if name, ok := callbackTypeNames[typ]; ok {
		return name, true
	}
	return strconv.Itoa(int(typ)), false
}

// callbackTypeNames covers the subset of LibreOfficeKitCallbackType this
// worker special-cases; every other code is passed through by its numeric
// value.
var callbackTypeNames = map[engine.CallbackType]string{
	0:  callbackInvalidateVisibleCursor,
	17: callbackCellCursor,
	28: callbackInvalidateViewCursor,
	31: callbackCellViewCursor,
	6:  callbackPassword,
	29: callbackPasswordToModify,
}
