// Package engine wraps the native document-rendering library behind the
// method surface spec.md §4.2 names. Both Office and Document are
// non-reentrant: the production wrapper (loader_linux.go) serializes every
// call through a mutex it owns per handle, and internal/document
// additionally holds its own Document-engine mutex around each call.
package engine

// CallbackType identifies the native engine's callback taxonomy. Values are
// opaque and preserved verbatim through the tile queue; the worker only
// special-cases password, passwordToModify, and the cursor-related types
// named in internal/document.
type CallbackType int

// CallbackFunc is invoked by the engine, from an engine-owned thread, for
// every global or per-view notification. userdata is whatever was passed to
// RegisterCallback and is never touched by the engine itself.
type CallbackFunc func(typ CallbackType, payload string, userdata int)

// Office is the process-wide handle returned by engine pre-init.
type Office interface {
	// DocumentLoad opens url and returns a Document, or an error if the
	// native call returned a null handle (including password failures,
	// which the caller inspects via the Document's own password state).
	DocumentLoad(url string) (Document, error)
	// SetDocumentPassword supplies (or clears, if password is nil) the
	// password the engine should use to decrypt url on its next load
	// attempt.
	SetDocumentPassword(url string, password *string)
	// SetOptionalFeatures enables the bitmask of optional callback
	// behaviors documentPassword, documentPasswordToModify, and
	// partInInvalidationCallback require.
	SetOptionalFeatures(flags uint64)
	// RegisterCallback installs the global callback, invoked for
	// notifications not scoped to any view. userdata is opaque and
	// returned unmodified to fn.
	RegisterCallback(fn CallbackFunc, userdata int)
	// LastError returns the engine's last error message, for diagnostics
	// when DocumentLoad fails.
	LastError() string
	// VersionInfo returns the engine's JSON version descriptor, used by
	// the --query-version registration handshake.
	VersionInfo() string
}

// Document is a single loaded document and its views.
type Document interface {
	CreateView() int
	DestroyView(viewID int)
	SetView(viewID int)
	GetView() int
	GetViewsCount() int
	GetViewIDs() []int
	GetTileMode() int
	// PaintPartTile renders part of the document into buffer, which must
	// be at least width*height*4 bytes (BGRA). tilePosX/Y and
	// tileWidth/Height are in document twips.
	PaintPartTile(buffer []byte, part int, width, height int32, tilePosX, tilePosY, tileWidth, tileHeight int64) error
	// InitializeForRendering must be called once per view, after
	// createView/setView, before the first paint.
	InitializeForRendering(optsJSON string) error
	// GetCommandValues returns the JSON result of a .uno: query command,
	// e.g. ".uno:TrackedChangeAuthors".
	GetCommandValues(name string) (string, error)
	// RegisterCallback installs the per-view callback for the view
	// currently selected by SetView.
	RegisterCallback(fn CallbackFunc, userdata int)
}
