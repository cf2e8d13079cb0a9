// Package enginefake is a test double for internal/engine's Office and
// Document interfaces, standing in for the dlopen'd native library so
// internal/document's tests exercise real state-machine logic without a
// document engine installed on the test host.
package enginefake

import (
	"fmt"
	"sync"

	"github.com/collabora-online/kitworker/internal/engine"
)

// Office is a fake Office backed by in-memory state. Password is consulted
// by DocumentLoad: if non-empty, a load without a matching password fails.
type Office struct {
	mu       sync.Mutex
	Password string
	Features uint64
	Callback engine.CallbackFunc
	userdata int

	// FailLoad, when set, makes every DocumentLoad fail regardless of
	// password state, simulating a corrupt or unsupported document.
	FailLoad bool

	pendingPassword *string
	nextViewID      int
	lastError       string
}

func New() *Office {
	return &Office{nextViewID: 1}
}

// PasswordCallbackType is the numeric callback code this fake emits for a
// password prompt, matching the real engine's password callback code the
// worker's callback demultiplexer recognizes.
const PasswordCallbackType engine.CallbackType = 6

// DocumentLoad simulates the real engine's synchronous password callback
// dance: a load against a protected document fires the password callback
// once per wrong (or absent) guess, up to twice, mirroring the two-attempt
// sequence a real engine performs before giving up.
func (o *Office) DocumentLoad(url string) (engine.Document, error) {
	o.mu.Lock()
	if o.FailLoad {
		o.lastError = "fake load failure"
		o.mu.Unlock()
		return nil, fmt.Errorf("enginefake: %s", o.lastError)
	}
	needsPassword := o.Password != ""
	fn, data := o.Callback, o.userdata
	o.mu.Unlock()

	if needsPassword {
		for attempt := 0; attempt < 2 && !o.passwordMatches(); attempt++ {
			if fn != nil {
				fn(PasswordCallbackType, "", data)
			}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if needsPassword && !o.passwordMatchesLocked() {
		o.lastError = "password required or incorrect"
		return nil, fmt.Errorf("enginefake: %s", o.lastError)
	}
	return &Document{office: o, url: url}, nil
}

func (o *Office) passwordMatches() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.passwordMatchesLocked()
}

func (o *Office) passwordMatchesLocked() bool {
	return o.pendingPassword != nil && *o.pendingPassword == o.Password
}

func (o *Office) SetDocumentPassword(url string, password *string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingPassword = password
}

func (o *Office) SetOptionalFeatures(flags uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Features = flags
}

func (o *Office) RegisterCallback(fn engine.CallbackFunc, userdata int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Callback = fn
	o.userdata = userdata
}

func (o *Office) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

func (o *Office) VersionInfo() string {
	return `{"ProductName":"fake","ProductVersion":"0.0"}`
}

// Emit lets a test drive the registered global callback as if the engine
// itself had invoked it.
func (o *Office) Emit(typ engine.CallbackType, payload string) {
	o.mu.Lock()
	fn, data := o.Callback, o.userdata
	o.mu.Unlock()
	if fn != nil {
		fn(typ, payload, data)
	}
}

// Document is a fake Document. Views are tracked in a simple slice; no
// actual rendering happens — PaintPartTile fills the buffer with a
// recognizable constant so tests can assert a paint occurred.
type Document struct {
	mu         sync.Mutex
	office     *Office
	url        string
	views      []int
	currentView int
	callback   engine.CallbackFunc
	viewUserdata int

	// CommandValues lets a test stage canned .uno: query responses.
	CommandValues map[string]string
}

func (d *Document) CreateView() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.office.nextViewID
	d.office.nextViewID++
	d.views = append(d.views, id)
	d.currentView = id
	return id
}

func (d *Document) DestroyView(viewID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range d.views {
		if v == viewID {
			d.views = append(d.views[:i], d.views[i+1:]...)
			break
		}
	}
}

func (d *Document) SetView(viewID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentView = viewID
}

func (d *Document) GetView() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentView
}

func (d *Document) GetViewsCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.views)
}

func (d *Document) GetViewIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.views))
	copy(out, d.views)
	return out
}

func (d *Document) GetTileMode() int { return 0 }

func (d *Document) PaintPartTile(buffer []byte, part int, width, height int32, tilePosX, tilePosY, tileWidth, tileHeight int64) error {
	for i := range buffer {
		buffer[i] = 0xAA
	}
	return nil
}

func (d *Document) InitializeForRendering(optsJSON string) error {
	return nil
}

func (d *Document) GetCommandValues(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.CommandValues[name]; ok {
		return v, nil
	}
	return `{"authors":[]}`, nil
}

func (d *Document) RegisterCallback(fn engine.CallbackFunc, userdata int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = fn
	d.viewUserdata = userdata
}

// EmitView drives the per-view callback registered for whichever view was
// current at RegisterCallback time.
func (d *Document) EmitView(typ engine.CallbackType, payload string) {
	d.mu.Lock()
	fn, data := d.callback, d.viewUserdata
	d.mu.Unlock()
	if fn != nil {
		fn(typ, payload, data)
	}
}
