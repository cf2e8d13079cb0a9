// Package document implements the Document Manager: the state machine that
// owns a single loaded document, its views and sessions, and drives the
// render pump described in spec.md §4.5.
package document

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/collabora-online/kitworker/internal/engine"
	"github.com/collabora-online/kitworker/internal/metrics"
	"github.com/collabora-online/kitworker/internal/session"
	"github.com/collabora-online/kitworker/internal/tilequeue"
)

// PasswordKind distinguishes the two password prompts the engine can raise.
type PasswordKind string

const (
	PasswordToView   PasswordKind = "to-view"
	PasswordToModify PasswordKind = "to-modify"
)

// passwordState is the {Unprotected | AwaitingPassword(kind) | Rejected(kind)}
// state machine spec.md §3 describes as {protected, provided, password, type}.
type passwordState struct {
	protected bool
	provided  bool
	password  string
	kind      PasswordKind
}

// optionalFeatureFlags are the bits set via Office.SetOptionalFeatures so
// the engine knows to raise password callbacks and include the edited
// part in invalidation callbacks, per spec.md §4.5 step 2a.
const (
	featureDocumentPassword           uint64 = 1 << 0
	featureDocumentPasswordToModify   uint64 = 1 << 1
	featurePartInInvalidationCallback uint64 = 1 << 2
)

// callbackDescriptor is the stable (Document, viewId) pair handed to the
// engine as callback userdata, per spec.md §3.
type callbackDescriptor struct {
	viewID int
}

// Document owns one loaded document and every view/session attached to it.
// Per spec.md §3, at most one Document exists for the lifetime of a
// worker process; its url never changes once set.
type Document struct {
	logger *slog.Logger
	office engine.Office

	url       string
	jailedURL string
	docKey    string

	// engineMu is the Document-engine mutex: every call into loKitDocument
	// is serialized by it, per spec.md §5.
	engineMu      sync.Mutex
	loKitDocument engine.Document

	// mu is the Document mutex: guards everything below except
	// loKitDocument itself.
	mu            sync.Mutex
	loadCond      *sync.Cond
	loadInFlight  int
	clientViews   int
	password      passwordState
	renderOpts    map[string]any
	viewCallbacks map[int]*callbackDescriptor
	// viewUserNames tracks username by viewId for the viewinfo broadcast;
	// sessions own the authoritative copy but views can outlive the
	// moment a session is looked up.
	viewUserNames map[int]string

	sessions *session.Registry
	queue    *tilequeue.Queue

	terminate atomic.Bool

	// EnableRenderIDs requests a renderid= token on tile replies, the
	// debug-build behavior spec.md §6.1 names.
	EnableRenderIDs bool

	// Metrics receives render/session/view observations if non-nil. Left
	// nil in tests that don't construct a metrics.Collectors.
	Metrics *metrics.Collectors
}

// New constructs a Document bound to office and the given identifiers. No
// native document is loaded yet; that happens on the first Load call.
func New(logger *slog.Logger, office engine.Office, docURL, jailedURL, docKey string, sessions *session.Registry, queue *tilequeue.Queue) *Document {
	d := &Document{
		logger:        logger,
		office:        office,
		url:           docURL,
		jailedURL:     jailedURL,
		docKey:        docKey,
		viewCallbacks: make(map[int]*callbackDescriptor),
		viewUserNames: make(map[int]string),
		sessions:      sessions,
		queue:         queue,
	}
	d.loadCond = sync.NewCond(&d.mu)
	return d
}

// URL is the document's immutable identifying URL.
func (d *Document) URL() string { return d.url }

// Terminate sets the process-wide termination flag and wakes the pump by
// enqueueing EOF, per spec.md §5's cancellation model.
func (d *Document) Terminate() {
	d.terminate.Store(true)
	d.queue.Close()
}

// Terminating reports whether Terminate has been called.
func (d *Document) Terminating() bool { return d.terminate.Load() }

// LoadResult carries either a new view id or a structured load error.
type LoadResult struct {
	ViewID int
	Err    *LoadError
}

// LoadError is the structured `error: cmd=load kind=...` the initiating
// session is sent on a failed load, per spec.md §4.5 step 2c.
type LoadError struct {
	Kind string
}

func (e *LoadError) Error() string { return fmt.Sprintf("load error: kind=%s", e.Kind) }

// Load implements spec.md §4.5's load algorithm. password is the password
// supplied with the load request, if any; userName is used to populate
// .uno:Author in renderOpts.
func (d *Document) Load(password *string, userName string) LoadResult {
	d.mu.Lock()
	for d.loadInFlight > 0 {
		d.loadCond.Wait()
	}
	d.loadInFlight++
	firstLoad := d.loKitDocument == nil
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.loadInFlight--
		d.loadCond.Signal()
		d.mu.Unlock()
	}()

	if firstLoad {
		return d.firstLoad(password, userName)
	}
	return d.subsequentView(password, userName)
}

func (d *Document) firstLoad(password *string, userName string) LoadResult {
	d.engineMu.Lock()
	d.office.RegisterCallback(d.globalCallback, 0)
	d.office.SetOptionalFeatures(featureDocumentPassword | featureDocumentPasswordToModify | featurePartInInvalidationCallback)

	d.mu.Lock()
	d.password = passwordState{}
	if password != nil {
		d.password.provided = true
		d.password.password = *password
	}
	d.mu.Unlock()

	if password != nil {
		d.office.SetDocumentPassword(d.url, password)
	}

	doc, err := d.office.DocumentLoad(d.jailedURL)
	d.engineMu.Unlock()

	if err != nil {
		d.mu.Lock()
		ps := d.password
		d.mu.Unlock()
		if ps.protected && !ps.provided {
			return LoadResult{Err: &LoadError{Kind: "passwordrequired:" + string(ps.kind)}}
		}
		if ps.protected && ps.provided {
			return LoadResult{Err: &LoadError{Kind: "wrongpassword"}}
		}
		d.logger.Error("document: load failed", "url", d.url, "error", err)
		return LoadResult{Err: &LoadError{Kind: "failure"}}
	}

	d.mu.Lock()
	d.loKitDocument = doc
	d.renderOpts = make(map[string]any)
	d.mu.Unlock()

	return d.createView(userName)
}

func (d *Document) subsequentView(password *string, userName string) LoadResult {
	d.mu.Lock()
	ps := d.password
	d.mu.Unlock()

	if ps.protected {
		provided := password != nil && *password == ps.password
		if !provided {
			kind := "wrongpassword"
			if password == nil {
				kind = "passwordrequired:" + string(ps.kind)
			}
			return LoadResult{Err: &LoadError{Kind: kind}}
		}
	}
	return d.createView(userName)
}

func (d *Document) createView(userName string) LoadResult {
	d.engineMu.Lock()
	defer d.engineMu.Unlock()

	d.mu.Lock()
	opts := mergeAuthor(d.renderOpts, userName)
	d.mu.Unlock()

	viewID := d.loKitDocument.CreateView()
	d.loKitDocument.SetView(viewID)

	optsJSON, err := marshalRenderOpts(opts)
	if err != nil {
		d.logger.Error("document: marshal render opts failed", "error", err)
	} else if err := d.loKitDocument.InitializeForRendering(optsJSON); err != nil {
		d.logger.Error("document: initializeForRendering failed", "error", err)
	}

	desc := &callbackDescriptor{viewID: viewID}
	d.loKitDocument.RegisterCallback(d.viewCallback, viewID)

	d.mu.Lock()
	d.viewCallbacks[viewID] = desc
	d.viewUserNames[viewID] = userName
	d.clientViews++
	clientViews := d.clientViews
	d.mu.Unlock()

	if d.Metrics != nil {
		d.Metrics.ActiveViews.Set(float64(clientViews))
	}

	return LoadResult{ViewID: viewID}
}

// Unload implements spec.md §4.5's unload algorithm: tear down one view,
// then broadcast the updated view-info list to every remaining session.
func (d *Document) Unload(viewID int) {
	d.queue.RemoveCursorPosition(viewID)

	d.engineMu.Lock()
	d.loKitDocument.SetView(viewID)
	d.loKitDocument.RegisterCallback(nil, 0)
	d.loKitDocument.DestroyView(viewID)
	viewIDs := d.loKitDocument.GetViewIDs()
	d.engineMu.Unlock()

	d.mu.Lock()
	delete(d.viewCallbacks, viewID)
	delete(d.viewUserNames, viewID)
	d.clientViews--
	clientViews := d.clientViews
	d.mu.Unlock()

	if d.Metrics != nil {
		d.Metrics.ActiveViews.Set(float64(clientViews))
	}

	d.broadcastViewInfo(viewIDs)
}

// ClientViews returns the current active view count, for tests and
// invariant checks (spec.md §8 property 2).
func (d *Document) ClientViews() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientViews
}

func mergeAuthor(renderOpts map[string]any, userName string) map[string]any {
	merged := make(map[string]any, len(renderOpts)+1)
	for k, v := range renderOpts {
		merged[k] = v
	}
	if userName != "" {
		decoded, err := url.QueryUnescape(userName)
		if err != nil {
			decoded = userName
		}
		merged[".uno:Author"] = map[string]any{"type": "string", "value": decoded}
	}
	return merged
}
