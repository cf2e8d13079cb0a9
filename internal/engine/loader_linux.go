package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// The native engine's C ABI exposes one hook symbol, libreofficekit_hook,
// that returns a pointer to a LibreOfficeKit struct whose first field is a
// pointer to a LibreOfficeKitClass vtable of function pointers. Every
// further call — documentLoad, registerCallback, and so on — goes through a
// fixed slot in that vtable rather than through an exported symbol, which
// is why this file resolves vtableSlot offsets instead of calling
// purego.RegisterLibFunc by name for anything past the hook itself.
//
// Slot numbers below approximate LibreOfficeKitClass's declaration order in
// LibreOfficeKit.h (nDestroy onward); they have not been checked against a
// compiled header (see DESIGN.md). Only the members this wrapper needs are
// named.
const (
	slotDestroy                = 0
	slotDocumentLoad           = 1
	slotRegisterCallback       = 3
	slotGetError               = 2
	slotGetVersionInfo         = 4
	slotSetOptionalFeatures    = 9
	slotSetDocumentPassword    = 10
	docSlotDestroy             = 0
	docSlotPaintTile           = 12
	docSlotInitializeForRendering = 15
	docSlotRegisterCallback    = 17
	docSlotGetCommandValues    = 18
	docSlotCreateView          = 21
	docSlotDestroyView         = 22
	docSlotSetView             = 23
	docSlotGetView             = 24
	docSlotGetViewsCount       = 25
	docSlotGetViewIDs          = 26
	docSlotGetTileMode         = 41
)

type hookFunc func() uintptr

// NewOffice loads the engine library at libPath and invokes
// libreofficekit_hook to obtain the Office handle. Preinit must already
// have succeeded in this process.
func NewOffice(libPath string) (Office, error) {
	handle, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("engine: dlopen %s: %w", libPath, err)
	}

	var hook hookFunc
	purego.RegisterLibFunc(&hook, handle, "libreofficekit_hook")

	kit := hook()
	if kit == 0 {
		return nil, fmt.Errorf("engine: libreofficekit_hook returned null")
	}
	return &officeImpl{kit: kit}, nil
}

// vtableCall dereferences *instance (the vtable pointer, stored as the
// struct's first word) to fetch the function pointer at slot and invokes it
// with instance prepended as the implicit "this" argument, matching the
// calling convention every LibreOfficeKitClass/LibreOfficeKitDocumentClass
// member uses.
func vtableCall(instance uintptr, slot int, args ...uintptr) uintptr {
	vtable := *(*uintptr)(unsafe.Pointer(instance))
	fnPtr := *(*uintptr)(unsafe.Pointer(vtable + uintptr(slot)*unsafe.Sizeof(uintptr(0))))
	callArgs := append([]uintptr{instance}, args...)
	r1, _, _ := purego.SyscallN(fnPtr, callArgs...)
	return r1
}

func cString(s string) uintptr {
	b := append([]byte(s), 0)
	return uintptr(unsafe.Pointer(&b[0]))
}

func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var b []byte
	for i := 0; ; i++ {
		c := *(*byte)(unsafe.Pointer(ptr + uintptr(i)))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}

type officeImpl struct {
	mu  sync.Mutex
	kit uintptr
}

func (o *officeImpl) DocumentLoad(url string) (Document, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc := vtableCall(o.kit, slotDocumentLoad, cString(url))
	if doc == 0 {
		return nil, fmt.Errorf("engine: documentLoad(%s): %s", url, o.lastErrorLocked())
	}
	return &documentImpl{office: o, doc: doc}, nil
}

func (o *officeImpl) SetDocumentPassword(url string, password *string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var pwPtr uintptr
	if password != nil {
		pwPtr = cString(*password)
	}
	vtableCall(o.kit, slotSetDocumentPassword, cString(url), pwPtr)
}

func (o *officeImpl) SetOptionalFeatures(flags uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	vtableCall(o.kit, slotSetOptionalFeatures, uintptr(flags))
}

func (o *officeImpl) RegisterCallback(fn CallbackFunc, userdata int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	vtableCall(o.kit, slotRegisterCallback, callbackTrampoline(fn), uintptr(userdata))
}

func (o *officeImpl) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErrorLocked()
}

func (o *officeImpl) lastErrorLocked() string {
	return goString(vtableCall(o.kit, slotGetError))
}

func (o *officeImpl) VersionInfo() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return goString(vtableCall(o.kit, slotGetVersionInfo))
}

// callbackTrampoline wraps fn as a purego callback matching the native
// LibreOfficeKitCallback signature, or returns a null function pointer when
// fn is nil so RegisterCallback(nil, ...) unregisters cleanly instead of
// installing a trampoline that would panic on invocation.
func callbackTrampoline(fn CallbackFunc) uintptr {
	if fn == nil {
		return 0
	}
	return purego.NewCallback(func(typ int32, payload *byte, data uintptr) uintptr {
		fn(CallbackType(typ), cStringFromPtr(payload), int(data))
		return 0
	})
}

func cStringFromPtr(p *byte) string {
	if p == nil {
		return ""
	}
	return goString(uintptr(unsafe.Pointer(p)))
}

type documentImpl struct {
	mu     sync.Mutex
	office *officeImpl
	doc    uintptr
}

func (d *documentImpl) CreateView() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(int32(vtableCall(d.doc, docSlotCreateView)))
}

func (d *documentImpl) DestroyView(viewID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vtableCall(d.doc, docSlotDestroyView, uintptr(int32(viewID)))
}

func (d *documentImpl) SetView(viewID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vtableCall(d.doc, docSlotSetView, uintptr(int32(viewID)))
}

func (d *documentImpl) GetView() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(int32(vtableCall(d.doc, docSlotGetView)))
}

func (d *documentImpl) GetViewsCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(int32(vtableCall(d.doc, docSlotGetViewsCount)))
}

func (d *documentImpl) GetViewIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := int(int32(vtableCall(d.doc, docSlotGetViewsCount)))
	if count <= 0 {
		return nil
	}
	buf := make([]int32, count)
	vtableCall(d.doc, docSlotGetViewIDs, uintptr(unsafe.Pointer(&buf[0])), uintptr(count))
	ids := make([]int, count)
	for i, v := range buf {
		ids[i] = int(v)
	}
	return ids
}

func (d *documentImpl) GetTileMode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(int32(vtableCall(d.doc, docSlotGetTileMode)))
}

func (d *documentImpl) PaintPartTile(buffer []byte, part int, width, height int32, tilePosX, tilePosY, tileWidth, tileHeight int64) error {
	if len(buffer) < int(width)*int(height)*4 {
		return fmt.Errorf("engine: paint buffer too small for %dx%d tile", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	vtableCall(d.doc, docSlotPaintTile,
		uintptr(unsafe.Pointer(&buffer[0])),
		uintptr(width), uintptr(height),
		uintptr(part),
		uintptr(tilePosX), uintptr(tilePosY),
		uintptr(tileWidth), uintptr(tileHeight))
	return nil
}

func (d *documentImpl) InitializeForRendering(optsJSON string) error {
	if optsJSON != "" && !json.Valid([]byte(optsJSON)) {
		return fmt.Errorf("engine: initializeForRendering: invalid options JSON")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	vtableCall(d.doc, docSlotInitializeForRendering, cString(optsJSON))
	return nil
}

func (d *documentImpl) GetCommandValues(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := vtableCall(d.doc, docSlotGetCommandValues, cString(name))
	if res == 0 {
		return "", fmt.Errorf("engine: getCommandValues(%s): empty result", name)
	}
	return goString(res), nil
}

func (d *documentImpl) RegisterCallback(fn CallbackFunc, userdata int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vtableCall(d.doc, docSlotRegisterCallback, callbackTrampoline(fn), uintptr(userdata))
}
