// Package window describes the native window a backend is asked to draw
// into. A Descriptor is a tagged union of a window-system kind and the
// matching native handle; accessors fail fast when the kind does not match.
package window

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the window system a handle belongs to.
type Kind int

const (
	KindInvalid Kind = iota
	// KindXID is an X11 window id.
	KindXID
	// KindHWND is a Win32 window handle.
	KindHWND
	// KindNSObject is a Cocoa view or CAMetalLayer pointer.
	KindNSObject
	// KindWayland is a wl_surface pointer.
	KindWayland
)

var kindNames = map[Kind]string{
	KindInvalid:  "invalid",
	KindXID:      "xid",
	KindHWND:     "hwnd",
	KindNSObject: "nsobject",
	KindWayland:  "wayland",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a kind name as printed by String back to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if k != KindInvalid && name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("window: unknown kind %q", s)
}

var (
	ErrKindMismatch  = errors.New("window kind mismatch")
	ErrInvalidHandle = errors.New("invalid native window handle")
)

// KindMismatchError is returned by accessors called on a descriptor of
// another kind.
type KindMismatchError struct {
	Want Kind
	Got  Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("window: want %s handle, descriptor holds %s", e.Want, e.Got)
}

func (e *KindMismatchError) Is(target error) bool { return target == ErrKindMismatch }

// Descriptor is an immutable description of a native window. The zero value
// is a descriptor of KindInvalid.
type Descriptor struct {
	kind   Kind
	handle uintptr
	// display is an X11 display name for KindXID.
	display string
	// wlDisplay is the wl_display pointer for KindWayland.
	wlDisplay uintptr

	width, height uint32
}

// NewXID describes an X11 window. display is the X11 display name, empty
// for the default display.
func NewXID(xid uint32, display string) (Descriptor, error) {
	if xid == 0 {
		return Descriptor{}, fmt.Errorf("%w: zero XID", ErrInvalidHandle)
	}
	return Descriptor{kind: KindXID, handle: uintptr(xid), display: display}, nil
}

// NewHWND describes a Win32 window.
func NewHWND(hwnd uintptr) (Descriptor, error) {
	if hwnd == 0 {
		return Descriptor{}, fmt.Errorf("%w: nil HWND", ErrInvalidHandle)
	}
	return Descriptor{kind: KindHWND, handle: hwnd}, nil
}

// NewNSObject describes a Cocoa view or layer.
func NewNSObject(obj uintptr) (Descriptor, error) {
	if obj == 0 {
		return Descriptor{}, fmt.Errorf("%w: nil NSObject", ErrInvalidHandle)
	}
	return Descriptor{kind: KindNSObject, handle: obj}, nil
}

// NewWayland describes a Wayland surface on the given display connection.
func NewWayland(surface, display uintptr) (Descriptor, error) {
	if surface == 0 || display == 0 {
		return Descriptor{}, fmt.Errorf("%w: nil wl_surface or wl_display", ErrInvalidHandle)
	}
	return Descriptor{kind: KindWayland, handle: surface, wlDisplay: display}, nil
}

// WithSize returns a copy of d carrying the window size in pixels.
func (d Descriptor) WithSize(width, height uint32) Descriptor {
	d.width, d.height = width, height
	return d
}

// Kind returns the window system of the descriptor.
func (d Descriptor) Kind() Kind {
	return d.kind
}

// Size returns the size set by WithSize, zero if unknown.
func (d Descriptor) Size() (width, height uint32) {
	return d.width, d.height
}

func (d Descriptor) check(want Kind) error {
	if d.kind != want {
		return &KindMismatchError{Want: want, Got: d.kind}
	}
	return nil
}

// HWND returns the Win32 window handle.
func (d Descriptor) HWND() (uintptr, error) {
	if err := d.check(KindHWND); err != nil {
		return 0, err
	}
	return d.handle, nil
}

// XID returns the X11 window id.
func (d Descriptor) XID() (uint32, error) {
	if err := d.check(KindXID); err != nil {
		return 0, err
	}
	return uint32(d.handle), nil
}

// X11Display returns the X11 display name, empty for the default display.
func (d Descriptor) X11Display() (string, error) {
	if err := d.check(KindXID); err != nil {
		return "", err
	}
	return d.display, nil
}

// NSObject returns the Cocoa object pointer.
func (d Descriptor) NSObject() (uintptr, error) {
	if err := d.check(KindNSObject); err != nil {
		return 0, err
	}
	return d.handle, nil
}

// WaylandSurface returns the wl_surface pointer.
func (d Descriptor) WaylandSurface() (uintptr, error) {
	if err := d.check(KindWayland); err != nil {
		return 0, err
	}
	return d.handle, nil
}

// WaylandDisplay returns the wl_display pointer.
func (d Descriptor) WaylandDisplay() (uintptr, error) {
	if err := d.check(KindWayland); err != nil {
		return 0, err
	}
	return d.wlDisplay, nil
}

func (d Descriptor) String() string {
	switch d.kind {
	case KindXID:
		if d.display != "" {
			return fmt.Sprintf("xid:0x%x@%s", d.handle, d.display)
		}
		return fmt.Sprintf("xid:0x%x", d.handle)
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("%s:0x%x", d.kind, d.handle)
	}
}
