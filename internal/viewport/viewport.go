// Package viewport converts between screen and logical canvas coordinates
// and owns the zoom/scroll state of one canvas session.
//
// Logical coordinates are canvas units, independent of zoom. Screen
// coordinates are pixels relative to the host window. A container Rect
// locates the scrollable canvas element inside the window.
package viewport

import "math"

// Canvas and note geometry, in logical units.
const (
	CanvasWidth  = 10000.0
	CanvasHeight = 5000.0
	NoteWidth    = 150.0
	NoteHeight   = 80.0
)

// Zoom limits.
const (
	MinZoom     = 0.2
	MaxZoom     = 3.0
	DefaultZoom = 1.0
	ZoomStep    = 0.01
	// ZoomEpsilon is the smallest zoom change that is applied.
	ZoomEpsilon = 1e-6
	// FocusZoom is the zoom used when jumping to a note.
	FocusZoom = 2.0
	// GridSpacing is the background grid cell size at zoom 1.
	GridSpacing = 50.0
)

// InitialFocus is the logical point centered when a session starts.
var InitialFocus = Point{X: 2500, Y: 2500}

// Point is a 2D coordinate, screen or logical depending on context.
type Point struct {
	X float64
	Y float64
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Rect is an axis-aligned rectangle in screen pixels.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.Left, Y: r.Top} }

// Center returns the midpoint.
func (r Rect) Center() Point {
	return Point{X: r.Left + r.Width/2, Y: r.Top + r.Height/2}
}

// Contains reports whether p lies inside r (right and bottom edges excluded).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Left+r.Width && p.Y >= r.Top && p.Y < r.Top+r.Height
}

// ScreenToLogical maps a screen point to logical canvas coordinates.
func ScreenToLogical(screen Point, container Rect, scroll Point, zoom float64) Point {
	return Point{
		X: (screen.X - container.Left + scroll.X) / zoom,
		Y: (screen.Y - container.Top + scroll.Y) / zoom,
	}
}

// LogicalToScreen is the inverse of ScreenToLogical.
func LogicalToScreen(logical Point, container Rect, scroll Point, zoom float64) Point {
	return Point{
		X: logical.X*zoom - scroll.X + container.Left,
		Y: logical.Y*zoom - scroll.Y + container.Top,
	}
}

// ClampZoom bounds z into [MinZoom, MaxZoom]. NaN maps to DefaultZoom.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return DefaultZoom
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// ClampNote bounds a note's top-left anchor so the whole note stays on the
// canvas. Non-finite components clamp to 0.
func ClampNote(p Point) Point {
	return Point{
		X: clamp(p.X, 0, CanvasWidth-NoteWidth),
		Y: clamp(p.Y, 0, CanvasHeight-NoteHeight),
	}
}

// InBounds reports whether p is a valid note anchor.
func InBounds(p Point) bool {
	return p == ClampNote(p)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, -1) {
		return lo
	}
	if math.IsInf(v, 1) {
		return hi
	}
	return math.Min(hi, math.Max(lo, v))
}

// Viewport is the session-local zoom and scroll state. It is never persisted.
type Viewport struct {
	Zoom    float64
	ScrollX float64
	ScrollY float64
}

// New returns a viewport at DefaultZoom centered on InitialFocus.
func New(container Rect) Viewport {
	v := Viewport{Zoom: DefaultZoom}
	v.CenterOn(InitialFocus, container)
	return v
}

// Scroll returns the scroll offset as a point.
func (v *Viewport) Scroll() Point { return Point{X: v.ScrollX, Y: v.ScrollY} }

// Logical maps a screen point into logical coordinates.
func (v *Viewport) Logical(screen Point, container Rect) Point {
	return ScreenToLogical(screen, container, v.Scroll(), v.Zoom)
}

// Screen maps a logical point onto the screen.
func (v *Viewport) Screen(logical Point, container Rect) Point {
	return LogicalToScreen(logical, container, v.Scroll(), v.Zoom)
}

// SetZoom applies a requested zoom, clamped to the allowed range. When the
// clamped value is within ZoomEpsilon of the current zoom nothing changes and
// SetZoom returns false. With a pivot, scroll is adjusted so the logical
// point under the pivot stays under it.
func (v *Viewport) SetZoom(requested float64, pivot *Point, container Rect) bool {
	next := ClampZoom(requested)
	if math.Abs(next-v.Zoom) < ZoomEpsilon {
		return false
	}
	if pivot == nil {
		v.Zoom = next
		return true
	}
	anchor := v.Logical(*pivot, container)
	offset := pivot.Sub(container.Origin())
	v.Zoom = next
	v.ScrollX = anchor.X*next - offset.X
	v.ScrollY = anchor.Y*next - offset.Y
	return true
}

// ScrollBy pans by a screen-pixel delta.
func (v *Viewport) ScrollBy(dx, dy float64) {
	v.ScrollX += dx
	v.ScrollY += dy
}

// ScrollTo sets the scroll offset.
func (v *Viewport) ScrollTo(p Point) {
	v.ScrollX = p.X
	v.ScrollY = p.Y
}

// CenterOn scrolls so the logical point sits at the container's center.
func (v *Viewport) CenterOn(logical Point, container Rect) {
	v.ScrollX = logical.X*v.Zoom - container.Width/2
	v.ScrollY = logical.Y*v.Zoom - container.Height/2
}

// VisibleLogical returns the logical rectangle currently inside the container.
func (v *Viewport) VisibleLogical(container Rect) (min, max Point) {
	min = v.Logical(container.Origin(), container)
	max = v.Logical(Point{X: container.Left + container.Width, Y: container.Top + container.Height}, container)
	return min, max
}

// NoteScreenRect places a note on screen. Notes keep their unscaled pixel
// size at every zoom; only the anchor is transformed.
func (v *Viewport) NoteScreenRect(anchor Point, container Rect) Rect {
	p := v.Screen(anchor, container)
	return Rect{Left: p.X, Top: p.Y, Width: NoteWidth, Height: NoteHeight}
}

// GridStep returns the background grid spacing in screen pixels.
func (v *Viewport) GridStep() float64 {
	return GridSpacing * v.Zoom
}

// ZoomPercent is the value shown in the zoom indicator.
func (v *Viewport) ZoomPercent() int {
	return int(math.Round(v.Zoom * 100))
}
