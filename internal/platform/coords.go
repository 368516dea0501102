package platform

import "github.com/mj1618/ax-mcp/internal/model"

// Origin is the corner a native coordinate system counts from.
type Origin int

const (
	OriginTopLeft Origin = iota
	OriginBottomLeft
)

// Frame is a native rectangle in the backend's own coordinate space.
type Frame struct {
	X, Y, Width, Height float64
	Origin              Origin
	Unit                model.Unit
}

// FrameFromEdges builds a top-left-origin frame from edge coordinates, as
// reported by APIs that return left/top/right/bottom.
func FrameFromEdges(left, top, right, bottom float64, unit model.Unit) Frame {
	return Frame{X: left, Y: top, Width: right - left, Height: bottom - top, Unit: unit}
}

// Normalize converts f into top-left-origin screen space. screenHeight is the
// height of the primary display in f's unit; it is only used for
// bottom-left-origin frames. Empty frames yield nil.
func Normalize(f Frame, screenHeight float64) *model.Rect {
	if f.Width <= 0 || f.Height <= 0 {
		return nil
	}
	y := f.Y
	if f.Origin == OriginBottomLeft {
		y = screenHeight - (f.Y + f.Height)
	}
	unit := f.Unit
	if unit == "" {
		unit = model.UnitPixel
	}
	return &model.Rect{X: f.X, Y: y, Width: f.Width, Height: f.Height, Unit: unit}
}
