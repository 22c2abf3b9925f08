// Package images - Frames, decoding, box geometry and annotation.
package images

import "github.com/chewxy/math32"

// Rect is an axis-aligned box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, never negative.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, never negative.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box in square pixels.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Canon returns the box with its corners ordered so that X1 <= X2 and Y1 <= Y2.
func (r Rect) Canon() Rect {
	if r.X2 < r.X1 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y2 < r.Y1 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Clip canonicalises the box and restricts it to [0,width]x[0,height].
//
// Arguments:
//   - width: The right bound.
//   - height: The bottom bound.
//
// Returns:
//   - The clipped box.
func (r Rect) Clip(width, height float32) Rect {
	r = r.Canon()
	return Rect{
		X1: clamp(r.X1, 0, width),
		Y1: clamp(r.Y1, 0, height),
		X2: clamp(r.X2, 0, width),
		Y2: clamp(r.Y2, 0, height),
	}
}

// Scale maps the box through coord' = (coord - offset) / scale.
//
// Arguments:
//   - scale: The resize factor that was applied to the frame. Must be > 0.
//   - offsetX: The horizontal padding added after the resize.
//   - offsetY: The vertical padding added after the resize.
//
// Returns:
//   - The box in the coordinate space before resize and padding.
func (r Rect) Scale(scale, offsetX, offsetY float32) Rect {
	return Rect{
		X1: (r.X1 - offsetX) / scale,
		Y1: (r.Y1 - offsetY) / scale,
		X2: (r.X2 - offsetX) / scale,
		Y2: (r.Y2 - offsetY) / scale,
	}
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU = Area of Intersection / Area of Union, where the union is computed by
// inclusion-exclusion: Area(A) + Area(B) - Area(A ∩ B). The result is in [0, 1];
// boxes that only touch, or that have no area, score 0.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: A value between 0.0 and 1.0.
//
// Example:
//
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}
