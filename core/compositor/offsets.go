package compositor

import (
	"fmt"
	"image"
)

// MaxOffset bounds each component of Offsets.
const MaxOffset = 4096

// Offsets shift the reference and the label away from their default spots.
// Positive X moves right and positive Y moves down. The zero value keeps the
// centered reference and the bottom-centered label.
type Offsets struct {
	ImageX int `db:"image_x" json:"image_x"`
	ImageY int `db:"image_y" json:"image_y"`
	TextX  int `db:"text_x" json:"text_x"`
	TextY  int `db:"text_y" json:"text_y"`
}

// IsZero reports whether o keeps the default layout.
func (o Offsets) IsZero() bool { return o == Offsets{} }

// Validate rejects components outside ±MaxOffset.
func (o Offsets) Validate() error {
	for _, v := range [...]int{o.ImageX, o.ImageY, o.TextX, o.TextY} {
		if v < -MaxOffset || v > MaxOffset {
			return fmt.Errorf("%w: %d", ErrOffsetRange, v)
		}
	}
	return nil
}

// PlaceReference returns the reference origin on a w x h canvas. Without an
// image offset this is PasteOrigin. A shifted square stays inside any canvas
// large enough to hold it.
func PlaceReference(w, h int, o Offsets) image.Point {
	at := PasteOrigin(w, h)
	if o.ImageX == 0 && o.ImageY == 0 {
		return at
	}
	return image.Pt(
		clamp(at.X+o.ImageX, 0, w-RefSize),
		clamp(at.Y+o.ImageY, 0, h-RefSize),
	)
}

// placeLabel returns the baseline origin of a label width pixels wide. A
// shifted label stays inside the canvas.
func placeLabel(w, h, width, ascent, descent int, o Offsets) image.Point {
	x := floorDiv(w-width, 2)
	y := h - LabelMargin - descent
	if o.TextX == 0 && o.TextY == 0 {
		return image.Pt(x, y)
	}
	return image.Pt(
		clamp(x+o.TextX, 0, w-width),
		clamp(y+o.TextY, ascent, h-descent),
	)
}

// clamp limits v to [lo, hi]. An empty range leaves v as is.
func clamp(v, lo, hi int) int {
	if lo > hi {
		return v
	}
	return min(max(v, lo), hi)
}
