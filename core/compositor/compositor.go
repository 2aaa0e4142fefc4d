package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/mergebot/core/logger"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	// RefSize is the edge length of the pasted reference square.
	RefSize = 60
	// LabelMargin is the gap between the label descent and the bottom edge.
	LabelMargin = 10
	// FormatPNG is the only output encoding.
	FormatPNG = "png"

	defaultFontSize = 20
)

// Options configures a Compositor.
type Options struct {
	FontPath  string
	FontSize  float64
	MaxPixels int
	// SkipSystemFonts disables probing of DefaultFontCandidates.
	SkipSystemFonts bool
}

// Result is an encoded composite.
type Result struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Compositor pastes a resized reference onto a main image and draws a label.
// It holds no per-call state and is safe for concurrent use.
type Compositor struct {
	opts Options
	font fontSource
}

// New selects the label font and returns a ready Compositor.
func New(opts Options) (*Compositor, error) {
	if opts.FontSize < 0 || opts.MaxPixels < 0 {
		return nil, fmt.Errorf("compositor: negative option")
	}
	if opts.FontSize == 0 {
		opts.FontSize = defaultFontSize
	}
	src := selectFont(opts)
	logger.Comp.Info("font selected",
		slog.String("event", "font.selected"),
		slog.String("font", src.name),
		slog.Bool("scalable", src.scalable),
	)
	return &Compositor{opts: opts, font: src}, nil
}

// FontName reports the face chosen at construction.
func (c *Compositor) FontName() string { return c.font.name }

// Compose decodes both inputs and composites them.
func (c *Compositor) Compose(ctx context.Context, mainData, refData []byte, label string, off Offsets) (Result, error) {
	mainImg, err := c.Decode(ctx, mainData)
	if err != nil {
		return Result{}, tagInput(err, "main")
	}
	refImg, err := c.Decode(ctx, refData)
	if err != nil {
		return Result{}, tagInput(err, "reference")
	}
	return c.ComposeImages(ctx, mainImg, refImg, label, off)
}

func tagInput(err error, input string) error {
	if de, ok := err.(*DecodeError); ok {
		de.Input = input
	}
	return err
}

// ComposeImages runs the pixel pipeline on already decoded images.
// The output has the dimensions of main and is always PNG. The label is
// drawn first so the reference square is never covered by it.
func (c *Compositor) ComposeImages(ctx context.Context, mainImg, refImg image.Image, label string, off Offsets) (res Result, err error) {
	if mainImg == nil || refImg == nil {
		return Result{}, &CompositeError{Op: "input", Err: ErrNilImage}
	}
	if err := off.Validate(); err != nil {
		return Result{}, &CompositeError{Op: "input", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &CompositeError{Op: "input", Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = &CompositeError{Op: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	start := time.Now()
	canvas := toRGBA(mainImg)
	if err := c.drawLabel(canvas, strings.TrimSpace(label), off); err != nil {
		return Result{}, &CompositeError{Op: "label", Err: err}
	}

	patch := Resize(refImg)
	at := PlaceReference(canvas.Bounds().Dx(), canvas.Bounds().Dy(), off)
	draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(image.Pt(RefSize, RefSize))}, patch, image.Point{}, draw.Over)

	data, err := encodePNG(canvas)
	if err != nil {
		return Result{}, &CompositeError{Op: "encode", Err: err}
	}

	b := canvas.Bounds()
	logger.Comp.Debug("composite done",
		slog.String("event", "compose"),
		slog.Int("width", b.Dx()),
		slog.Int("height", b.Dy()),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)
	return Result{Data: data, Format: FormatPNG, Width: b.Dx(), Height: b.Dy()}, nil
}

// Resize scales src to exactly RefSize x RefSize with bilinear filtering.
func Resize(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, RefSize, RefSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// PasteOrigin centers the reference square. Mains smaller than RefSize get a
// negative origin and the square is clipped to the canvas.
func PasteOrigin(w, h int) image.Point {
	return image.Pt(floorDiv(w-RefSize, 2), floorDiv(h-RefSize, 2))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

var outlineOffsets = []image.Point{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}

func (c *Compositor) drawLabel(dst *image.RGBA, label string, off Offsets) error {
	if label == "" {
		return nil
	}
	face, err := c.font.newFace()
	if err != nil {
		return err
	}
	if c.font.scalable {
		defer face.Close()
	}

	m := face.Metrics()
	width := c.font.measurer.Measure(face, label)
	at := placeLabel(dst.Bounds().Dx(), dst.Bounds().Dy(), width, m.Ascent.Ceil(), m.Descent.Ceil(), off)

	d := &font.Drawer{Dst: dst, Face: face, Src: image.Black}
	for _, o := range outlineOffsets {
		d.Dot = fixed.P(at.X+o.X, at.Y+o.Y)
		d.DrawString(label)
	}
	d.Src = image.White
	d.Dot = fixed.P(at.X, at.Y)
	d.DrawString(label)
	return nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
