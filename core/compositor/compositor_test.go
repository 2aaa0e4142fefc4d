package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	gray  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func bitmapCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := New(Options{SkipSystemFonts: true})
	require.NoError(t, err)
	require.Equal(t, bitmapFontName, c.FontName())
	return c
}

func decodeResult(t *testing.T, res Result) *image.RGBA {
	t.Helper()
	require.Equal(t, FormatPNG, res.Format)
	img, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	return toRGBA(img)
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestPasteOrigin(t *testing.T) {
	cases := map[string]struct {
		w, h int
		want image.Point
	}{
		"square":       {200, 200, image.Pt(70, 70)},
		"odd":          {201, 101, image.Pt(70, 20)},
		"exact":        {60, 60, image.Pt(0, 0)},
		"one short":    {59, 59, image.Pt(-1, -1)},
		"small main":   {40, 30, image.Pt(-10, -15)},
		"landscape jp": {800, 600, image.Pt(370, 270)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, PasteOrigin(tc.w, tc.h))
		})
	}
}

func TestResizeIsExactSquare(t *testing.T) {
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 1, 1),
		image.Rect(0, 0, 60, 60),
		image.Rect(0, 0, 1000, 3),
		image.Rect(5, 5, 205, 105),
	} {
		src := solid(r.Max.X, r.Max.Y, red)
		draw.Draw(src, r, image.NewUniform(blue), image.Point{}, draw.Src)
		sub := src.SubImage(r)
		require.Equal(t, r.Min, sub.Bounds().Min)

		out := Resize(sub)
		assert.Equal(t, image.Rect(0, 0, RefSize, RefSize), out.Bounds())
		for _, p := range []image.Point{{0, 0}, {RefSize - 1, 0}, {0, RefSize - 1}, {RefSize - 1, RefSize - 1}} {
			assert.Equal(t, blue, rgbaAt(out, p.X, p.Y), "rect %v pixel %v", r, p)
		}
	}
}

func TestComposeImagesOpaquePatch(t *testing.T) {
	c := bitmapCompositor(t)

	res, err := c.ComposeImages(context.Background(), solid(200, 200, red), solid(30, 30, blue), "", Offsets{})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 200, res.Height)

	out := decodeResult(t, res)
	require.Equal(t, image.Rect(0, 0, 200, 200), out.Bounds())
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			want := red
			if x >= 70 && x < 130 && y >= 70 && y < 130 {
				want = blue
			}
			if got := rgbaAt(out, x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestComposeJPEGWithAlphaReference(t *testing.T) {
	c := bitmapCompositor(t)

	ref := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			if x < 100 && y < 100 {
				continue // transparent top-left quadrant
			}
			ref.Set(x, y, color.NRGBA{G: 255, A: 255})
		}
	}

	res, err := c.Compose(context.Background(), jpegBytes(t, solid(800, 600, gray)), pngBytes(t, ref), "  Alice  ", Offsets{})
	require.NoError(t, err)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 600, res.Height)

	out := decodeResult(t, res)
	assert.Equal(t, green, rgbaAt(out, 420, 320))
	assert.Equal(t, green, rgbaAt(out, 429, 329))

	// Transparent reference pixels leave the main untouched.
	for _, p := range []image.Point{{375, 275}, {369, 300}, {430, 300}, {400, 269}, {400, 330}} {
		px := rgbaAt(out, p.X, p.Y)
		assert.InDelta(t, 128, int(px.R), 3, "pixel %v", p)
		assert.InDelta(t, 128, int(px.G), 3, "pixel %v", p)
	}

	// Label: 5 runes of the 7px bitmap face centered on x=400, baseline 588.
	whites, blacks := 0, 0
	for y := 570; y < 592; y++ {
		for x := 375; x < 425; x++ {
			switch rgbaAt(out, x, y) {
			case white:
				whites++
			case color.RGBA{A: 255}:
				blacks++
			}
		}
	}
	assert.Positive(t, whites)
	assert.Positive(t, blacks)
	for y := 0; y < 560; y++ {
		for x := 0; x < 800; x++ {
			if rgbaAt(out, x, y) == white {
				t.Fatalf("unexpected white pixel at (%d,%d)", x, y)
			}
		}
	}
}

func TestComposeDeterministic(t *testing.T) {
	c := bitmapCompositor(t)
	mainData := pngBytes(t, solid(120, 90, gray))
	refData := pngBytes(t, solid(10, 40, blue))

	first, err := c.Compose(context.Background(), mainData, refData, "Bob", Offsets{})
	require.NoError(t, err)
	second, err := c.Compose(context.Background(), mainData, refData, "Bob", Offsets{})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first.Data, second.Data))
}

func TestComposeBlankLabelDrawsNothing(t *testing.T) {
	c := bitmapCompositor(t)
	mainImg, refImg := solid(100, 100, gray), solid(10, 10, blue)

	empty, err := c.ComposeImages(context.Background(), mainImg, refImg, "", Offsets{})
	require.NoError(t, err)
	blank, err := c.ComposeImages(context.Background(), mainImg, refImg, "   ", Offsets{})
	require.NoError(t, err)
	assert.Equal(t, empty.Data, blank.Data)
}

func TestComposeSmallMainClips(t *testing.T) {
	c := bitmapCompositor(t)

	res, err := c.ComposeImages(context.Background(), solid(40, 30, red), solid(5, 5, blue), "", Offsets{})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 30, res.Height)

	out := decodeResult(t, res)
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			require.Equal(t, blue, rgbaAt(out, x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestComposeDecodeErrors(t *testing.T) {
	c := bitmapCompositor(t)
	good := pngBytes(t, solid(10, 10, red))

	_, err := c.Compose(context.Background(), []byte("not an image"), good, "x", Offsets{})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "main", de.Input)
	assert.Equal(t, "decode_failed", de.Code())

	_, err = c.Compose(context.Background(), good, good[:len(good)/2], "x", Offsets{})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "reference", de.Input)

	_, err = c.Compose(context.Background(), nil, good, "x", Offsets{})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestDecodeRejectsOversizedImage(t *testing.T) {
	c, err := New(Options{SkipSystemFonts: true, MaxPixels: 100})
	require.NoError(t, err)

	_, err = c.Decode(context.Background(), pngBytes(t, solid(20, 20, red)))
	require.ErrorIs(t, err, ErrTooLarge)

	img, err := c.Decode(context.Background(), pngBytes(t, solid(10, 10, red)))
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
}

func TestComposeImagesInputErrors(t *testing.T) {
	c := bitmapCompositor(t)

	_, err := c.ComposeImages(context.Background(), nil, solid(1, 1, red), "x", Offsets{})
	var ce *CompositeError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrNilImage)
	assert.Equal(t, "composite_failed", ce.Code())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ComposeImages(ctx, solid(1, 1, red), solid(1, 1, red), "x", Offsets{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScalableFontFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goregular.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o600))

	c, err := New(Options{FontPath: path, FontSize: 32, SkipSystemFonts: true})
	require.NoError(t, err)
	assert.Equal(t, path, c.FontName())
	assert.True(t, c.font.scalable)
	assert.IsType(t, faceMeasurer{}, c.font.measurer)

	res, err := c.ComposeImages(context.Background(), solid(300, 200, gray), solid(10, 10, blue), "Hello", Offsets{})
	require.NoError(t, err)
	out := decodeResult(t, res)

	bright := 0
	for y := 150; y < 200; y++ {
		for x := 0; x < 300; x++ {
			px := rgbaAt(out, x, y)
			if px.R > 240 && px.G > 240 && px.B > 240 {
				bright++
			}
		}
	}
	assert.Positive(t, bright)
}

func TestUnusableFontFallsBackToBitmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.ttf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a font"), 0o600))

	c, err := New(Options{FontPath: path, SkipSystemFonts: true})
	require.NoError(t, err)
	assert.Equal(t, bitmapFontName, c.FontName())
	assert.False(t, c.font.scalable)
}

func TestApproxMeasurerCountsRunes(t *testing.T) {
	m := approxMeasurer{avgWidth: 7}
	assert.Equal(t, 35, m.Measure(nil, "héllo"))
	assert.Equal(t, 0, m.Measure(nil, ""))
}

func TestNewRejectsNegativeOptions(t *testing.T) {
	_, err := New(Options{FontSize: -1})
	assert.Error(t, err)
	_, err = New(Options{MaxPixels: -1})
	assert.True(t, err != nil && !errors.Is(err, ErrTooLarge))
}

func TestLabelNeverCoversReference(t *testing.T) {
	fonts := map[string]func(t *testing.T) *Compositor{
		"bitmap": bitmapCompositor,
		"scalable": func(t *testing.T) *Compositor {
			path := filepath.Join(t.TempDir(), "goregular.ttf")
			require.NoError(t, os.WriteFile(path, goregular.TTF, 0o600))
			c, err := New(Options{FontPath: path, SkipSystemFonts: true})
			require.NoError(t, err)
			return c
		},
	}
	for name, build := range fonts {
		c := build(t)
		for _, size := range []int{60, 80, 100} {
			t.Run(fmt.Sprintf("%s/%d", name, size), func(t *testing.T) {
				res, err := c.ComposeImages(context.Background(), solid(size, size, red), solid(RefSize, RefSize, blue), "Alice", Offsets{})
				require.NoError(t, err)
				out := decodeResult(t, res)

				at := PasteOrigin(size, size)
				for y := at.Y; y < at.Y+RefSize; y++ {
					for x := at.X; x < at.X+RefSize; x++ {
						require.Equal(t, blue, rgbaAt(out, x, y), "pixel (%d,%d)", x, y)
					}
				}
			})
		}
	}
}

func TestPlaceReference(t *testing.T) {
	cases := map[string]struct {
		w, h int
		off  Offsets
		want image.Point
	}{
		"no offset":         {200, 200, Offsets{}, image.Pt(70, 70)},
		"text only":         {200, 200, Offsets{TextX: 50, TextY: -5}, image.Pt(70, 70)},
		"right and up":      {200, 200, Offsets{ImageX: 20, ImageY: -10}, image.Pt(90, 60)},
		"clamped right":     {200, 200, Offsets{ImageX: 1000}, image.Pt(140, 70)},
		"clamped top left":  {200, 100, Offsets{ImageX: -500, ImageY: -500}, image.Pt(0, 0)},
		"small main shifts": {40, 30, Offsets{ImageX: 5}, image.Pt(-5, -15)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, PlaceReference(tc.w, tc.h, tc.off))
		})
	}
}

func TestComposeAppliesOffsets(t *testing.T) {
	c := bitmapCompositor(t)

	res, err := c.ComposeImages(context.Background(), solid(300, 200, gray), solid(10, 10, blue), "Hi",
		Offsets{ImageX: 30, ImageY: -20, TextX: -100, TextY: -100})
	require.NoError(t, err)
	out := decodeResult(t, res)

	// Reference moved from (120,70) to (150,50).
	assert.Equal(t, blue, rgbaAt(out, 150, 50))
	assert.Equal(t, blue, rgbaAt(out, 209, 109))
	assert.Equal(t, gray, rgbaAt(out, 149, 80))
	assert.Equal(t, gray, rgbaAt(out, 180, 110))

	// Label moved left and up, away from the bottom rows.
	whites := 0
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			if rgbaAt(out, x, y) != white {
				continue
			}
			whites++
			require.Less(t, x, 100, "white pixel at (%d,%d)", x, y)
			require.Less(t, y, 110, "white pixel at (%d,%d)", x, y)
		}
	}
	assert.Positive(t, whites)
}

func TestComposeRejectsOffsetOutOfRange(t *testing.T) {
	c := bitmapCompositor(t)

	_, err := c.ComposeImages(context.Background(), solid(10, 10, red), solid(1, 1, red), "", Offsets{TextY: MaxOffset + 1})
	var ce *CompositeError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrOffsetRange)
	assert.NoError(t, Offsets{ImageX: -MaxOffset, TextY: MaxOffset}.Validate())
	assert.True(t, Offsets{}.IsZero())
}

func TestDecodeHonorsContext(t *testing.T) {
	c := bitmapCompositor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Decode(ctx, pngBytes(t, solid(2, 2, red)))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, context.Canceled)
}
