package compositor

import (
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/m3rciful/mergebot/core/logger"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// DefaultFontCandidates are tried, in order, when no font path is configured.
var DefaultFontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/Library/Fonts/Arial.ttf",
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	`C:\Windows\Fonts\arial.ttf`,
}

// bitmapFontName identifies the built-in fallback face in logs and tests.
const bitmapFontName = "basicfont-7x13"

// TextMeasurer reports the rendered width of a label in pixels.
type TextMeasurer interface {
	Measure(face font.Face, text string) int
}

// faceMeasurer sums glyph advances and kerning of the face.
type faceMeasurer struct{}

func (faceMeasurer) Measure(face font.Face, text string) int {
	return font.MeasureString(face, text).Ceil()
}

// approxMeasurer multiplies the rune count by an average glyph width.
type approxMeasurer struct {
	avgWidth int
}

func (m approxMeasurer) Measure(_ font.Face, text string) int {
	return utf8.RuneCountInString(text) * m.avgWidth
}

// fontSource is chosen once per Compositor. Scalable faces are not safe for
// concurrent use, so a fresh face is built for every composite.
type fontSource struct {
	name     string
	scalable bool
	newFace  func() (font.Face, error)
	measurer TextMeasurer
}

func selectFont(opts Options) fontSource {
	var paths []string
	if opts.FontPath != "" {
		paths = append(paths, opts.FontPath)
	}
	if !opts.SkipSystemFonts {
		paths = append(paths, DefaultFontCandidates...)
	}

	for _, path := range paths {
		src, err := scalableFont(path, opts.FontSize)
		if err == nil {
			return src
		}
		if path == opts.FontPath {
			logger.Comp.Warn("configured font unusable",
				slog.String("event", "font.load"),
				slog.String("status", "fail"),
				slog.String("font", path),
				slog.String("err", err.Error()),
			)
		}
	}

	face := basicfont.Face7x13
	return fontSource{
		name:     bitmapFontName,
		newFace:  func() (font.Face, error) { return face, nil },
		measurer: approxMeasurer{avgWidth: face.Advance},
	}
}

func scalableFont(path string, size float64) (fontSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fontSource{}, err
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return fontSource{}, fmt.Errorf("parse font: %w", err)
	}
	newFace := func() (font.Face, error) {
		return opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	}
	// Build one face up front so a font that parses but cannot render falls through.
	face, err := newFace()
	if err != nil {
		return fontSource{}, fmt.Errorf("build face: %w", err)
	}
	_ = face.Close()
	return fontSource{
		name:     path,
		scalable: true,
		newFace:  newFace,
		measurer: faceMeasurer{},
	}, nil
}
