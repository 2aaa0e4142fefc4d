package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode parses a raster image, checking its dimensions before the full decode.
func (c *Compositor) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return decode(data, c.opts.MaxPixels)
}

func decode(data []byte, maxPixels int) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyInput}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}
