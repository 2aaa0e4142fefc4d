package metrics

import (
	"context"
	"image"
	"time"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/conversation"
)

type instrumented struct {
	next conversation.Compositor
	c    *Collectors
}

// InstrumentCompositor counts decode and composite outcomes and times composites.
func InstrumentCompositor(next conversation.Compositor, c *Collectors) conversation.Compositor {
	if c == nil {
		return next
	}
	return &instrumented{next: next, c: c}
}

func (i *instrumented) Decode(ctx context.Context, data []byte) (image.Image, error) {
	img, err := i.next.Decode(ctx, data)
	if err != nil {
		i.c.Composites.WithLabelValues(OutcomeDecodeFailed).Inc()
	}
	return img, err
}

func (i *instrumented) ComposeImages(ctx context.Context, mainImg, refImg image.Image, label string, off compositor.Offsets) (compositor.Result, error) {
	start := time.Now()
	res, err := i.next.ComposeImages(ctx, mainImg, refImg, label, off)
	if err != nil {
		i.c.Composites.WithLabelValues(OutcomeCompositeFailed).Inc()
		return res, err
	}
	i.c.ComposeDuration.Observe(time.Since(start).Seconds())
	i.c.Composites.WithLabelValues(OutcomeOK).Inc()
	return res, nil
}
