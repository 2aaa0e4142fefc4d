package bot

import (
	"context"
	"image"

	"golang.org/x/sync/semaphore"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/conversation"
)

// Pool bounds how many decodes and composites run at once across all chats.
type Pool struct {
	next conversation.Compositor
	sem  *semaphore.Weighted
}

// NewPool wraps next with a limit of workers concurrent calls.
func NewPool(next conversation.Compositor, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{next: next, sem: semaphore.NewWeighted(int64(workers))}
}

// Decode waits for a free slot unless ctx ends first.
func (p *Pool) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, &compositor.DecodeError{Err: err}
	}
	defer p.sem.Release(1)
	return p.next.Decode(ctx, data)
}

func (p *Pool) ComposeImages(ctx context.Context, mainImg, refImg image.Image, label string, off compositor.Offsets) (compositor.Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return compositor.Result{}, &compositor.CompositeError{Op: "queue", Err: err}
	}
	defer p.sem.Release(1)
	return p.next.ComposeImages(ctx, mainImg, refImg, label, off)
}
