package conversation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/state"
)

// DefaultStoreTimeout bounds each Recorder and Placement call.
const DefaultStoreTimeout = 5 * time.Second

// Compositor is the pixel pipeline used by the Controller.
type Compositor interface {
	Decode(ctx context.Context, data []byte) (image.Image, error)
	ComposeImages(ctx context.Context, mainImg, refImg image.Image, label string, off compositor.Offsets) (compositor.Result, error)
}

// Placement supplies the layout offsets a chat has chosen.
type Placement interface {
	Offsets(ctx context.Context, chatID int64) (compositor.Offsets, error)
}

// Merge describes a completed composite for a Recorder.
type Merge struct {
	ChatID      int64
	Label       string
	MainWidth   int
	MainHeight  int
	OutputBytes int
	Duration    time.Duration
	At          time.Time
}

// Recorder receives every successful merge after the chat is released.
// Errors are logged only.
type Recorder interface {
	RecordMerge(ctx context.Context, m Merge) error
}

// Options tunes a Controller.
type Options struct {
	// MaxLabelRunes rejects longer labels; 0 disables the check.
	MaxLabelRunes int
	Recorder      Recorder
	// Placement is optional; without it every merge uses the default layout.
	Placement Placement
	// StoreTimeout defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Controller maps (session state, event) to (next state, actions).
type Controller struct {
	store     state.Manager
	comp      Compositor
	maxLabel  int
	recorder  Recorder
	placement Placement
	timeout   time.Duration
	now       func() time.Time
	pending   sync.WaitGroup
}

// New wires a Controller to its session store and compositor.
func New(store state.Manager, comp Compositor, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Controller{
		store:     store,
		comp:      comp,
		maxLabel:  opts.MaxLabelRunes,
		recorder:  opts.Recorder,
		placement: opts.Placement,
		timeout:   timeout,
		now:       now,
	}
}

// Wait blocks until every merge handed to the Recorder is stored or failed.
func (c *Controller) Wait() { c.pending.Wait() }

// Sessions exposes the underlying store for status reporting.
func (c *Controller) Sessions() state.Manager { return c.store }

// HandleEvent advances the chat's session by one event. It always returns at
// least one action. The error classifies what went wrong, if anything:
// ErrInputType, ErrEmptyInput and ErrLabelTooLong keep the session in place,
// *compositor.DecodeError and *compositor.CompositeError reset it.
func (c *Controller) HandleEvent(ctx context.Context, chatID int64, ev Event) ([]Action, error) {
	sess, unlock := c.store.Lock(chatID)
	defer unlock()

	from := sess.State
	actions, err := c.dispatch(ctx, sess, ev)
	c.logTransition(ctx, chatID, ev, from, sess.State, err)
	return actions, err
}

func (c *Controller) dispatch(ctx context.Context, sess *state.Session, ev Event) ([]Action, error) {
	switch ev.Kind {
	case EventCancel:
		sess.Reset()
		return one(MsgCancelled, KeyboardMenu), nil
	case EventStart:
		sess.Reset()
		sess.State = state.StateAwaitingMain
		return one(MsgAskMain, KeyboardCancel), nil
	case EventImage, EventText:
	default:
		return one(MsgNeedStart, KeyboardMenu), fmt.Errorf("%w: event kind %d", ErrInputType, ev.Kind)
	}

	switch sess.State {
	case state.StateAwaitingMain:
		if ev.Kind != EventImage {
			return one(MsgNeedImage, KeyboardCancel), ErrInputType
		}
		img, err := c.decode(ctx, ev.Image, "main")
		if err != nil {
			sess.Reset()
			return one(MsgDecodeFailed, KeyboardMenu), err
		}
		sess.Main = img
		sess.State = state.StateAwaitingReference
		return one(MsgAskReference, KeyboardCancel), nil

	case state.StateAwaitingReference:
		if ev.Kind != EventImage {
			return one(MsgNeedImage, KeyboardCancel), ErrInputType
		}
		img, err := c.decode(ctx, ev.Image, "reference")
		if err != nil {
			sess.Reset()
			return one(MsgDecodeFailed, KeyboardMenu), err
		}
		sess.Reference = img
		sess.State = state.StateAwaitingName
		return one(MsgAskName, KeyboardCancel), nil

	case state.StateAwaitingName:
		if ev.Kind != EventText {
			return one(MsgNeedText, KeyboardCancel), ErrInputType
		}
		label := strings.TrimSpace(ev.Text)
		if label == "" {
			return one(MsgNeedName, KeyboardCancel), ErrEmptyInput
		}
		if c.maxLabel > 0 && utf8.RuneCountInString(label) > c.maxLabel {
			return one(msgLabelTooLong(c.maxLabel), KeyboardCancel), ErrLabelTooLong
		}
		return c.complete(ctx, sess, label)

	default:
		// Idle, or a Done session that was never committed.
		sess.Reset()
		return one(MsgNeedStart, KeyboardMenu), nil
	}
}

func (c *Controller) decode(ctx context.Context, data []byte, input string) (image.Image, error) {
	img, err := c.comp.Decode(ctx, data)
	if err != nil {
		var de *compositor.DecodeError
		if errors.As(err, &de) {
			de.Input = input
			return nil, de
		}
		return nil, &compositor.DecodeError{Input: input, Err: err}
	}
	return img, nil
}

func (c *Controller) complete(ctx context.Context, sess *state.Session, label string) ([]Action, error) {
	off := c.offsets(ctx, sess.ChatID)
	start := c.now()
	res, err := c.compose(ctx, sess.Main, sess.Reference, label, off)
	if err != nil {
		sess.Reset()
		return one(MsgFailed, KeyboardMenu), err
	}
	sess.State = state.StateDone

	c.record(ctx, Merge{
		ChatID:      sess.ChatID,
		Label:       label,
		MainWidth:   res.Width,
		MainHeight:  res.Height,
		OutputBytes: len(res.Data),
		Duration:    c.now().Sub(start),
		At:          start,
	})

	return []Action{
		{
			Kind:     ActionImage,
			Image:    res.Data,
			Filename: ResultFilename,
			Label:    label,
		},
		textAction(MsgDone, KeyboardMenu),
	}, nil
}

// offsets falls back to the default layout when the lookup fails.
func (c *Controller) offsets(ctx context.Context, chatID int64) compositor.Offsets {
	if c.placement == nil {
		return compositor.Offsets{}
	}
	lctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	off, err := c.placement.Offsets(lctx, chatID)
	if err != nil {
		logger.LogEvent(ctx, logger.Conv, slog.LevelWarn, "placement.lookup",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return compositor.Offsets{}
	}
	return off
}

// record stores m in the background so neither the reply nor the chat lock
// waits on the Recorder.
func (c *Controller) record(ctx context.Context, m Merge) {
	if c.recorder == nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		if err := c.recorder.RecordMerge(rctx, m); err != nil {
			logger.LogEvent(rctx, logger.Conv, slog.LevelWarn, "merge.record",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// compose shields the session from a panicking compositor.
func (c *Controller) compose(ctx context.Context, mainImg, refImg image.Image, label string, off compositor.Offsets) (res compositor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = compositor.Result{}
			err = &compositor.CompositeError{Op: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()
	res, err = c.comp.ComposeImages(ctx, mainImg, refImg, label, off)
	if err != nil {
		var ce *compositor.CompositeError
		if !errors.As(err, &ce) {
			err = &compositor.CompositeError{Op: "compose", Err: err}
		}
	}
	return res, err
}

func (c *Controller) logTransition(ctx context.Context, chatID int64, ev Event, from, to state.State, err error) {
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("kind", ev.Kind.String()),
		slog.String("state", string(from)),
		slog.String("next_state", string(to)),
	}
	if err != nil {
		attrs[0] = slog.String("status", "fail")
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		if Fatal(err) {
			level = slog.LevelWarn
		}
	}
	logger.LogEvent(ctx, logger.Conv, level, "conversation.transition", attrs...)
}

func one(text string, kb Keyboard) []Action {
	return []Action{textAction(text, kb)}
}
