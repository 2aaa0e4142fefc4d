package conversation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chat int64 = 42

type fakeCompositor struct {
	mu          sync.Mutex
	composed    int
	lastLabel   string
	lastOffsets compositor.Offsets
	composeErr  error
	panicWith   any
}

func (f *fakeCompositor) Decode(_ context.Context, data []byte) (image.Image, error) {
	if string(data) == "corrupt" {
		return nil, &compositor.DecodeError{Err: errors.New("unknown format")}
	}
	return image.NewRGBA(image.Rect(0, 0, len(data), len(data))), nil
}

func (f *fakeCompositor) ComposeImages(_ context.Context, mainImg, _ image.Image, label string, off compositor.Offsets) (compositor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composed++
	f.lastLabel = label
	f.lastOffsets = off
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.composeErr != nil {
		return compositor.Result{}, f.composeErr
	}
	b := mainImg.Bounds()
	return compositor.Result{Data: []byte("png:" + label), Format: compositor.FormatPNG, Width: b.Dx(), Height: b.Dy()}, nil
}

type memRecorder struct {
	mu     sync.Mutex
	merges []Merge
	err    error
}

func (r *memRecorder) RecordMerge(_ context.Context, m Merge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merges = append(r.merges, m)
	return r.err
}

// blockingRecorder holds every RecordMerge until release is closed or the
// call's context ends.
type blockingRecorder struct {
	release chan struct{}
	results chan error
}

func (r *blockingRecorder) RecordMerge(ctx context.Context, _ Merge) error {
	var err error
	select {
	case <-r.release:
	case <-ctx.Done():
		err = ctx.Err()
	}
	r.results <- err
	return err
}

type fixedPlacement struct {
	off compositor.Offsets
	err error
}

func (p fixedPlacement) Offsets(context.Context, int64) (compositor.Offsets, error) {
	return p.off, p.err
}

func newController(t *testing.T, comp Compositor, opts Options) (*Controller, state.Manager) {
	t.Helper()
	store := state.NewMemoryManager()
	return New(store, comp, opts), store
}

func send(t *testing.T, c *Controller, ev Event) ([]Action, error) {
	t.Helper()
	actions, err := c.HandleEvent(context.Background(), chat, ev)
	require.NotEmpty(t, actions)
	return actions, err
}

// advance drives the chat to the given state with valid input.
func advance(t *testing.T, c *Controller, to state.State) {
	t.Helper()
	steps := []Event{Start(), Image([]byte("main-image")), Image([]byte("ref"))}
	targets := []state.State{state.StateAwaitingMain, state.StateAwaitingReference, state.StateAwaitingName}
	for i, ev := range steps {
		_, err := send(t, c, ev)
		require.NoError(t, err)
		if targets[i] == to {
			return
		}
	}
	t.Fatalf("cannot advance to %s", to)
}

func TestHappyPath(t *testing.T) {
	fake := &fakeCompositor{}
	rec := &memRecorder{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c, store := newController(t, fake, Options{Recorder: rec, Now: func() time.Time { return now }})

	actions, err := send(t, c, Start())
	require.NoError(t, err)
	assert.Equal(t, []Action{{Kind: ActionText, Text: MsgAskMain, Keyboard: KeyboardCancel}}, actions)
	assert.Equal(t, state.StateAwaitingMain, store.GetState(chat))

	actions, err = send(t, c, Image([]byte("main-image")))
	require.NoError(t, err)
	assert.Equal(t, MsgAskReference, actions[0].Text)
	assert.Equal(t, state.StateAwaitingReference, store.GetState(chat))

	actions, err = send(t, c, Image([]byte("ref")))
	require.NoError(t, err)
	assert.Equal(t, MsgAskName, actions[0].Text)
	assert.Equal(t, state.StateAwaitingName, store.GetState(chat))

	actions, err = send(t, c, Text("  Alice \n"))
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionImage, actions[0].Kind)
	assert.Equal(t, []byte("png:Alice"), actions[0].Image)
	assert.Equal(t, ResultFilename, actions[0].Filename)
	assert.Equal(t, "Alice", actions[0].Label)
	assert.Equal(t, Action{Kind: ActionText, Text: MsgDone, Keyboard: KeyboardMenu}, actions[1])

	assert.Equal(t, "Alice", fake.lastLabel)
	assert.True(t, fake.lastOffsets.IsZero())
	assert.Equal(t, state.StateIdle, store.GetState(chat))
	assert.Equal(t, 0, store.Len())

	c.Wait()
	require.Len(t, rec.merges, 1)
	assert.Equal(t, Merge{ChatID: chat, Label: "Alice", MainWidth: 10, MainHeight: 10, OutputBytes: 9, At: now}, rec.merges[0])
}

func TestIdleIgnoresInput(t *testing.T) {
	c, store := newController(t, &fakeCompositor{}, Options{})

	for _, ev := range []Event{Text("hello"), Image([]byte("img"))} {
		actions, err := send(t, c, ev)
		require.NoError(t, err)
		assert.Equal(t, []Action{{Kind: ActionText, Text: MsgNeedStart, Keyboard: KeyboardMenu}}, actions)
		assert.Equal(t, state.StateIdle, store.GetState(chat))
	}
}

func TestOutOfOrderInputKeepsState(t *testing.T) {
	cases := map[string]struct {
		at   state.State
		ev   Event
		want string
	}{
		"text for main":      {state.StateAwaitingMain, Text("hi"), MsgNeedImage},
		"text for reference": {state.StateAwaitingReference, Text("hi"), MsgNeedImage},
		"image for name":     {state.StateAwaitingName, Image([]byte("img")), MsgNeedText},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &fakeCompositor{}
			c, store := newController(t, fake, Options{})
			advance(t, c, tc.at)

			actions, err := send(t, c, tc.ev)
			require.ErrorIs(t, err, ErrInputType)
			assert.True(t, Recoverable(err))
			require.Len(t, actions, 1)
			assert.Equal(t, tc.want, actions[0].Text)
			assert.Equal(t, tc.at, store.GetState(chat))
			assert.Zero(t, fake.composed)
		})
	}
}

func TestBlankNameReprompts(t *testing.T) {
	fake := &fakeCompositor{}
	c, store := newController(t, fake, Options{})
	advance(t, c, state.StateAwaitingName)

	actions, err := send(t, c, Text("   "))
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Len(t, actions, 1)
	assert.Equal(t, MsgNeedName, actions[0].Text)
	assert.Equal(t, state.StateAwaitingName, store.GetState(chat))
	assert.Zero(t, fake.composed)
}

func TestLongNameReprompts(t *testing.T) {
	fake := &fakeCompositor{}
	c, store := newController(t, fake, Options{MaxLabelRunes: 5})
	advance(t, c, state.StateAwaitingName)

	actions, err := send(t, c, Text("ñññññ!"))
	require.ErrorIs(t, err, ErrLabelTooLong)
	assert.True(t, Recoverable(err))
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Text, "5")
	assert.Equal(t, state.StateAwaitingName, store.GetState(chat))

	_, err = send(t, c, Text("ñññññ"))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.composed)
}

func TestCancelFromAnyState(t *testing.T) {
	for _, at := range []state.State{state.StateIdle, state.StateAwaitingMain, state.StateAwaitingReference, state.StateAwaitingName} {
		t.Run(string(at), func(t *testing.T) {
			c, store := newController(t, &fakeCompositor{}, Options{})
			if at != state.StateIdle {
				advance(t, c, at)
			}

			actions, err := send(t, c, Cancel())
			require.NoError(t, err)
			assert.Equal(t, []Action{{Kind: ActionText, Text: MsgCancelled, Keyboard: KeyboardMenu}}, actions)
			assert.Equal(t, state.StateIdle, store.GetState(chat))

			sess, unlock := store.Lock(chat)
			assert.Nil(t, sess.Main)
			assert.Nil(t, sess.Reference)
			unlock()

			_, err = send(t, c, Start())
			require.NoError(t, err)
			assert.Equal(t, state.StateAwaitingMain, store.GetState(chat))
		})
	}
}

func TestStartRestartsMidConversation(t *testing.T) {
	c, store := newController(t, &fakeCompositor{}, Options{})
	advance(t, c, state.StateAwaitingName)

	actions, err := send(t, c, Start())
	require.NoError(t, err)
	assert.Equal(t, MsgAskMain, actions[0].Text)

	sess, unlock := store.Lock(chat)
	defer unlock()
	assert.Equal(t, state.StateAwaitingMain, sess.State)
	assert.Nil(t, sess.Main)
	assert.Nil(t, sess.Reference)
}

func TestCorruptImageResets(t *testing.T) {
	for _, at := range []state.State{state.StateAwaitingMain, state.StateAwaitingReference} {
		t.Run(string(at), func(t *testing.T) {
			c, store := newController(t, &fakeCompositor{}, Options{})
			advance(t, c, at)

			actions, err := send(t, c, Image([]byte("corrupt")))
			var de *compositor.DecodeError
			require.ErrorAs(t, err, &de)
			assert.True(t, Fatal(err))
			if at == state.StateAwaitingMain {
				assert.Equal(t, "main", de.Input)
			} else {
				assert.Equal(t, "reference", de.Input)
			}
			require.Len(t, actions, 1)
			assert.Equal(t, MsgDecodeFailed, actions[0].Text)
			assert.Equal(t, state.StateIdle, store.GetState(chat))
		})
	}
}

func TestCompositeFailureResets(t *testing.T) {
	cases := map[string]*fakeCompositor{
		"typed":  {composeErr: &compositor.CompositeError{Op: "encode", Err: errors.New("boom")}},
		"plain":  {composeErr: errors.New("semaphore closed")},
		"panics": {panicWith: "index out of range"},
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &memRecorder{}
			c, store := newController(t, fake, Options{Recorder: rec})
			advance(t, c, state.StateAwaitingName)

			actions, err := send(t, c, Text("Alice"))
			var ce *compositor.CompositeError
			require.ErrorAs(t, err, &ce)
			require.Len(t, actions, 1)
			assert.Equal(t, MsgFailed, actions[0].Text)
			assert.Equal(t, state.StateIdle, store.GetState(chat))
			c.Wait()
			assert.Empty(t, rec.merges)
		})
	}
}

func TestRecorderFailureIsNotSurfaced(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	c, _ := newController(t, &fakeCompositor{}, Options{Recorder: rec})
	advance(t, c, state.StateAwaitingName)

	actions, err := send(t, c, Text("Alice"))
	require.NoError(t, err)
	assert.Len(t, actions, 2)
	c.Wait()
	assert.Len(t, rec.merges, 1)
}

func TestSlowRecorderDoesNotHoldTheChat(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{}), results: make(chan error, 1)}
	c, store := newController(t, &fakeCompositor{}, Options{Recorder: rec, StoreTimeout: time.Minute})
	advance(t, c, state.StateAwaitingName)

	done := make(chan []Action, 1)
	go func() {
		actions, _ := c.HandleEvent(context.Background(), chat, Text("Alice"))
		done <- actions
	}()
	select {
	case actions := <-done:
		require.Len(t, actions, 2)
		assert.Equal(t, ActionImage, actions[0].Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("result waited for the recorder")
	}

	cancelled := make(chan struct{})
	go func() {
		_, _ = c.HandleEvent(context.Background(), chat, Start())
		_, _ = c.HandleEvent(context.Background(), chat, Cancel())
		close(cancelled)
	}()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel waited for the recorder")
	}
	assert.Equal(t, state.StateIdle, store.GetState(chat))

	close(rec.release)
	c.Wait()
	assert.NoError(t, <-rec.results)
}

func TestRecorderCallIsBounded(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{}), results: make(chan error, 1)}
	c, _ := newController(t, &fakeCompositor{}, Options{Recorder: rec, StoreTimeout: 20 * time.Millisecond})
	advance(t, c, state.StateAwaitingName)

	_, err := send(t, c, Text("Alice"))
	require.NoError(t, err)
	c.Wait()
	assert.ErrorIs(t, <-rec.results, context.DeadlineExceeded)
}

func TestPlacementOffsetsReachCompositor(t *testing.T) {
	want := compositor.Offsets{ImageX: 12, TextY: -8}
	fake := &fakeCompositor{}
	c, _ := newController(t, fake, Options{Placement: fixedPlacement{off: want}})
	advance(t, c, state.StateAwaitingName)

	_, err := send(t, c, Text("Alice"))
	require.NoError(t, err)
	assert.Equal(t, want, fake.lastOffsets)
}

func TestPlacementFailureUsesDefaultLayout(t *testing.T) {
	fake := &fakeCompositor{}
	c, _ := newController(t, fake, Options{Placement: fixedPlacement{
		off: compositor.Offsets{ImageX: 99},
		err: errors.New("db down"),
	}})
	advance(t, c, state.StateAwaitingName)

	actions, err := send(t, c, Text("Alice"))
	require.NoError(t, err)
	assert.Len(t, actions, 2)
	assert.True(t, fake.lastOffsets.IsZero())
}

func TestUnknownEventKind(t *testing.T) {
	c, store := newController(t, &fakeCompositor{}, Options{})
	advance(t, c, state.StateAwaitingReference)

	actions, err := send(t, c, Event{Kind: EventKind(99)})
	require.ErrorIs(t, err, ErrInputType)
	assert.Len(t, actions, 1)
	assert.Equal(t, state.StateAwaitingReference, store.GetState(chat))
}

func TestSessionsAreIsolated(t *testing.T) {
	c, store := newController(t, &fakeCompositor{}, Options{})
	ctx := context.Background()

	_, err := c.HandleEvent(ctx, 1, Start())
	require.NoError(t, err)
	_, err = c.HandleEvent(ctx, 2, Start())
	require.NoError(t, err)
	_, err = c.HandleEvent(ctx, 1, Image([]byte("main")))
	require.NoError(t, err)
	_, err = c.HandleEvent(ctx, 2, Cancel())
	require.NoError(t, err)

	assert.Equal(t, state.StateAwaitingReference, store.GetState(1))
	assert.Equal(t, state.StateIdle, store.GetState(2))
	assert.Equal(t, 1, store.Len())
}

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIdenticalSessionsProduceIdenticalOutput(t *testing.T) {
	comp, err := compositor.New(compositor.Options{SkipSystemFonts: true})
	require.NoError(t, err)
	c, _ := newController(t, comp, Options{})

	mainData := encodePNG(t, 160, 120, color.NRGBA{R: 10, G: 90, B: 200, A: 255})
	refData := encodePNG(t, 200, 200, color.NRGBA{R: 250, G: 200, A: 128})

	run := func(chatID int64) []byte {
		ctx := context.Background()
		for _, ev := range []Event{Start(), Image(mainData), Image(refData)} {
			_, err := c.HandleEvent(ctx, chatID, ev)
			require.NoError(t, err)
		}
		actions, err := c.HandleEvent(ctx, chatID, Text("Alice"))
		require.NoError(t, err)
		require.Equal(t, ActionImage, actions[0].Kind)
		return actions[0].Image
	}

	first, second := run(7), run(8)
	assert.True(t, bytes.Equal(first, second))

	out, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 120), out.Bounds())
}

func TestCorruptReferenceWithRealCompositor(t *testing.T) {
	comp, err := compositor.New(compositor.Options{SkipSystemFonts: true})
	require.NoError(t, err)
	c, store := newController(t, comp, Options{})

	_, err = send(t, c, Start())
	require.NoError(t, err)
	_, err = send(t, c, Image(encodePNG(t, 80, 80, color.White)))
	require.NoError(t, err)

	actions, err := send(t, c, Image([]byte(strings.Repeat("\x89PNG garbage", 4))))
	var de *compositor.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "reference", de.Input)
	assert.Len(t, actions, 1)
	assert.Equal(t, state.StateIdle, store.GetState(chat))
}

func TestConcurrentEventsSerializePerChat(t *testing.T) {
	fake := &fakeCompositor{}
	c, store := newController(t, fake, Options{})
	advance(t, c, state.StateAwaitingName)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.HandleEvent(context.Background(), chat, Text("Alice"))
		}(i)
	}
	wg.Wait()

	// The first event completes the merge; the rest find an idle session.
	assert.Equal(t, 1, fake.composed)
	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, state.StateIdle, store.GetState(chat))
}
