// Package bot adapts Telegram updates to conversation events and delivers
// the resulting actions back to the chat.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/mergebot/core/conversation"
	"github.com/m3rciful/mergebot/core/history"
	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/metrics"
	"github.com/m3rciful/mergebot/core/placement"
	tgformat "github.com/m3rciful/mergebot/core/telegram/format"
	"github.com/m3rciful/mergebot/core/telegram/helpers"
	"github.com/m3rciful/mergebot/core/telegram/keyboard"
	"github.com/m3rciful/mergebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// DefaultMaxDownloadBytes matches the Bot API download limit.
const DefaultMaxDownloadBytes = 20 << 20

const mimePNG = "image/png"

var errFileTooLarge = errors.New("file too large")

// Conversation advances one chat by one event.
type Conversation interface {
	HandleEvent(ctx context.Context, chatID int64, ev conversation.Event) ([]conversation.Action, error)
}

// HistorySource reads merge history.
type HistorySource interface {
	Stats(ctx context.Context) (history.Stats, error)
	Recent(ctx context.Context, chatID int64, limit int) ([]history.Record, error)
}

// SessionCounter reports how many chats are mid-merge.
type SessionCounter interface {
	Len() int
}

// Fetcher downloads a file referenced by an update.
type Fetcher func(c tele.Context, f *tele.File) (io.ReadCloser, error)

// Poster sends to a chat other than the one that produced the update.
type Poster func(c tele.Context, to tele.Recipient, what any) error

// Options wires a Handler.
type Options struct {
	Conversation Conversation
	Sessions     SessionCounter
	// History is nil when no database is configured.
	History HistorySource
	// Placement backs /settings, /offset and /preset.
	Placement placement.Store
	Metrics   *metrics.Collectors
	// ShareChatID is a numeric chat id or @username; empty disables sharing.
	ShareChatID      string
	FontName         string
	MaxDownloadBytes int64
	Fetch            Fetcher
	Post             Poster
}

// Handler serves the bot's commands and conversation messages.
type Handler struct {
	conv      Conversation
	sessions  SessionCounter
	history   HistorySource
	placement placement.Store
	metrics   *metrics.Collectors
	share     tele.Recipient
	fontName  string
	maxBytes  int64
	fetch     Fetcher
	post      Poster
}

// New validates opts and returns a Handler.
func New(opts Options) (*Handler, error) {
	if opts.Conversation == nil {
		return nil, errors.New("bot: nil conversation")
	}
	if opts.Placement == nil {
		return nil, errors.New("bot: nil placement store")
	}
	share, err := ParseRecipient(opts.ShareChatID)
	if err != nil {
		return nil, err
	}
	maxBytes := opts.MaxDownloadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	fetch := opts.Fetch
	if fetch == nil {
		fetch = func(c tele.Context, f *tele.File) (io.ReadCloser, error) {
			return c.Bot().File(f)
		}
	}
	post := opts.Post
	if post == nil {
		post = func(c tele.Context, to tele.Recipient, what any) error {
			_, err := c.Bot().Send(to, what)
			return err
		}
	}
	return &Handler{
		conv:      opts.Conversation,
		sessions:  opts.Sessions,
		history:   opts.History,
		placement: opts.Placement,
		metrics:   opts.Metrics,
		share:     share,
		fontName:  opts.FontName,
		maxBytes:  maxBytes,
		fetch:     fetch,
		post:      post,
	}, nil
}

// channel addresses a public chat by @username.
type channel string

func (ch channel) Recipient() string { return string(ch) }

// ParseRecipient turns a configured chat reference into a Recipient. An empty
// value yields nil.
func ParseRecipient(raw string) (tele.Recipient, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, nil
	case strings.HasPrefix(raw, "@") && len(raw) > 1:
		return channel(raw), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bot: invalid share chat %q", raw)
	}
	return tele.ChatID(id), nil
}

func (h *Handler) OnStart(c tele.Context) error  { return h.handle(c, conversation.Start()) }
func (h *Handler) OnCancel(c tele.Context) error { return h.handle(c, conversation.Cancel()) }

func (h *Handler) OnHelp(c tele.Context) error {
	return helpers.SendText(c, MsgHelp)
}

// OnStats reports live sessions, history totals and the label font.
func (h *Handler) OnStats(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.Len()
	}

	var b strings.Builder
	b.WriteString("*Stats*\n")
	fmt.Fprintf(&b, "Active sessions: %s\n", tgformat.MustEscapeV2(strconv.Itoa(sessions)))
	switch {
	case h.history == nil:
		b.WriteString("History: disabled\n")
	default:
		st, err := h.history.Stats(ctx)
		if err != nil {
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "stats.history",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			b.WriteString("History: unavailable\n")
		} else {
			fmt.Fprintf(&b, "Merges: %s in %s chats\n",
				tgformat.MustEscapeV2(strconv.FormatInt(st.Total, 10)),
				tgformat.MustEscapeV2(strconv.FormatInt(st.Chats, 10)))
		}
	}
	if h.fontName != "" {
		fmt.Fprintf(&b, "Font: %s\n", tgformat.MustEscapeV2(h.fontName))
	}
	return helpers.SendMDV2(c, strings.TrimRight(b.String(), "\n"))
}

// historyLimit is how many merges /history lists.
const historyLimit = 5

// OnHistory lists the chat's latest merges.
func (h *Handler) OnHistory(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	if h.history == nil {
		return helpers.SendText(c, MsgHistoryDisabled)
	}
	ctx, cancel := h.storeContext(c)
	defer cancel()
	recs, err := h.history.Recent(ctx, chat.ID, historyLimit)
	if err != nil {
		h.logStoreError(ctx, "history.recent", err)
		return helpers.SendText(c, MsgHistoryUnavailable)
	}
	if len(recs) == 0 {
		return helpers.SendText(c, MsgHistoryEmpty)
	}
	var b strings.Builder
	b.WriteString("Your latest merges:")
	for _, r := range recs {
		fmt.Fprintf(&b, "\n%s  %s (%dx%d)", r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Label, r.MainWidth, r.MainHeight)
	}
	return helpers.SendText(c, b.String())
}

// OnLimited answers an update dropped by the rate limiter.
func (h *Handler) OnLimited(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}
	h.metrics.ObserveUpdate("rate_limited")
	return helpers.SendText(c, MsgTooFast)
}

// OnText forwards plain text. Unknown slash commands get the help text.
func (h *Handler) OnText(c tele.Context) error {
	text := c.Text()
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return h.OnHelp(c)
	}
	return h.handle(c, conversation.Text(text))
}

// OnMedia downloads a photo or image document and forwards it.
func (h *Handler) OnMedia(c tele.Context) error {
	file, ok := imageFile(c.Message())
	if !ok {
		return h.OnOther(c)
	}
	data, err := h.download(c, file)
	if err != nil {
		ctx := helpers.BuildContext(c)
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "file.download",
			slog.String("status", "fail"),
			slog.String("err_kind", downloadErrKind(err)),
			slog.String("err", netutil.Redact(err)),
		)
		msg := MsgDownloadFailed
		if errors.Is(err, errFileTooLarge) {
			msg = MsgFileTooLarge
		}
		return h.deliver(c, []conversation.Action{{Kind: conversation.ActionText, Text: msg}})
	}
	return h.handle(c, conversation.Image(data))
}

// OnOther handles content that can never be an input. It reaches the
// conversation as empty text so the current step reprompts.
func (h *Handler) OnOther(c tele.Context) error {
	return h.handle(c, conversation.Text(""))
}

func (h *Handler) handle(c tele.Context, ev conversation.Event) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	h.metrics.ObserveUpdate(ev.Kind.String())
	ctx := helpers.BuildContext(c)
	actions, err := h.conv.HandleEvent(ctx, chat.ID, ev)
	if err != nil && !conversation.Recoverable(err) && !conversation.Fatal(err) {
		logger.LogEvent(ctx, logger.TG, slog.LevelError, "conversation.error",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return h.deliver(c, actions)
}

// deliver sends actions in order as one job, posting images to the share
// chat right after they reach the user.
func (h *Handler) deliver(c tele.Context, actions []conversation.Action) error {
	steps := make([]helpers.Step, 0, len(actions)+1)
	withKB := false
	for _, a := range actions {
		withKB = withKB || markup(a.Keyboard) != nil
		steps = append(steps, h.step(c, a))
		if a.Kind == conversation.ActionImage && h.share != nil {
			steps = append(steps, h.shareStep(c, a))
		}
	}
	return helpers.SendSequence(c, "reply", withKB, steps...)
}

func (h *Handler) step(c tele.Context, a conversation.Action) helpers.Step {
	return func() error {
		var what any = a.Text
		if a.Kind == conversation.ActionImage {
			what = document(a, "")
		}
		var err error
		if rm := markup(a.Keyboard); rm != nil {
			err = c.Send(what, rm)
		} else {
			err = c.Send(what)
		}
		h.metrics.ObserveSend(a.Kind.String(), err)
		return err
	}
}

// shareStep never fails the sequence; the user gets a note instead.
func (h *Handler) shareStep(c tele.Context, a conversation.Action) helpers.Step {
	return func() error {
		err := h.post(c, h.share, document(a, ShareCaption(c.Sender(), a.Label)))
		h.metrics.ObserveSend("share", err)
		if err == nil {
			return nil
		}
		logger.LogEvent(helpers.BuildContext(c), logger.TG, slog.LevelWarn, "share.send",
			slog.String("status", "fail"),
			slog.String("recipient", h.share.Recipient()),
			slog.String("err", netutil.Redact(err)),
		)
		return c.Send(MsgShareFailed)
	}
}

// ShareCaption credits the user who made the image.
func ShareCaption(u *tele.User, label string) string {
	var who string
	if u != nil {
		who = strings.TrimSpace(u.FirstName)
		if u.Username != "" {
			who = strings.TrimSpace(who + " (@" + u.Username + ")")
		}
	}
	if who == "" {
		who = "someone"
	}
	return "Created by " + who + "\nText: " + label
}

func document(a conversation.Action, caption string) *tele.Document {
	return &tele.Document{
		File:     tele.FromReader(bytes.NewReader(a.Image)),
		FileName: a.Filename,
		MIME:     mimePNG,
		Caption:  caption,
	}
}

func markup(kb conversation.Keyboard) *tele.ReplyMarkup {
	switch kb {
	case conversation.KeyboardCancel:
		return keyboard.CancelMarkup()
	case conversation.KeyboardMenu:
		return keyboard.MenuMarkup()
	default:
		return nil
	}
}

// imageFile picks the downloadable image of a message. Documents count only
// when their MIME type is image/*.
func imageFile(msg *tele.Message) (*tele.File, bool) {
	switch {
	case msg == nil:
		return nil, false
	case msg.Photo != nil:
		return &msg.Photo.File, true
	case msg.Document != nil && strings.HasPrefix(strings.ToLower(msg.Document.MIME), "image/"):
		return &msg.Document.File, true
	default:
		return nil, false
	}
}

func (h *Handler) download(c tele.Context, f *tele.File) ([]byte, error) {
	if int64(f.FileSize) > h.maxBytes {
		return nil, errFileTooLarge
	}
	rc, err := h.fetch(c, f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, h.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxBytes {
		return nil, errFileTooLarge
	}
	return data, nil
}

func downloadErrKind(err error) string {
	if errors.Is(err, errFileTooLarge) {
		return "too_large"
	}
	return "fetch"
}
