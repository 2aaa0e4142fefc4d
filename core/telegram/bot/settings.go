package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/placement"
	"github.com/m3rciful/mergebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// storeTimeout bounds one settings or history lookup.
const storeTimeout = 5 * time.Second

// OnSettings shows the chat's current positions and presets.
func (h *Handler) OnSettings(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	ctx, cancel := h.storeContext(c)
	defer cancel()

	off, err := h.placement.Offsets(ctx, chat.ID)
	if err != nil {
		h.logStoreError(ctx, "placement.offsets", err)
		return helpers.SendText(c, MsgSettingsUnavailable)
	}
	presets, err := h.placement.Presets(ctx, chat.ID)
	if err != nil {
		h.logStoreError(ctx, "placement.presets", err)
		return helpers.SendText(c, MsgSettingsUnavailable)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current positions: %s\n", placement.Describe(off))
	b.WriteString(presetList(presets))
	b.WriteString("\n\n")
	b.WriteString(MsgSettingsHelp)
	return helpers.SendText(c, b.String())
}

// OnOffset handles "/offset <key> <pixels>" and "/offset reset".
func (h *Handler) OnOffset(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	args := strings.Fields(payload(c))
	ctx, cancel := h.storeContext(c)
	defer cancel()

	var next compositor.Offsets
	switch {
	case len(args) == 1 && strings.EqualFold(args[0], "reset"):
	case len(args) == 2:
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return helpers.SendText(c, MsgOffsetUsage)
		}
		cur, err := h.placement.Offsets(ctx, chat.ID)
		if err != nil {
			h.logStoreError(ctx, "placement.offsets", err)
			return helpers.SendText(c, MsgSettingsUnavailable)
		}
		next, err = placement.With(cur, args[0], v)
		switch {
		case errors.Is(err, placement.ErrUnknownKey):
			return helpers.SendText(c, MsgOffsetUsage)
		case errors.Is(err, compositor.ErrOffsetRange):
			return helpers.SendText(c, msgOffsetRange())
		}
	default:
		return helpers.SendText(c, MsgOffsetUsage)
	}

	if err := h.placement.SetOffsets(ctx, chat.ID, next); err != nil {
		h.logStoreError(ctx, "placement.set", err)
		return helpers.SendText(c, MsgSettingsUnavailable)
	}
	return helpers.SendText(c, "Positions updated: "+placement.Describe(next))
}

// OnPreset handles "/preset [save|load|delete <name>]". Without arguments it
// lists the chat's presets.
func (h *Handler) OnPreset(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	raw := payload(c)
	verb, name, _ := strings.Cut(raw, " ")
	name = strings.TrimSpace(name)
	verb = strings.ToLower(verb)
	if verb != "" && verb != "list" && name == "" {
		return helpers.SendText(c, MsgPresetUsage)
	}
	ctx, cancel := h.storeContext(c)
	defer cancel()

	switch verb {
	case "", "list":
		presets, err := h.placement.Presets(ctx, chat.ID)
		if err != nil {
			h.logStoreError(ctx, "placement.presets", err)
			return helpers.SendText(c, MsgSettingsUnavailable)
		}
		return helpers.SendText(c, presetList(presets))

	case "save":
		off, err := h.placement.Offsets(ctx, chat.ID)
		if err != nil {
			h.logStoreError(ctx, "placement.offsets", err)
			return helpers.SendText(c, MsgSettingsUnavailable)
		}
		created, err := h.placement.SavePreset(ctx, chat.ID, name, off)
		if err != nil {
			return h.presetError(ctx, c, name, err)
		}
		done := "updated"
		if created {
			done = "saved"
		}
		return helpers.SendText(c, fmt.Sprintf("Preset %q %s: %s", name, done, placement.Describe(off)))

	case "load":
		p, err := placement.Apply(ctx, h.placement, chat.ID, name)
		if err != nil {
			return h.presetError(ctx, c, name, err)
		}
		return helpers.SendText(c, fmt.Sprintf("Preset %q applied: %s", p.Name, placement.Describe(p.Offsets)))

	case "delete":
		if err := h.placement.DeletePreset(ctx, chat.ID, name); err != nil {
			return h.presetError(ctx, c, name, err)
		}
		return helpers.SendText(c, fmt.Sprintf("Preset %q deleted.", name))

	default:
		return helpers.SendText(c, MsgPresetUsage)
	}
}

func (h *Handler) presetError(ctx context.Context, c tele.Context, name string, err error) error {
	switch {
	case errors.Is(err, placement.ErrInvalidName):
		return helpers.SendText(c, msgPresetName())
	case errors.Is(err, placement.ErrNotFound):
		return helpers.SendText(c, fmt.Sprintf("No preset named %q. Send /preset to list yours.", name))
	case errors.Is(err, placement.ErrTooManyPresets):
		return helpers.SendText(c, msgTooManyPresets())
	default:
		h.logStoreError(ctx, "placement.preset", err)
		return helpers.SendText(c, MsgSettingsUnavailable)
	}
}

func presetList(presets []placement.Preset) string {
	if len(presets) == 0 {
		return "No presets saved."
	}
	var b strings.Builder
	b.WriteString("Presets:")
	for _, p := range presets {
		fmt.Fprintf(&b, "\n- %s: %s", p.Name, placement.Describe(p.Offsets))
	}
	return b.String()
}

// payload is the text after the command, empty for keyboard aliases.
func payload(c tele.Context) string {
	if msg := c.Message(); msg != nil {
		return strings.TrimSpace(msg.Payload)
	}
	return ""
}

func (h *Handler) storeContext(c tele.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(helpers.BuildContext(c), storeTimeout)
}

func (h *Handler) logStoreError(ctx context.Context, event string, err error) {
	logger.LogEvent(ctx, logger.TG, slog.LevelWarn, event,
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}
