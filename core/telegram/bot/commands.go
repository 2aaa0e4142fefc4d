package bot

import (
	tg "github.com/m3rciful/mergebot/core/telegram"
	"github.com/m3rciful/mergebot/core/telegram/commands"
	"github.com/m3rciful/mergebot/core/telegram/keyboard"
)

// Register adds the bot's commands. The reply keyboard buttons are aliases
// of /start, /cancel and /settings.
func (h *Handler) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.OnStart,
		Description: "Create a new merged image",
		Aliases:     []string{keyboard.CreateText},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.OnCancel,
		Description: "Cancel the current merge",
		Aliases:     []string{keyboard.CancelText},
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.OnHelp,
		Description: "How to use the bot",
	})
	reg.RegisterCommand("/settings", commands.Command{
		Handler:     h.OnSettings,
		Description: "Image and text positions",
		Aliases:     []string{keyboard.SettingsText},
	})
	reg.RegisterCommand("/offset", commands.Command{
		Handler:     h.OnOffset,
		Description: "Move the image or the text",
	})
	reg.RegisterCommand("/preset", commands.Command{
		Handler:     h.OnPreset,
		Description: "Save, load or delete position presets",
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     h.OnHistory,
		Description: "Your latest merges",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.OnStats,
		Description: "Bot statistics",
		AdminOnly:   true,
	})
}
