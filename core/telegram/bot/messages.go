package bot

import (
	"fmt"

	"github.com/m3rciful/mergebot/core/compositor"
	"github.com/m3rciful/mergebot/core/placement"
)

// Replies produced by the transport itself rather than the conversation.
const (
	MsgHelp = "I merge two images and add a name.\n\n" +
		"1. Send /start or tap \"🖼️ Create New Image\".\n" +
		"2. Send the main image.\n" +
		"3. Send the reference image, it is pasted in the center at 60x60.\n" +
		"4. Send the name to write at the bottom.\n\n" +
		"Send /cancel at any time to start over.\n" +
		"Send /settings to move the image or the text, /history to see recent merges."
	MsgDownloadFailed = "I could not download that file. Please send it again."
	MsgFileTooLarge   = "That file is too large. Please send a smaller image."
	MsgShareFailed    = "Your image is ready, but I could not post it to the shared chat."
	MsgTooFast        = "You are sending too fast. Please wait a moment and try again."

	MsgHistoryDisabled    = "History is not kept on this bot."
	MsgHistoryUnavailable = "I could not load your history right now. Please try again later."
	MsgHistoryEmpty       = "You have not merged any images yet."

	MsgSettingsHelp = "Move the reference image or the text with\n" +
		"/offset image_x|image_y|text_x|text_y <pixels>\n" +
		"Positive values move right or down. /offset reset restores the default layout.\n\n" +
		"/preset save <name> stores the current positions, /preset load <name> restores them, " +
		"/preset delete <name> removes one. Saving under an existing name updates it."
	MsgOffsetUsage         = "Usage: /offset image_x|image_y|text_x|text_y <pixels>, or /offset reset."
	MsgPresetUsage         = "Usage: /preset, or /preset save|load|delete <name>."
	MsgSettingsUnavailable = "I could not update your settings right now. Please try again later."
)

func msgOffsetRange() string {
	return fmt.Sprintf("Offsets must be between -%d and %d pixels.", compositor.MaxOffset, compositor.MaxOffset)
}

func msgPresetName() string {
	return fmt.Sprintf("Preset names must be 1 to %d printable characters.", placement.MaxNameRunes)
}

func msgTooManyPresets() string {
	return fmt.Sprintf("You already have %d presets. Delete one first.", placement.MaxPresets)
}
