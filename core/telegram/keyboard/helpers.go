package keyboard

import tele "gopkg.in/telebot.v4"

// Reply keyboard labels. The transport maps them onto /start, /cancel and
// /settings.
const (
	CreateText   = "🖼️ Create New Image"
	CancelText   = "❌ Cancel"
	SettingsText = "⚙️ Settings"
)

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a resized reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// CancelMarkup offers a single cancel button while a merge is in progress.
func CancelMarkup() *tele.ReplyMarkup {
	return ReplyButtons([]string{CancelText})
}

// MenuMarkup offers the buttons that start a new merge or open settings.
func MenuMarkup() *tele.ReplyMarkup {
	return ReplyButtons([]string{CreateText}, []string{SettingsText})
}
