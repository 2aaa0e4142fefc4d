// Package commands holds the command definition shared by the registry and
// the handlers that register themselves.
package commands

import tele "gopkg.in/telebot.v4"

// Command is one slash command of the bot.
type Command struct {
	Handler tele.HandlerFunc
	// Description is shown in the Telegram command menu.
	Description string
	// AdminOnly commands run only for the configured admin.
	AdminOnly bool
	// Hidden commands work but are left out of the menu.
	Hidden bool
	// Aliases are exact texts, such as reply keyboard labels, that run the
	// command too.
	Aliases []string
}
