package telegram

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/telegram/commands"
	"github.com/m3rciful/mergebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Registry holds bot commands and the admin policy guarding them.
type Registry struct {
	commands map[string]commands.Command
	admin    middleware.AdminOptions
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]commands.Command)}
}

// SetAdmin configures who may run admin-only commands.
func (r *Registry) SetAdmin(opts middleware.AdminOptions) {
	r.admin = opts
}

// AdminOptions returns the admin policy for admin-only commands.
func (r *Registry) AdminOptions() middleware.AdminOptions {
	return r.admin
}

// RegisterCommand adds cmd under name, which must start with a slash.
// Invalid or duplicate entries are logged and skipped.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	reason := ""
	switch {
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		reason = "invalid"
	case !strings.HasPrefix(name, "/"):
		reason = "no_slash_prefix"
	default:
		if _, dup := r.commands[name]; dup {
			reason = "duplicate"
		}
	}
	if reason != "" {
		logger.LogEvent(context.Background(), logger.TWire, slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("cause", reason),
		)
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns the commands sorted by name. visibleOnly leaves out
// hidden and admin-only ones, which is what the Telegram menu shows.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, c := range r.commands {
		if visibleOnly && (c.Hidden || c.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: c.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// LookupCommand finds a command by its slash name or by an alias. Aliases
// match reply keyboard labels verbatim, so plain words never hit a command.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", commands.Command{}, false
	}
	if strings.HasPrefix(text, "/") {
		name, _, _ := strings.Cut(strings.Fields(text)[0], "@")
		if cmd, ok := r.commands[name]; ok {
			return name, cmd, true
		}
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == text {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// InitBotCommands publishes the visible commands to the Telegram menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	ctx := context.Background()
	if err := bot.SetCommands(list); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelError, "register.commands",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.LogEvent(ctx, logger.TWire, slog.LevelDebug, "register.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(list)),
	)
}
