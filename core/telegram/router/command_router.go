package router

import (
	"log/slog"

	"github.com/m3rciful/mergebot/core/logger"
	tg "github.com/m3rciful/mergebot/core/telegram"
	"github.com/m3rciful/mergebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares command handlers wrapped with shared middleware.
// Admin-only commands are gated by the registry's admin options.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := handlerName(cmd)
		inner := def.Handler
		if def.AdminOnly {
			inner = middleware.AdminOnlyMiddleware(reg.AdminOptions())(inner)
		}
		h := func(c tele.Context) error {
			return serve(c, name, func() error { return inner(c) })
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
	)
	return routes
}
