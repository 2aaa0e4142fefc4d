package router

import (
	tg "github.com/m3rciful/mergebot/core/telegram"
	"github.com/m3rciful/mergebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation handles every non-command message.
type Conversation interface {
	OnText(c tele.Context) error
	OnMedia(c tele.Context) error
	OnOther(c tele.Context) error
}

// otherEndpoints carry content the bot cannot use as input.
var otherEndpoints = []string{
	tele.OnSticker,
	tele.OnAnimation,
	tele.OnVideo,
	tele.OnVideoNote,
	tele.OnVoice,
	tele.OnAudio,
	tele.OnLocation,
	tele.OnContact,
}

// MessageRoutes binds text, media and unsupported content to the conversation.
// Text matching a command alias, such as a reply keyboard button, is routed to
// that command first.
func MessageRoutes(conv Conversation, reg *tg.Registry) []tg.Route {
	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	text := func(c tele.Context) error {
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				h := cmd.Handler
				if cmd.AdminOnly {
					h = middleware.AdminOnlyMiddleware(reg.AdminOptions())(h)
				}
				return serve(c, handlerName(key), func() error { return h(c) })
			}
		}
		if conv == nil {
			return skip(c, "unknown_text")
		}
		return serve(c, "conversation.text", func() error { return conv.OnText(c) })
	}

	media := func(c tele.Context) error {
		if conv == nil {
			return skip(c, "unexpected_media")
		}
		return serve(c, "conversation.media", func() error { return conv.OnMedia(c) })
	}

	other := func(c tele.Context) error {
		if conv == nil {
			return skip(c, "unexpected_content")
		}
		return serve(c, "conversation.other", func() error { return conv.OnOther(c) })
	}

	routes := []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnPhoto, Handler: wrap(media)},
		{Endpoint: tele.OnDocument, Handler: wrap(media)},
	}
	for _, ep := range otherEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: wrap(other)})
	}
	return routes
}
