package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/sellerbot/core/logger"
	tg "github.com/m3rciful/sellerbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares one route per registered command, aliases included.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		h := def.Handler
		wrapped := func(c tele.Context) error {
			return newSummary(name, time.Now()).run(c, h)
		}
		routes = append(routes, tg.Route{Endpoint: cmd, Handler: wrapped})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + normalizeHandlerName(alias), Handler: wrapped})
		}
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
