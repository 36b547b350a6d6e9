package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/sellerbot/core/logger"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"
	"github.com/m3rciful/sellerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summary is the one "handler.handled" line logged per routed update.
type summary struct {
	name  string
	start time.Time
	// status and outcome override the values derived from the error.
	status  string
	outcome string
	extras  []slog.Attr
}

func newSummary(name string, start time.Time, extras ...slog.Attr) summary {
	return summary{name: name, start: start, extras: extras}
}

func (s summary) skipped() summary {
	s.status = "skip"
	return s
}

// run names the handler in the update context, calls fn and logs the result.
func (s summary) run(c tele.Context, h tele.HandlerFunc) error {
	tghelpers.WithHandler(c, s.name)
	err := h(c)
	s.log(c, err)
	return err
}

func (s summary) log(c tele.Context, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	msgs, kb := middleware.GetCounters(c)

	result := "ok"
	if err != nil {
		result = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", orDerived(s.status, result)),
		slog.String("handler", s.name),
		slog.String("outcome", orDerived(s.outcome, result)),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(s.start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", s.name),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", append(attrs, s.extras...)...)
}

func orDerived(override, derived string) string {
	if override != "" {
		return override
	}
	return derived
}

func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode names err for err_code. A Code() method wins, then context
// errors, then the concrete type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return strings.ToUpper(name)
	}
	return "UNKNOWN_ERROR"
}
