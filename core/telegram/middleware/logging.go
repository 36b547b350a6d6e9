package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// receipts remembers update IDs already logged so a redelivered update
// produces one "update.received" line.
type receipts struct {
	mu      sync.Mutex
	seen    map[int]time.Time
	ttl     time.Duration
	sweptAt time.Time
}

var updateReceipts = &receipts{seen: make(map[int]time.Time), ttl: 10 * time.Second}

// first reports whether id has not been logged within ttl.
func (r *receipts) first(id int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.sweptAt) > r.ttl {
		for k, ts := range r.seen {
			if now.Sub(ts) > r.ttl {
				delete(r.seen, k)
			}
		}
		r.sweptAt = now
	}
	if ts, ok := r.seen[id]; ok && now.Sub(ts) <= r.ttl {
		return false
	}
	r.seen[id] = now
	return true
}

// LoggerMiddleware assigns the update rid and logs a sampled receipt line.
// Message text is never logged: it carries phone numbers and login codes.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, seen := c.Get("rid").(string); seen {
			return next(c)
		}
		upd := c.Update()
		chatID, _ := tghelpers.ChatID(c)
		var userID int64
		if user := c.Sender(); user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		if logger.ShouldSampleDebug() && updateReceipts.first(upd.ID, time.Now()) {
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c, rid)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, rid string) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", upd.ID),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.Int64("chat_id", chat.ID), slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		attrs = append(attrs, slog.String("kind", "callback"))
		if key, _ := callbacks.ParseCallbackData(upd.Callback); key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
	case upd.Message != nil:
		text := c.Text()
		attrs = append(attrs, slog.String("kind", "message"), slog.Int("text_len", len([]rune(text))))
		if cmd, ok := commandName(text); ok {
			attrs = append(attrs, slog.String("command", cmd))
		}
		if upd.Message.Contact != nil {
			attrs = append(attrs, slog.Bool("contact", true))
		}
	}
	return attrs
}

// commandName returns the slash command in text without arguments or a
// @botname suffix.
func commandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	if len(name) < 2 {
		return "", false
	}
	return logger.SanitizeLimit(name, 64), true
}
