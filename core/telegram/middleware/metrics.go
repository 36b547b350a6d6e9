package middleware

import (
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// metricsContext wraps tele.Context to count direct replies made through the context.
type metricsContext struct{ tele.Context }

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m metricsContext) count(err error, opts []interface{}) error {
	if err == nil {
		tghelpers.CountMessage(tghelpers.BuildContext(m.Context), hasKeyboard(opts))
	}
	return err
}

// Send proxies tele.Context.Send while updating message counters.
func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Send(what, opts...), opts)
}

// Reply proxies tele.Context.Reply while updating message counters.
func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Reply(what, opts...), opts)
}

// Edit proxies tele.Context.Edit while updating message counters.
func (m metricsContext) Edit(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Edit(what, opts...), opts)
}

// MessageMetricsMiddleware attaches message counters to the update context.
// Anchor renders report into the same counters through helpers.CountMessage.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithCounters(tghelpers.BuildContext(c))
		tghelpers.StoreContext(c, ctx)
		return next(metricsContext{Context: c})
	}
}

// GetCounters reads message count and keyboard presence flags for the update.
func GetCounters(c tele.Context) (int, bool) {
	return tghelpers.Counters(tghelpers.BuildContext(c))
}
