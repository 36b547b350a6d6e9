package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	// URL turns the button into a link; Unique and Data are ignored.
	URL string
	// WebApp opens a Telegram Mini App at this URL.
	WebApp string
}

// Row is a shorthand for one keyboard row.
func Row(btns ...InlineBtn) []InlineBtn {
	return btns
}

// InlineButtons builds an inline keyboard where each provided button is placed on its own row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
// Empty rows are dropped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			switch {
			case btn.WebApp != "":
				r[j] = tele.InlineButton{Text: btn.Text, WebApp: &tele.WebApp{URL: btn.WebApp}}
			case btn.URL != "":
				r[j] = *markup.URL(btn.Text, btn.URL).Inline()
			default:
				r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
			}
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}
