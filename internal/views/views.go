// Package views builds the text and inline controls of every screen the
// anchor message can show.
package views

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/sellerbot/core/telegram/keyboard"
	"github.com/m3rciful/sellerbot/internal/anchor"
	"github.com/m3rciful/sellerbot/internal/session"
)

// Callback keys. They double as telebot unique button ids.
const (
	CbHome           = "home"
	CbAuth           = "auth"
	CbRefresh        = "refresh"
	CbClose          = "close"
	CbLogout         = "logout"
	CbProfile        = "profile"
	CbProfileRefresh = "profile_refresh"
	CbProfileSwitch  = "profile_switch"
	CbSetProfile     = "set_profile"
)

// Annotations shown above a prompt after a failed attempt.
const (
	NoteInvalidPhone      = "❗ Phone number not recognized. Send 10 digits or +7 followed by 10 digits, e.g. +79991234567."
	NoteInvalidCode       = "❗ The code must be digits only."
	NoteEmptyCode         = "❗ The code is empty. Send the code from the e-mail."
	NotePortalUnavailable = "⚠️ The partner portal is not responding. Try again in a minute."
	NoteSessionExpired    = "❗ The login attempt expired. Send the phone number again."
	NoteLoginTimeout      = "⌛ Login was not completed in time. Press «Log in» to try again."
	NoteLoginFailed       = "❗ Login failed. Press «Log in» to try again."
	NoteSlowDown          = "⏳ Too many messages at once. Wait a few seconds and send it again."
	NoteUnknownProfile    = "❗ That organization is not in your list. Refresh the profile and try again."
)

// Rejected formats the annotation for a logical failure reported by the portal.
func Rejected(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "❗ The portal rejected the input. Check it and try again."
	}
	return "❗ The portal rejected the input: " + reason + ". Check it and try again."
}

var (
	btnHome    = keyboard.InlineBtn{Text: "🏠 Home", Unique: CbHome}
	btnRefresh = keyboard.InlineBtn{Text: "🔄 Refresh", Unique: CbRefresh}
	btnClose   = keyboard.InlineBtn{Text: "❌ Close", Unique: CbClose}
	btnAuth    = keyboard.InlineBtn{Text: "🔑 Log in", Unique: CbAuth}
	btnProfile = keyboard.InlineBtn{Text: "👤 Profile", Unique: CbProfile}
	btnLogout  = keyboard.InlineBtn{Text: "🚪 Log out", Unique: CbLogout}
)

func withNote(note, text string) string {
	if note == "" {
		return text
	}
	return note + "\n\n" + text
}

// Home is the entry screen. The primary button depends on authorization.
func Home(s *session.ChatSession, note string) anchor.Content {
	var b strings.Builder
	b.WriteString("👋 Seller portal assistant\n")
	if s.IsAuthorized {
		b.WriteString("✅ Partner account linked")
		if p, ok := s.ActiveProfile(); ok {
			fmt.Fprintf(&b, "\n🏢 %s", p.DisplayName)
		}
	} else {
		b.WriteString("🔒 Not logged in\n")
		b.WriteString("Log in with the phone number you use on the partner portal.")
	}
	primary := btnAuth
	if s.IsAuthorized {
		primary = btnProfile
	}
	return anchor.Content{
		Text: withNote(note, b.String()),
		Markup: keyboard.InlineButtonsRows(
			keyboard.Row(primary),
			keyboard.Row(btnRefresh),
			keyboard.Row(btnClose),
		),
	}
}

// LoggedIn is shown when login is requested while already authorized.
func LoggedIn() anchor.Content {
	return anchor.Content{
		Text: "✅ You are already logged in to the partner portal.",
		Markup: keyboard.InlineButtonsRows(
			keyboard.Row(btnProfile),
			keyboard.Row(btnLogout),
			keyboard.Row(btnHome, btnClose),
		),
	}
}

// LoggedOut confirms that the session ended.
func LoggedOut() anchor.Content {
	return anchor.Content{
		Text:   "👋 You logged out. Authorization data was removed.",
		Markup: keyboard.InlineButtonsRows(keyboard.Row(btnHome, btnAuth)),
	}
}

// Closed is the terminal screen. It has no controls; /start brings the bot back.
func Closed() anchor.Content {
	return anchor.Content{Text: "Session ended. Send /start to begin again."}
}

func stepControls() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(keyboard.Row(btnHome, btnClose))
}

// PhonePrompt asks for the phone number used on the portal.
func PhonePrompt(note string) anchor.Content {
	return anchor.Content{
		Text:   withNote(note, "📱 Step 1 of 3\nSend the phone number in the format +79991234567."),
		Markup: stepControls(),
	}
}

// SMSPrompt asks for the code sent to phone.
func SMSPrompt(phone, note string) anchor.Content {
	text := "💬 Step 2 of 3\nSend the code from the SMS."
	if phone != "" {
		text = fmt.Sprintf("💬 Step 2 of 3\nSend the code from the SMS sent to %s.", phone)
	}
	return anchor.Content{Text: withNote(note, text), Markup: stepControls()}
}

// EmailCodePrompt asks for the code the portal sent by e-mail.
func EmailCodePrompt(note string) anchor.Content {
	return anchor.Content{
		Text:   withNote(note, "📧 Step 3 of 3\nSend the code from the e-mail."),
		Markup: stepControls(),
	}
}

// BrowserWaiting is shown while the user logs in through the browser window.
func BrowserWaiting(timeout time.Duration) anchor.Content {
	return anchor.Content{
		Text: fmt.Sprintf("🌐 Complete the login in the opened portal window.\nWaiting up to %d minutes…",
			int(timeout.Round(time.Minute)/time.Minute)),
	}
}

// Prompt returns the prompt for a pending step view.
func Prompt(s *session.ChatSession, note string) (anchor.Content, bool) {
	switch s.CurrentView {
	case session.ViewAuthPhone:
		return PhonePrompt(note), true
	case session.ViewAuthSMS:
		return SMSPrompt(s.PendingPhone, note), true
	case session.ViewAuthEmailCode:
		return EmailCodePrompt(note), true
	}
	return anchor.Content{}, false
}

// Profile is the organization card.
func Profile(s *session.ChatSession, note string) anchor.Content {
	var b strings.Builder
	b.WriteString("👤 Profile\n")
	if p, ok := s.ActiveProfile(); ok {
		fmt.Fprintf(&b, "🏢 %s\n", p.DisplayName)
		if p.TaxID != "" {
			fmt.Fprintf(&b, "INN: %s\n", p.TaxID)
		}
	} else if len(s.Profiles) > 1 {
		b.WriteString("No organization selected.\n")
	} else {
		b.WriteString("No organizations found.\n")
	}
	fmt.Fprintf(&b, "Organizations available: %d", len(s.Profiles))

	var switchRow []keyboard.InlineBtn
	if len(s.Profiles) > 1 {
		switchRow = keyboard.Row(keyboard.InlineBtn{Text: "🔀 Switch organization", Unique: CbProfileSwitch})
	}
	return anchor.Content{
		Text: withNote(note, b.String()),
		Markup: keyboard.InlineButtonsRows(
			switchRow,
			keyboard.Row(btnLogout),
			keyboard.Row(btnHome, keyboard.InlineBtn{Text: "🔄 Refresh", Unique: CbProfileRefresh}),
			keyboard.Row(btnClose),
		),
	}
}

// ProfileSwitch lists organizations; the active one is checked.
// A non-empty webAppURL adds a button opening the web picker.
func ProfileSwitch(s *session.ChatSession, webAppURL string) anchor.Content {
	rows := make([][]keyboard.InlineBtn, 0, len(s.Profiles)+2)
	for _, p := range s.Profiles {
		label := p.DisplayName
		if p.ID == s.ActiveProfileID {
			label = "✅ " + label
		}
		rows = append(rows, keyboard.Row(keyboard.InlineBtn{Text: label, Unique: CbSetProfile, Data: p.ID}))
	}
	if webAppURL != "" {
		rows = append(rows, keyboard.Row(keyboard.InlineBtn{Text: "🗂 Open picker", WebApp: webAppURL}))
	}
	rows = append(rows, keyboard.Row(keyboard.InlineBtn{Text: "⬅️ Back", Unique: CbProfile}, btnClose))
	return anchor.Content{
		Text:   "🔀 Choose the organization to work with:",
		Markup: keyboard.InlineButtonsRows(rows...),
	}
}
