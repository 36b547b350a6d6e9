package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/sellerbot/internal/session"
)

func TestHomePrimaryButtonFollowsAuthorization(t *testing.T) {
	anon := Home(session.Baseline(1), "")
	require.NotNil(t, anon.Markup)
	assert.Equal(t, CbAuth, anon.Markup.InlineKeyboard[0][0].Unique)

	authed := session.Baseline(1)
	authed.IsAuthorized = true
	authed.Profiles = []session.Profile{{ID: "o1", DisplayName: "Alpha LLC"}}
	authed.ActiveProfileID = "o1"
	c := Home(authed, "")
	assert.Equal(t, CbProfile, c.Markup.InlineKeyboard[0][0].Unique)
	assert.Contains(t, c.Text, "Alpha LLC")
}

func TestNoteIsPrepended(t *testing.T) {
	c := PhonePrompt(NoteInvalidPhone)
	assert.Contains(t, c.Text, NoteInvalidPhone)
	assert.Less(t, len(NoteInvalidPhone), len(c.Text))
	assert.Equal(t, NoteInvalidPhone, c.Text[:len(NoteInvalidPhone)])
}

func TestClosedHasNoControls(t *testing.T) {
	c := Closed()
	assert.Nil(t, c.Markup)
	assert.False(t, c.HasKeyboard())
}

func TestPromptByView(t *testing.T) {
	s := session.Baseline(1)
	s.PendingPhone = "+79991234567"
	for view, want := range map[session.View]string{
		session.ViewAuthPhone:     "Step 1 of 3",
		session.ViewAuthSMS:       "+79991234567",
		session.ViewAuthEmailCode: "Step 3 of 3",
	} {
		s.CurrentView = view
		c, ok := Prompt(s, "")
		require.True(t, ok, view)
		assert.Contains(t, c.Text, want)
	}
	s.CurrentView = session.ViewHome
	_, ok := Prompt(s, "")
	assert.False(t, ok)
}

func TestProfileSwitchOnlyWithSeveralProfiles(t *testing.T) {
	s := session.Baseline(1)
	s.Profiles = []session.Profile{{ID: "o1", DisplayName: "Alpha"}}
	s.ActiveProfileID = "o1"
	assert.NotEqual(t, CbProfileSwitch, Profile(s, "").Markup.InlineKeyboard[0][0].Unique)

	s.Profiles = append(s.Profiles, session.Profile{ID: "o2", DisplayName: "Beta"})
	assert.Equal(t, CbProfileSwitch, Profile(s, "").Markup.InlineKeyboard[0][0].Unique)
}

func TestProfileSwitchMarksActive(t *testing.T) {
	s := session.Baseline(1)
	s.Profiles = []session.Profile{{ID: "o1", DisplayName: "Alpha"}, {ID: "o2", DisplayName: "Beta"}}
	s.ActiveProfileID = "o2"

	c := ProfileSwitch(s, "https://bot.example.com/webapp")
	rows := c.Markup.InlineKeyboard
	require.Len(t, rows, 4)
	assert.Equal(t, "Alpha", rows[0][0].Text)
	assert.Equal(t, "✅ Beta", rows[1][0].Text)
	assert.Equal(t, CbSetProfile, rows[1][0].Unique)
	assert.Equal(t, "o2", rows[1][0].Data)
	require.NotNil(t, rows[2][0].WebApp)
	assert.Equal(t, "https://bot.example.com/webapp", rows[2][0].WebApp.URL)
}
