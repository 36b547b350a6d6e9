package anchor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeBot struct {
	sendMsg *tele.Message
	err     error
	edited  tele.Editable
	deleted tele.Editable
	opts    []interface{}
}

func (f *fakeBot) Send(_ tele.Recipient, _ interface{}, opts ...interface{}) (*tele.Message, error) {
	f.opts = opts
	return f.sendMsg, f.err
}

func (f *fakeBot) Edit(msg tele.Editable, _ interface{}, opts ...interface{}) (*tele.Message, error) {
	f.edited = msg
	f.opts = opts
	return &tele.Message{}, f.err
}

func (f *fakeBot) Delete(msg tele.Editable) error {
	f.deleted = msg
	return f.err
}

func TestTeleTransportSendReturnsMessageID(t *testing.T) {
	bot := &fakeBot{sendMsg: &tele.Message{ID: 77}}
	id, err := NewTeleTransport(bot).Send(context.Background(), 5, Content{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 77, id)
	require.Len(t, bot.opts, 1)
	opts, ok := bot.opts[0].(*tele.SendOptions)
	require.True(t, ok)
	assert.Nil(t, opts.ReplyMarkup)
}

func TestTeleTransportEditResults(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    EditResult
		wantErr bool
	}{
		{name: "edited", want: Edited},
		{name: "sentinel not modified", err: tele.ErrMessageNotModified, want: Unchanged},
		{name: "wrapped text not modified", err: errors.New("telegram: Bad Request: message is not modified: specified new message content is the same (400)"), want: Unchanged},
		{name: "missing message", err: errors.New("telegram: Bad Request: message to edit not found (400)"), want: Failed, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{err: tt.err}
			res, err := NewTeleTransport(bot).Edit(context.Background(), 5, 42, Content{Text: "x"})
			assert.Equal(t, tt.want, res)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			msgID, chatID := bot.edited.MessageSig()
			assert.Equal(t, "42", msgID)
			assert.Equal(t, int64(5), chatID)
		})
	}
}

func TestTeleTransportDeleteTargetsStoredMessage(t *testing.T) {
	bot := &fakeBot{}
	require.NoError(t, NewTeleTransport(bot).Delete(context.Background(), 9, 13))
	msgID, chatID := bot.deleted.MessageSig()
	assert.Equal(t, "13", msgID)
	assert.Equal(t, int64(9), chatID)
}
