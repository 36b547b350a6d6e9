// Package anchortest provides an in-memory chat transport for tests.
package anchortest

import (
	"context"
	"errors"
	"sync"

	"github.com/m3rciful/sellerbot/internal/anchor"
)

// ErrGone is returned when editing or deleting a message that does not exist.
var ErrGone = errors.New("anchortest: message to edit not found")

// Call records one transport operation.
type Call struct {
	Op        string // send, edit, delete
	ChatID    int64
	MessageID int
	Result    anchor.EditResult
	Content   anchor.Content
}

// Transport keeps the visible messages of every chat. Edits with identical
// content report anchor.Unchanged like the real API does.
type Transport struct {
	mu       sync.Mutex
	nextID   int
	messages map[int64]map[int]anchor.Content
	calls    []Call

	// SendErr, when set, fails every Send.
	SendErr error
	// DeleteErr, when set, fails every Delete.
	DeleteErr error
}

// New returns an empty transport. Message ids start at 100.
func New() *Transport {
	return &Transport{nextID: 100, messages: make(map[int64]map[int]anchor.Content)}
}

func (t *Transport) Send(_ context.Context, chatID int64, content anchor.Content) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		t.calls = append(t.calls, Call{Op: "send", ChatID: chatID, Content: content})
		return 0, t.SendErr
	}
	t.nextID++
	id := t.nextID
	if t.messages[chatID] == nil {
		t.messages[chatID] = make(map[int]anchor.Content)
	}
	t.messages[chatID][id] = content
	t.calls = append(t.calls, Call{Op: "send", ChatID: chatID, MessageID: id, Content: content})
	return id, nil
}

func (t *Transport) Edit(_ context.Context, chatID int64, messageID int, content anchor.Content) (anchor.EditResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.messages[chatID][messageID]
	var (
		res anchor.EditResult
		err error
	)
	switch {
	case !ok:
		res, err = anchor.Failed, ErrGone
	case current.Text == content.Text && sameMarkup(current, content):
		res = anchor.Unchanged
	default:
		res = anchor.Edited
		t.messages[chatID][messageID] = content
	}
	t.calls = append(t.calls, Call{Op: "edit", ChatID: chatID, MessageID: messageID, Result: res, Content: content})
	return res, err
}

func (t *Transport) Delete(_ context.Context, chatID int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{Op: "delete", ChatID: chatID, MessageID: messageID})
	if t.DeleteErr != nil {
		return t.DeleteErr
	}
	if _, ok := t.messages[chatID][messageID]; !ok {
		return ErrGone
	}
	delete(t.messages[chatID], messageID)
	return nil
}

// Vanish removes a message as if the user deleted it.
func (t *Transport) Vanish(chatID int64, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.messages[chatID], messageID)
}

// Visible returns the ids of messages still present in the chat.
func (t *Transport) Visible(chatID int64) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.messages[chatID]))
	for id := range t.messages[chatID] {
		ids = append(ids, id)
	}
	return ids
}

// Message returns the content of a visible message.
func (t *Transport) Message(chatID int64, messageID int) (anchor.Content, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.messages[chatID][messageID]
	return c, ok
}

// Calls returns the recorded operations in order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Ops returns the recorded operation names in order.
func (t *Transport) Ops() []string {
	calls := t.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset forgets recorded calls but keeps messages.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

func sameMarkup(a, b anchor.Content) bool {
	if a.Markup == nil || b.Markup == nil {
		return a.Markup == b.Markup
	}
	if len(a.Markup.InlineKeyboard) != len(b.Markup.InlineKeyboard) {
		return false
	}
	for i, row := range a.Markup.InlineKeyboard {
		other := b.Markup.InlineKeyboard[i]
		if len(row) != len(other) {
			return false
		}
		for j := range row {
			if row[j].Text != other[j].Text || row[j].Unique != other[j].Unique || row[j].Data != other[j].Data {
				return false
			}
		}
	}
	return true
}
