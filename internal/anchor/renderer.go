// Package anchor keeps a single bot-authored window message per chat and
// redraws it in place.
package anchor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/sellerbot/core/logger"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"
	"github.com/m3rciful/sellerbot/internal/session"
)

const component = "service.render"

// Renderer draws screens into the anchor message of a chat and records the
// anchor id and view in the session store as its final step.
type Renderer struct {
	store     session.Store
	transport Transport
}

// NewRenderer builds a renderer over store and transport.
func NewRenderer(store session.Store, transport Transport) *Renderer {
	return &Renderer{store: store, transport: transport}
}

// RenderInPlace edits the current anchor to show content. An identical edit
// counts as success. Any other edit failure, or a missing anchor, sends a new
// message which becomes the anchor; the stale one is deleted best-effort.
// Send failures are returned and leave the stored session untouched.
func (r *Renderer) RenderInPlace(ctx context.Context, chatID int64, view session.View, content Content) (int, error) {
	s, err := r.store.Get(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("render: %w", err)
	}

	if s.HasAnchor() {
		res, editErr := r.transport.Edit(ctx, chatID, s.AnchorMessageID, content)
		switch res {
		case Edited, Unchanged:
			if res == Edited {
				tghelpers.CountMessage(ctx, content.HasKeyboard())
			}
			logger.Debug(ctx, component, "anchor.edit",
				slog.String("view", string(view)),
				slog.Int("anchor_id", s.AnchorMessageID),
				slog.String("edit", res.String()),
			)
			return s.AnchorMessageID, r.commit(ctx, chatID, s.AnchorMessageID, view)
		}
		attrs := []slog.Attr{
			slog.String("view", string(view)),
			slog.Int("anchor_id", s.AnchorMessageID),
			slog.String("edit", res.String()),
		}
		if editErr != nil {
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(editErr.Error(), 256)))
		}
		logger.Info(ctx, component, "anchor.edit_fallback", attrs...)
	}

	id, err := r.send(ctx, chatID, content)
	if err != nil {
		return 0, err
	}
	if s.HasAnchor() {
		r.retire(ctx, chatID, s.AnchorMessageID)
	}
	logger.Info(ctx, component, "anchor.sent",
		slog.String("view", string(view)),
		slog.Int("anchor_id", id),
		slog.Int("prev_anchor_id", s.AnchorMessageID),
	)
	return id, r.commit(ctx, chatID, id, view)
}

// ReplaceAnchor retires the current anchor and sends content as a fresh
// message. Delete failures are logged and swallowed.
func (r *Renderer) ReplaceAnchor(ctx context.Context, chatID int64, view session.View, content Content) (int, error) {
	s, err := r.store.Get(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("render: %w", err)
	}
	if s.HasAnchor() {
		r.retire(ctx, chatID, s.AnchorMessageID)
	}

	id, err := r.send(ctx, chatID, content)
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, component, "anchor.replaced",
		slog.String("view", string(view)),
		slog.Int("anchor_id", id),
		slog.Int("prev_anchor_id", s.AnchorMessageID),
	)
	return id, r.commit(ctx, chatID, id, view)
}

func (r *Renderer) send(ctx context.Context, chatID int64, content Content) (int, error) {
	id, err := r.transport.Send(ctx, chatID, content)
	if err != nil {
		return 0, fmt.Errorf("render: send: %w", err)
	}
	tghelpers.CountMessage(ctx, content.HasKeyboard())
	return id, nil
}

// retire deletes a superseded anchor through the shared sender queue.
func (r *Renderer) retire(ctx context.Context, chatID int64, messageID int) {
	err := tghelpers.Async(ctx, "anchor.delete", "deleteMessage", func() error {
		return r.transport.Delete(ctx, chatID, messageID)
	})
	if err != nil {
		logger.Warn(ctx, component, "anchor.delete_failed",
			slog.Int("anchor_id", messageID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

func (r *Renderer) commit(ctx context.Context, chatID int64, messageID int, view session.View) error {
	if _, err := r.store.Upsert(ctx, chatID, session.Patch{
		AnchorMessageID: session.Ptr(messageID),
		CurrentView:     session.Ptr(view),
	}); err != nil {
		return fmt.Errorf("render: commit: %w", err)
	}
	return nil
}
