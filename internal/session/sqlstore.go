package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/sellerbot/core/logger"
)

type sessionRow struct {
	ChatID          int64          `db:"chat_id"`
	AnchorMessageID sql.NullInt64  `db:"anchor_message_id"`
	CurrentView     string         `db:"current_view"`
	IsAuthorized    bool           `db:"is_authorized"`
	PendingPhone    sql.NullString `db:"pending_phone"`
	ProfilesJSON    string         `db:"profiles_json"`
	ActiveProfileID sql.NullString `db:"active_profile_id"`
}

func (r sessionRow) toSession() (*ChatSession, error) {
	s := &ChatSession{
		ChatID:          r.ChatID,
		AnchorMessageID: int(r.AnchorMessageID.Int64),
		CurrentView:     View(r.CurrentView),
		IsAuthorized:    r.IsAuthorized,
		PendingPhone:    r.PendingPhone.String,
		ActiveProfileID: r.ActiveProfileID.String,
	}
	if r.ProfilesJSON != "" {
		if err := json.Unmarshal([]byte(r.ProfilesJSON), &s.Profiles); err != nil {
			return nil, fmt.Errorf("decode profiles: %w", err)
		}
	}
	s.normalize()
	return s, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

const selectSession = `SELECT chat_id, anchor_message_id, current_view, is_authorized,
	pending_phone, profiles_json, active_profile_id
	FROM chat_sessions WHERE chat_id = ?`

const upsertSession = `INSERT INTO chat_sessions
	(chat_id, anchor_message_id, current_view, is_authorized, pending_phone, profiles_json, active_profile_id, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (chat_id) DO UPDATE SET
		anchor_message_id = excluded.anchor_message_id,
		current_view = excluded.current_view,
		is_authorized = excluded.is_authorized,
		pending_phone = excluded.pending_phone,
		profiles_json = excluded.profiles_json,
		active_profile_id = excluded.active_profile_id,
		updated_at = excluded.updated_at`

const clearAuthSession = `UPDATE chat_sessions SET
	is_authorized = ?, pending_phone = NULL, profiles_json = '[]', active_profile_id = NULL, updated_at = ?
	WHERE chat_id = ?`

const upsertPortal = `INSERT INTO portal_cookies (chat_id, cookies_json, csrf_token, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (chat_id) DO UPDATE SET
		cookies_json = excluded.cookies_json,
		csrf_token = excluded.csrf_token,
		updated_at = excluded.updated_at`

// SQLStore implements Store and PortalStore on top of sqlx.
// Queries are written with '?' and rebound for the connected driver.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an open connection. Tables come from the migrations.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) q(query string) string { return s.db.Rebind(query) }

func (s *SQLStore) Get(ctx context.Context, chatID int64) (*ChatSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.q(selectSession), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Baseline(chatID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	return row.toSession()
}

func (s *SQLStore) Upsert(ctx context.Context, chatID int64, patch Patch) (*ChatSession, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("session upsert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := selectSession
	if s.db.DriverName() == "postgres" {
		query += " FOR UPDATE"
	}
	var (
		row     sessionRow
		current *ChatSession
	)
	switch err := tx.GetContext(ctx, &row, s.q(query), chatID); {
	case errors.Is(err, sql.ErrNoRows):
		current = Baseline(chatID)
	case err != nil:
		return nil, fmt.Errorf("session upsert: read: %w", err)
	default:
		if current, err = row.toSession(); err != nil {
			return nil, err
		}
	}

	patch.Apply(current)
	profiles, err := json.Marshal(current.Profiles)
	if err != nil {
		return nil, fmt.Errorf("session upsert: encode profiles: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.q(upsertSession),
		chatID,
		nullInt(current.AnchorMessageID),
		string(current.CurrentView),
		current.IsAuthorized,
		nullString(current.PendingPhone),
		string(profiles),
		nullString(current.ActiveProfileID),
		s.now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("session upsert: write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("session upsert: commit: %w", err)
	}

	logger.Debug(ctx, "db", "session.upsert",
		slog.Int64("chat_id", chatID),
		slog.String("view", string(current.CurrentView)),
		slog.Int("anchor_id", current.AnchorMessageID),
		slog.Bool("authorized", current.IsAuthorized),
		slog.Int("profiles", len(current.Profiles)),
	)
	return current, nil
}

func (s *SQLStore) ClearAuthFields(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session clear: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(clearAuthSession), false, s.now().Unix(), chatID); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM portal_cookies WHERE chat_id = ?`), chatID); err != nil {
		return fmt.Errorf("session clear cookies: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session clear: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) LoadPortalState(ctx context.Context, chatID int64) (PortalState, error) {
	var row struct {
		Cookies string `db:"cookies_json"`
		CSRF    string `db:"csrf_token"`
	}
	err := s.db.GetContext(ctx, &row, s.q(`SELECT cookies_json, csrf_token FROM portal_cookies WHERE chat_id = ?`), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return PortalState{}, nil
	}
	if err != nil {
		return PortalState{}, fmt.Errorf("portal state load: %w", err)
	}
	cookies, err := decodeCookies([]byte(row.Cookies))
	if err != nil {
		return PortalState{}, err
	}
	return PortalState{Cookies: cookies, CSRFToken: row.CSRF}, nil
}

func (s *SQLStore) SavePortalState(ctx context.Context, chatID int64, state PortalState) error {
	raw, err := encodeCookies(state.Cookies)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q(upsertPortal), chatID, string(raw), state.CSRFToken, s.now().Unix()); err != nil {
		return fmt.Errorf("portal state save: %w", err)
	}
	return nil
}
