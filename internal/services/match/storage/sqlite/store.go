// Package sqlite persists the session lifecycle journal in SQLite.
//
// The journal is an audit trail only: nothing here is read back into the
// coordinator when the process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/duelhall/internal/platform/errors"
	"github.com/louisbranch/duelhall/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/duelhall/internal/services/match/coordinator"
	"github.com/louisbranch/duelhall/internal/services/match/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 100

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed session journal.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the journal database at path and applies embedded
// migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendSessionEvent records one lifecycle event.
func (s *Store) AppendSessionEvent(ctx context.Context, evt coordinator.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(string(evt.Kind)) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "event kind is required")
	}
	if strings.TrimSpace(evt.RoomID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "room id is required")
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_events (occurred_at, kind, room_id, conn_id, username, code) VALUES (?, ?, ?, ?, ?, ?)`,
		toMillis(evt.OccurredAt), string(evt.Kind), evt.RoomID, string(evt.ConnID), evt.Username, string(evt.Code),
	)
	if err != nil {
		return fmt.Errorf("append session event: %w", err)
	}
	return nil
}

// ListSessionEvents returns up to limit events for roomID in append order.
// An empty roomID lists events across all sessions.
func (s *Store) ListSessionEvents(ctx context.Context, roomID string, limit int) ([]coordinator.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT occurred_at, kind, room_id, conn_id, username, code FROM session_events`
	args := []any{}
	if roomID = strings.TrimSpace(roomID); roomID != "" {
		query += ` WHERE room_id = ?`
		args = append(args, roomID)
	}
	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []coordinator.Event
	for rows.Next() {
		var (
			occurredAt int64
			kind       string
			room       string
			conn       string
			username   string
			code       string
		)
		if err := rows.Scan(&occurredAt, &kind, &room, &conn, &username, &code); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, coordinator.Event{
			Kind:       coordinator.Kind(kind),
			RoomID:     room,
			ConnID:     coordinator.ConnID(conn),
			Username:   username,
			Code:       apperrors.Code(code),
			OccurredAt: fromMillis(occurredAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read session events: %w", err)
	}
	return events, nil
}
