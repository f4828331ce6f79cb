package store

import (
	"fmt"

	"github.com/soyeahso/chatbridge/internal/domain"
)

// Archive persists the conversation transcript. Duplicate message ids are
// ignored so history pages and live events can overlap safely.
type Archive struct {
	db *DB
}

// NewArchive creates an archive on an open database.
func NewArchive(db *DB) *Archive {
	return &Archive{db: db}
}

// Insert records one message. Inserting the same id twice is a no-op.
func (a *Archive) Insert(msg domain.Message) error {
	_, err := a.db.sql.Exec(`
		INSERT OR IGNORE INTO messages (id, ts, username, avatar, body, direction)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Time, msg.From.Username, msg.From.Avatar, msg.Text, int(msg.Direction),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages, ascending by time.
func (a *Archive) Recent(limit int) ([]domain.Message, error) {
	return a.query(`
		SELECT id, ts, username, avatar, body, direction
		FROM (
			SELECT * FROM messages ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`, limit)
}

// Before returns up to limit messages older than the given epoch-ms
// timestamp, ascending by time.
func (a *Archive) Before(ts int64, limit int) ([]domain.Message, error) {
	return a.query(`
		SELECT id, ts, username, avatar, body, direction
		FROM (
			SELECT * FROM messages WHERE ts < ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`, ts, limit)
}

// Count returns the number of archived messages.
func (a *Archive) Count() (int, error) {
	var n int
	if err := a.db.sql.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

func (a *Archive) query(q string, args ...any) ([]domain.Message, error) {
	rows, err := a.db.sql.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var direction int
		if err := rows.Scan(&m.ID, &m.Time, &m.From.Username, &m.From.Avatar, &m.Text, &direction); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Direction = domain.Direction(direction)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
