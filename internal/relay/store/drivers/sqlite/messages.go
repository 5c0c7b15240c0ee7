package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
)

type messagesRepo struct {
	db dbtx
}

const messageColumns = `id, sender_id, receiver_id, content, message_type, service_id, created_at, is_read, read_at`

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		m       domain.Message
		typ     string
		service sql.NullString
		readAt  sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &typ, &service, &m.Timestamp, &m.IsRead, &readAt); err != nil {
		return domain.Message{}, err
	}
	m.Type = domain.MessageType(typ)
	m.ServiceID = service.String
	m.Timestamp = m.Timestamp.UTC()
	m.ReadAt = timePtr(readAt)
	return m, nil
}

func (r *messagesRepo) query(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messagesRepo) CreateMessage(ctx context.Context, m domain.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, string(m.Type), nullString(m.ServiceID),
		m.Timestamp.UTC(), m.IsRead, nullTime(m.ReadAt),
	)
	return mapConstraint(err)
}

func (r *messagesRepo) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return domain.Message{}, mapNotFound(err)
	}
	return m, nil
}

func (r *messagesRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Message ids are monotonic ULIDs minted at the send timestamp, so ordering
// by id is ordering by time with ties broken in send order.

func (r *messagesRepo) Conversation(ctx context.Context, a, b, serviceID string) ([]domain.Message, error) {
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE ((sender_id = ?1 AND receiver_id = ?2) OR (sender_id = ?2 AND receiver_id = ?1))
		  AND (?3 = '' OR service_id = ?3)
		ORDER BY id`, a, b, serviceID)
}

func (r *messagesRepo) Unread(ctx context.Context, userID string) ([]domain.Message, error) {
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE receiver_id = ? AND is_read = 0
		ORDER BY id`, userID)
}
