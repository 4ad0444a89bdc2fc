package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const requestColumns = `id, kind, sender_id, receiver_id, status, sender_message,
	requested_at, responded_at, cooldown_until, conversation_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var r Request
	var kind, requestedAt string
	var message, respondedAt, cooldownUntil, conversationID sql.NullString
	err := row.Scan(&r.ID, &kind, &r.SenderID, &r.ReceiverID, &r.Status, &message,
		&requestedAt, &respondedAt, &cooldownUntil, &conversationID)
	if err == sql.ErrNoRows {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	r.Kind = RequestKind(kind)
	r.SenderMessage = message.String
	r.ConversationID = conversationID.String
	if r.RequestedAt, err = parseTime(requestedAt); err != nil {
		return Request{}, fmt.Errorf("parsing requested_at: %w", err)
	}
	if r.RespondedAt, err = parseNullTime(respondedAt); err != nil {
		return Request{}, fmt.Errorf("parsing responded_at: %w", err)
	}
	if r.CooldownUntil, err = parseNullTime(cooldownUntil); err != nil {
		return Request{}, fmt.Errorf("parsing cooldown_until: %w", err)
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// CreateRequest inserts a pending request unless the ordered pair already has
// an active one. Refusals whose cooldown has expired are retired first, so a
// fresh record is created rather than the old one being reused. The partial
// unique index on active rows is the final arbiter under concurrency.
func (s *Store) CreateRequest(r Request) error {
	now := formatTime(r.RequestedAt)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning request transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE pair_requests SET active = 0
		WHERE kind = ? AND sender_id = ? AND receiver_id = ? AND active = 1
		  AND status IN ('rejected', 'declined')
		  AND (cooldown_until IS NULL OR cooldown_until <= ?)`,
		string(r.Kind), r.SenderID, r.ReceiverID, now,
	); err != nil {
		return fmt.Errorf("retiring expired requests: %w", err)
	}

	existing, err := scanRequest(tx.QueryRow(`SELECT `+requestColumns+` FROM pair_requests
		WHERE kind = ? AND sender_id = ? AND receiver_id = ? AND active = 1`,
		string(r.Kind), r.SenderID, r.ReceiverID,
	))
	if err == nil {
		return &ActiveRequestError{Existing: existing}
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("checking active request: %w", err)
	}

	var message sql.NullString
	if r.SenderMessage != "" {
		message = sql.NullString{String: r.SenderMessage, Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO pair_requests (id, kind, sender_id, receiver_id, status, sender_message, requested_at, active)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, 1)`,
		r.ID, string(r.Kind), r.SenderID, r.ReceiverID, message, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting request: %w", ErrActiveRequest)
	}
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}

	return tx.Commit()
}

// RespondRequest applies a pending → terminal transition. The update is
// guarded on status = 'pending', so of two racing responses exactly one
// succeeds; the other gets a *NotPendingError carrying the winner's result.
func (s *Store) RespondRequest(r Response) (Request, error) {
	// Accepted rows keep blocking; refusals only block while cooling down.
	active := 1
	if r.Status != StatusAccepted && r.CooldownUntil == nil {
		active = 0
	}

	res, err := s.db.Exec(`
		UPDATE pair_requests SET status = ?, responded_at = ?, cooldown_until = ?, active = ?
		WHERE id = ? AND kind = ? AND receiver_id = ? AND status = 'pending'`,
		r.Status, formatTime(r.RespondedAt), formatNullTime(r.CooldownUntil), active,
		r.ID, string(r.Kind), r.ResponderID,
	)
	if err != nil {
		return Request{}, fmt.Errorf("updating request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Request{}, fmt.Errorf("checking updated request rows: %w", err)
	}

	current, err := s.GetRequest(r.Kind, r.ID)
	if err != nil {
		return Request{}, err
	}
	if n == 1 {
		return current, nil
	}
	if current.ReceiverID != r.ResponderID {
		return Request{}, ErrNotReceiver
	}
	return Request{}, &NotPendingError{Current: current}
}

func (s *Store) GetRequest(kind RequestKind, id string) (Request, error) {
	return scanRequest(s.db.QueryRow(`SELECT `+requestColumns+` FROM pair_requests WHERE id = ? AND kind = ?`,
		id, string(kind)))
}

// FindBlockingRequest returns the request that would make a new request from
// sender to receiver fail at time now, or ErrNotFound.
func (s *Store) FindBlockingRequest(kind RequestKind, senderID, receiverID string, now time.Time) (Request, error) {
	return scanRequest(s.db.QueryRow(`SELECT `+requestColumns+` FROM pair_requests
		WHERE kind = ? AND sender_id = ? AND receiver_id = ? AND active = 1
		  AND NOT (status IN ('rejected', 'declined') AND (cooldown_until IS NULL OR cooldown_until <= ?))`,
		string(kind), senderID, receiverID, formatTime(now),
	))
}

// HasAccepted reports whether an accepted request exists from sender to receiver.
func (s *Store) HasAccepted(kind RequestKind, senderID, receiverID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pair_requests
		WHERE kind = ? AND sender_id = ? AND receiver_id = ? AND status = 'accepted'`,
		string(kind), senderID, receiverID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AcceptedBothWays reports whether accepted requests exist in both
// directions between a and b, read in a single statement.
func (s *Store) AcceptedBothWays(kind RequestKind, a, b string) (bool, error) {
	var forward, backward int
	err := s.db.QueryRow(`SELECT
		COALESCE(SUM(CASE WHEN sender_id = ? AND receiver_id = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN sender_id = ? AND receiver_id = ? THEN 1 ELSE 0 END), 0)
		FROM pair_requests WHERE kind = ? AND status = 'accepted'`,
		a, b, b, a, string(kind),
	).Scan(&forward, &backward)
	if err != nil {
		return false, err
	}
	return forward > 0 && backward > 0, nil
}

func (s *Store) ListReceivedRequests(kind RequestKind, userID string, limit, offset int) ([]Request, error) {
	return s.listRequests(`receiver_id`, kind, userID, limit, offset)
}

func (s *Store) ListSentRequests(kind RequestKind, userID string, limit, offset int) ([]Request, error) {
	return s.listRequests(`sender_id`, kind, userID, limit, offset)
}

func (s *Store) listRequests(column string, kind RequestKind, userID string, limit, offset int) ([]Request, error) {
	rows, err := s.db.Query(`SELECT `+requestColumns+` FROM pair_requests
		WHERE kind = ? AND `+column+` = ?
		ORDER BY requested_at DESC, id ASC LIMIT ? OFFSET ?`,
		string(kind), userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SetRequestConversation links an accepted request to its conversation. An
// already-linked request is left untouched.
func (s *Store) SetRequestConversation(kind RequestKind, id, conversationID string) error {
	_, err := s.db.Exec(`UPDATE pair_requests SET conversation_id = ?
		WHERE id = ? AND kind = ? AND status = 'accepted' AND conversation_id IS NULL`,
		conversationID, id, string(kind),
	)
	return err
}

// --- Conversations ---

// GetOrCreateDirectConversation returns the direct conversation between a
// and b, creating it when absent. The pair is unordered. created reports
// whether this call inserted the row.
func (s *Store) GetOrCreateDirectConversation(a, b string, now time.Time) (Conversation, bool, error) {
	if a == b {
		return Conversation{}, false, fmt.Errorf("conversation requires two distinct users")
	}
	low, high := a, b
	if low > high {
		low, high = high, low
	}

	c, err := s.getDirectConversation(low, high)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, false, err
	}

	res, err := s.db.Exec(`
		INSERT INTO conversations (id, kind, user_low, user_high, created_at)
		VALUES (?, 'direct', ?, ?, ?)
		ON CONFLICT(kind, user_low, user_high) DO NOTHING`,
		uuid.New().String(), low, high, formatTime(now),
	)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("inserting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Conversation{}, false, err
	}

	c, err = s.getDirectConversation(low, high)
	if err != nil {
		return Conversation{}, false, err
	}
	return c, n == 1, nil
}

func (s *Store) getDirectConversation(low, high string) (Conversation, error) {
	var c Conversation
	var createdAt string
	err := s.db.QueryRow(`SELECT id, kind, user_low, user_high, created_at FROM conversations
		WHERE kind = 'direct' AND user_low = ? AND user_high = ?`, low, high,
	).Scan(&c.ID, &c.Kind, &c.UserLow, &c.UserHigh, &createdAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

// CountConversations returns the number of direct conversations involving userID.
func (s *Store) CountConversations(userID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE user_low = ? OR user_high = ?`,
		userID, userID).Scan(&n)
	return n, err
}
