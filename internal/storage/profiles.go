package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Profiles ---

// SaveProfile stores the user's current structured profile, replacing any
// earlier submission. created_at survives replacement.
func (s *Store) SaveProfile(p ProfileRecord) error {
	now := p.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	validated := 0
	if p.Validated {
		validated = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, narrative_text, profile_json, confidence, validated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			narrative_text = excluded.narrative_text,
			profile_json = excluded.profile_json,
			confidence = excluded.confidence,
			validated = excluded.validated,
			updated_at = excluded.updated_at`,
		p.UserID, p.NarrativeText, p.ProfileJSON, p.Confidence, validated,
		formatTime(createdAt), formatTime(now),
	)
	return err
}

func (s *Store) GetProfile(userID string) (ProfileRecord, error) {
	var p ProfileRecord
	var validated int
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT user_id, narrative_text, profile_json, confidence, validated, created_at, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.NarrativeText, &p.ProfileJSON, &p.Confidence, &validated, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return ProfileRecord{}, ErrNotFound
	}
	if err != nil {
		return ProfileRecord{}, err
	}
	p.Validated = validated == 1
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return ProfileRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ProfileRecord{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// --- Notifications ---

// SaveNotification writes an inbox entry. Re-delivering the same ID is a no-op,
// which keeps job retries from duplicating entries.
func (s *Store) SaveNotification(n Notification) error {
	payload := n.PayloadJSON
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message, payload, formatTime(n.CreatedAt),
	)
	return err
}

func (s *Store) ListNotifications(recipientID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	query := `SELECT id, recipient_id, sender_id, type, title, message, payload_json, created_at, read_at
		FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.Query(query, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		var readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Message, &n.PayloadJSON, &createdAt, &readAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if n.ReadAt, err = parseNullTime(readAt); err != nil {
			return nil, fmt.Errorf("parsing read_at: %w", err)
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

func (s *Store) MarkNotificationRead(recipientID, id string) error {
	res, err := s.db.Exec(`UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND recipient_id = ?`,
		formatTime(time.Now()), id, recipientID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
