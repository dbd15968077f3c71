package store

import (
	"context"
	"time"

	"marketplace/internal/market"
)

// AuditStore records admin actions: grants and allow-list or payment token changes.
type AuditStore struct {
	db DB
}

type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	Actor     string    `db:"actor" json:"actor"`
	Action    string    `db:"action" json:"action"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, id string, actor market.Owner, action, subject string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_audit_logs (id, actor, action, subject)
		VALUES ($1, $2, $3, $4)
	`, id, string(actor), action, subject)
	return err
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor, action, subject, created_at
		FROM admin_audit_logs
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
