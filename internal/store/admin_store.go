package store

import (
	"context"

	"marketplace/internal/market"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, account market.Owner) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM admins WHERE account = $1)
	`, string(account))
	return exists, err
}

func (s *AdminStore) Grant(ctx context.Context, tx Execer, account market.Owner) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (account)
		VALUES ($1)
		ON CONFLICT (account) DO NOTHING
	`, string(account))
	return err
}

func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM admins`)
	return count > 0, err
}
