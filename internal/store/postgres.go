package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the full DDL for the tracker's two tables. The transactions
// table keys on (signature, from_account, to_account): a transaction with
// several native legs keeps every leg, and replays upsert in place.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
    signature          TEXT NOT NULL,
    from_account       TEXT NOT NULL,
    to_account         TEXT NOT NULL,
    token_amount       DOUBLE PRECISION NOT NULL,
    mint               TEXT NOT NULL,
    timestamp          BIGINT NOT NULL,
    processed_at       TIMESTAMPTZ NOT NULL,
    is_simple_transfer BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (signature, from_account, to_account)
);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_mint ON transactions (mint);

CREATE TABLE IF NOT EXISTS donations (
    from_account             TEXT PRIMARY KEY,
    token_amounts            JSONB NOT NULL,
    first_donation_time      BIGINT NOT NULL,
    last_donation_time       BIGINT NOT NULL,
    last_processed_signature TEXT NOT NULL,
    donation_count           BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_donations_first_time ON donations (first_donation_time DESC);
CREATE INDEX IF NOT EXISTS idx_donations_last_time ON donations (last_donation_time DESC);
`

// Store is the persistence layer for both the raw transfer ledger and the
// derived donation aggregates. Donation qualification (receiving account and
// minimum amount) is fixed at construction so every query applies the same
// predicate.
type Store struct {
	db               *pgxpool.Pool
	receivingAccount string
	minDonation      float64
}

func NewStore(connString, receivingAccount string, minDonation float64) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{
		db:               pool,
		receivingAccount: receivingAccount,
		minDonation:      minDonation,
	}, nil
}

// InitSchema creates the tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("schema init failed: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.db.Close()
}
