package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/minidoge/donation-tracker/internal/models"
)

const upsertTransactionSQL = `
INSERT INTO transactions
    (signature, from_account, to_account, token_amount, mint, timestamp, processed_at, is_simple_transfer)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (signature, from_account, to_account) DO UPDATE SET
    token_amount       = EXCLUDED.token_amount,
    mint               = EXCLUDED.mint,
    timestamp          = EXCLUDED.timestamp,
    processed_at       = EXCLUDED.processed_at,
    is_simple_transfer = EXCLUDED.is_simple_transfer`

// SaveTransactions upserts a batch of transfer records. Replaying an
// already-stored batch rewrites identical content, so the walker can safely
// re-persist after a partial failure. ProcessedAt is stamped here.
func (s *Store) SaveTransactions(ctx context.Context, records []models.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertTransactionSQL,
			r.Signature, r.FromAccount, r.ToAccount, r.TokenAmount,
			r.Mint, r.Timestamp, now, r.IsSimpleTransfer)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("transaction batch insert failed: %w", err)
	}
	return nil
}

// LatestSignature returns the signature of the newest stored transfer for
// the given mint, or "" when nothing is stored yet. This is the walker's
// resume cursor.
//
// The cursor is scoped by mint alone: every record for a mint comes from
// that token's walk, and for SPL tokens the monitored account is a token
// account while the stored from/to columns carry the legs' user wallets, so
// matching the monitored account against them would never hit.
func (s *Store) LatestSignature(ctx context.Context, mint string) (string, error) {
	var sig string
	err := s.db.QueryRow(ctx, `
		SELECT signature FROM transactions
		WHERE mint = $1
		ORDER BY timestamp DESC, signature DESC
		LIMIT 1`, mint).Scan(&sig)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest signature query failed: %w", err)
	}
	return sig, nil
}

// TransactionCount returns the number of stored transfer records for a mint.
func (s *Store) TransactionCount(ctx context.Context, mint string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE mint = $1", mint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("transaction count query failed: %w", err)
	}
	return count, nil
}

const qualifyingSQL = `
SELECT signature, from_account, to_account, token_amount, mint, timestamp, processed_at, is_simple_transfer
FROM transactions
WHERE is_simple_transfer
  AND to_account = $1
  AND token_amount >= $2`

// QualifyingTransactions returns every stored record satisfying the donation
// predicate, oldest first. Used by full aggregation passes.
func (s *Store) QualifyingTransactions(ctx context.Context) ([]models.TransferRecord, error) {
	rows, err := s.db.Query(ctx,
		qualifyingSQL+" ORDER BY timestamp ASC, signature ASC",
		s.receivingAccount, s.minDonation)
	if err != nil {
		return nil, fmt.Errorf("qualifying transactions query failed: %w", err)
	}
	return scanTransferRecords(rows)
}

// QualifyingTransactionsSince returns qualifying records strictly newer than
// sinceUnix, oldest first. Used by incremental aggregation passes.
func (s *Store) QualifyingTransactionsSince(ctx context.Context, sinceUnix int64) ([]models.TransferRecord, error) {
	rows, err := s.db.Query(ctx,
		qualifyingSQL+" AND timestamp > $3 ORDER BY timestamp ASC, signature ASC",
		s.receivingAccount, s.minDonation, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("new transactions query failed: %w", err)
	}
	return scanTransferRecords(rows)
}

func scanTransferRecords(rows pgx.Rows) ([]models.TransferRecord, error) {
	defer rows.Close()

	var records []models.TransferRecord
	for rows.Next() {
		var r models.TransferRecord
		if err := rows.Scan(&r.Signature, &r.FromAccount, &r.ToAccount, &r.TokenAmount,
			&r.Mint, &r.Timestamp, &r.ProcessedAt, &r.IsSimpleTransfer); err != nil {
			return nil, fmt.Errorf("transaction row scan failed: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction rows failed: %w", err)
	}
	return records, nil
}
