package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/minidoge/donation-tracker/internal/models"
)

const upsertDonationSQL = `
INSERT INTO donations
    (from_account, token_amounts, first_donation_time, last_donation_time, last_processed_signature, donation_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (from_account) DO UPDATE SET
    token_amounts            = EXCLUDED.token_amounts,
    first_donation_time      = EXCLUDED.first_donation_time,
    last_donation_time       = EXCLUDED.last_donation_time,
    last_processed_signature = EXCLUDED.last_processed_signature,
    donation_count           = EXCLUDED.donation_count`

// SaveDonations upserts the aggregates keyed by sender. The write is a plain
// overwrite: the aggregation engine always hands over the complete new state
// for each sender it touched.
func (s *Store) SaveDonations(ctx context.Context, donations []models.Donation) error {
	if len(donations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range donations {
		amounts, err := json.Marshal(d.TokenAmounts)
		if err != nil {
			return fmt.Errorf("token amounts marshal failed for %s: %w", d.FromAccount, err)
		}
		batch.Queue(upsertDonationSQL,
			d.FromAccount, amounts, d.FirstDonationTime, d.LastDonationTime,
			d.LastProcessedSignature, d.DonationCount)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("donation batch insert failed: %w", err)
	}
	return nil
}

// AllDonations returns every stored aggregate. The incremental aggregation
// pass seeds its working set from this.
func (s *Store) AllDonations(ctx context.Context) ([]models.Donation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_account, token_amounts, first_donation_time, last_donation_time,
		       last_processed_signature, donation_count
		FROM donations`)
	if err != nil {
		return nil, fmt.Errorf("donations query failed: %w", err)
	}
	return scanDonations(rows)
}

// MaxLastDonationTime returns the newest last_donation_time across all
// aggregates, or 0 when none exist. Records newer than this are the
// incremental pass's input.
func (s *Store) MaxLastDonationTime(ctx context.Context) (int64, error) {
	var maxTime int64
	err := s.db.QueryRow(ctx,
		"SELECT COALESCE(MAX(last_donation_time), 0) FROM donations").Scan(&maxTime)
	if err != nil {
		return 0, fmt.Errorf("max donation time query failed: %w", err)
	}
	return maxTime, nil
}

// DonationPage returns one page of aggregates sorted by first donation time
// descending, newest donors first. page starts at 1.
func (s *Store) DonationPage(ctx context.Context, page, pageSize int) (*models.DonationPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM donations").Scan(&total); err != nil {
		return nil, fmt.Errorf("donation count query failed: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := s.db.Query(ctx, `
		SELECT from_account, token_amounts, first_donation_time, last_donation_time,
		       last_processed_signature, donation_count
		FROM donations
		ORDER BY first_donation_time DESC, from_account ASC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("donation page query failed: %w", err)
	}

	donations, err := scanDonations(rows)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &models.DonationPage{
		Donations:  donations,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

var ErrNotFound = errors.New("not found")

// Donation returns the aggregate for one sender, or ErrNotFound when the
// sender never donated.
func (s *Store) Donation(ctx context.Context, fromAccount string) (*models.Donation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_account, token_amounts, first_donation_time, last_donation_time,
		       last_processed_signature, donation_count
		FROM donations
		WHERE from_account = $1`, fromAccount)
	if err != nil {
		return nil, fmt.Errorf("donation query failed: %w", err)
	}

	donations, err := scanDonations(rows)
	if err != nil {
		return nil, err
	}
	if len(donations) == 0 {
		return nil, ErrNotFound
	}
	return &donations[0], nil
}

func scanDonations(rows pgx.Rows) ([]models.Donation, error) {
	defer rows.Close()

	var donations []models.Donation
	for rows.Next() {
		var d models.Donation
		var amounts []byte
		if err := rows.Scan(&d.FromAccount, &amounts, &d.FirstDonationTime,
			&d.LastDonationTime, &d.LastProcessedSignature, &d.DonationCount); err != nil {
			return nil, fmt.Errorf("donation row scan failed: %w", err)
		}
		if err := json.Unmarshal(amounts, &d.TokenAmounts); err != nil {
			return nil, fmt.Errorf("token amounts unmarshal failed for %s: %w", d.FromAccount, err)
		}
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("donation rows failed: %w", err)
	}
	return donations, nil
}
