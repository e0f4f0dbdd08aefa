package models

import "time"

// TransferRecord is one normalized transfer leg extracted from a raw
// transaction. Records are immutable once written; ProcessedAt is set at
// write time, never taken from the source.
type TransferRecord struct {
	Signature        string    `json:"signature"`
	FromAccount      string    `json:"from_account"`
	ToAccount        string    `json:"to_account"`
	TokenAmount      float64   `json:"token_amount"`
	Mint             string    `json:"mint"`
	Timestamp        int64     `json:"timestamp"`
	ProcessedAt      time.Time `json:"processed_at"`
	IsSimpleTransfer bool      `json:"is_simple_transfer"`
}

// QualifiesAsDonation reports whether the record contributes to the donation
// aggregate: a simple transfer into the receiving account at or above the
// minimum amount.
func (r TransferRecord) QualifiesAsDonation(receivingAccount string, minAmount float64) bool {
	return r.IsSimpleTransfer &&
		r.ToAccount == receivingAccount &&
		r.TokenAmount >= minAmount
}

// Donation is the per-sender aggregate: a running fold over every qualifying
// TransferRecord from that sender. It is a derived cache, fully recomputable
// from the transactions table.
type Donation struct {
	FromAccount            string             `json:"from_account"`
	TokenAmounts           map[string]float64 `json:"token_amounts"`
	FirstDonationTime      int64              `json:"first_donation_time"`
	LastDonationTime       int64              `json:"last_donation_time"`
	LastProcessedSignature string             `json:"last_processed_signature"`
	DonationCount          int64              `json:"donation_count"`
}

// DonationPage is one page of donations sorted by first donation time
// descending, newest donors first.
type DonationPage struct {
	Donations  []Donation `json:"donations"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}
