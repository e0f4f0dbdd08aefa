// Package parser turns raw Helius transactions into normalized transfer
// records for one monitored token account.
package parser

import (
	"github.com/minidoge/donation-tracker/internal/config"
	"github.com/minidoge/donation-tracker/internal/helius"
	"github.com/minidoge/donation-tracker/internal/models"
)

const (
	typeTransfer        = "TRANSFER"
	sourceSystemProgram = "SYSTEM_PROGRAM"
	sourceTokenProgram  = "SOLANA_PROGRAM_LIBRARY"
	lamportsPerSol      = 1e9
)

// IsSimpleTransfer classifies a transaction as a plain one-leg transfer.
// Anything else — multiple legs, mixed instructions, other sources — is
// compound. The flag is computed once from the whole transaction and shared
// by every record the transaction yields.
func IsSimpleTransfer(tx helius.Transaction) bool {
	if tx.Type != typeTransfer {
		return false
	}
	switch tx.Source {
	case sourceSystemProgram:
		return len(tx.NativeTransfers) == 1
	case sourceTokenProgram:
		return len(tx.TokenTransfers) == 1
	}
	return false
}

// ParseTransaction extracts the transfer legs of one transaction that touch
// the monitored token account. Transactions with a transaction-level error,
// a missing signature, or a missing timestamp are skipped entirely; that is
// not an error, they simply yield no records.
func ParseTransaction(tx helius.Transaction, token config.Token) []models.TransferRecord {
	if tx.Failed() || tx.Signature == "" || tx.Timestamp == 0 {
		return nil
	}

	if token.Native() {
		return parseNative(tx, token)
	}
	return parseToken(tx, token)
}

// ParseTransactions flattens a page of transactions into transfer records.
func ParseTransactions(txs []helius.Transaction, token config.Token) []models.TransferRecord {
	var records []models.TransferRecord
	for _, tx := range txs {
		records = append(records, ParseTransaction(tx, token)...)
	}
	return records
}

// parseNative keeps every SOL leg that touches the monitored account, in
// either direction, normalizing lamports to SOL. One transaction can touch
// the account in several legs, so it can yield several records sharing the
// same signature.
func parseNative(tx helius.Transaction, token config.Token) []models.TransferRecord {
	simple := IsSimpleTransfer(tx)

	var records []models.TransferRecord
	for _, leg := range tx.NativeTransfers {
		if leg.FromUserAccount != token.Account && leg.ToUserAccount != token.Account {
			continue
		}
		records = append(records, models.TransferRecord{
			Signature:        tx.Signature,
			FromAccount:      leg.FromUserAccount,
			ToAccount:        leg.ToUserAccount,
			TokenAmount:      float64(leg.Amount) / lamportsPerSol,
			Mint:             config.NativeMint,
			Timestamp:        tx.Timestamp,
			IsSimpleTransfer: simple,
		})
	}
	return records
}

// parseToken keeps SPL legs whose source or destination token account is the
// monitored account and whose amount is strictly positive. The source
// already reports token amounts in display units.
func parseToken(tx helius.Transaction, token config.Token) []models.TransferRecord {
	simple := IsSimpleTransfer(tx)

	var records []models.TransferRecord
	for _, leg := range tx.TokenTransfers {
		if leg.FromTokenAccount != token.Account && leg.ToTokenAccount != token.Account {
			continue
		}
		if leg.TokenAmount <= 0 {
			continue
		}
		records = append(records, models.TransferRecord{
			Signature:        tx.Signature,
			FromAccount:      leg.FromUserAccount,
			ToAccount:        leg.ToUserAccount,
			TokenAmount:      leg.TokenAmount,
			Mint:             leg.Mint,
			Timestamp:        tx.Timestamp,
			IsSimpleTransfer: simple,
		})
	}
	return records
}
