// Package tracker drives the per-account sync walk: it pages backwards
// through an account's remote history until it reaches the locally known
// cursor, persisting each page as it goes.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minidoge/donation-tracker/internal/config"
	"github.com/minidoge/donation-tracker/internal/helius"
	"github.com/minidoge/donation-tracker/internal/models"
	"github.com/minidoge/donation-tracker/internal/parser"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_sync_pages_total",
		Help: "Remote history pages fetched per token",
	}, []string{"token"})

	recordsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_sync_records_saved_total",
		Help: "Transfer records persisted per token",
	}, []string{"token"})

	syncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_sync_failures_total",
		Help: "Failed sync walks per token",
	}, []string{"token"})
)

// Fetcher fetches one page of raw transaction history, newest first.
type Fetcher interface {
	Transactions(ctx context.Context, address, before string, limit int) ([]helius.Transaction, error)
}

// LedgerStore is the slice of the persistence layer the walker needs.
type LedgerStore interface {
	SaveTransactions(ctx context.Context, records []models.TransferRecord) error
	LatestSignature(ctx context.Context, mint string) (string, error)
	TransactionCount(ctx context.Context, mint string) (int64, error)
}

type Tracker struct {
	fetcher   Fetcher
	store     LedgerStore
	tokens    []config.Token
	pageSize  int
	pageDelay time.Duration
}

func New(fetcher Fetcher, store LedgerStore, tokens []config.Token, pageSize int, pageDelay time.Duration) *Tracker {
	return &Tracker{
		fetcher:   fetcher,
		store:     store,
		tokens:    tokens,
		pageSize:  pageSize,
		pageDelay: pageDelay,
	}
}

// SyncAccount walks one token's remote history from the head back to the
// locally stored cursor, persisting every page. Pages arrive newest-first;
// the returned records are sorted ascending by timestamp. A nil, nil return
// means the account was already up to date.
//
// Each page is persisted before the next is fetched, so a failure mid-walk
// leaves the already-persisted pages committed; the next walk re-derives the
// cursor and fetches only the remaining gap.
func (t *Tracker) SyncAccount(ctx context.Context, token config.Token) ([]models.TransferRecord, error) {
	boundary, err := t.store.LatestSignature(ctx, token.Mint)
	if err != nil {
		return nil, fmt.Errorf("cursor lookup for %s: %w", token.Symbol, err)
	}

	// Frequent polling almost always finds nothing new: probe the remote
	// head first and bail out before walking any pages.
	if boundary != "" {
		head, err := t.fetcher.Transactions(ctx, token.Account, "", 1)
		if err != nil {
			return nil, fmt.Errorf("head probe for %s: %w", token.Symbol, err)
		}
		if len(head) == 0 || head[0].Signature == boundary {
			return nil, nil
		}
	}

	var (
		collected []models.TransferRecord
		before    string
	)

	for {
		page, err := t.fetcher.Transactions(ctx, token.Account, before, t.pageSize)
		if err != nil {
			return nil, fmt.Errorf("page fetch for %s: %w", token.Symbol, err)
		}
		pagesFetched.WithLabelValues(token.Symbol).Inc()

		if len(page) == 0 {
			break
		}

		hasMore := len(page) >= t.pageSize

		// When the boundary signature shows up inside the page, everything
		// from it onwards is already stored: keep only the strictly newer
		// prefix and stop walking.
		if boundary != "" {
			for i, tx := range page {
				if tx.Signature == boundary {
					page = page[:i]
					hasMore = false
					break
				}
			}
			if len(page) == 0 {
				break
			}
		}

		records := parser.ParseTransactions(page, token)
		if len(records) > 0 {
			if err := t.store.SaveTransactions(ctx, records); err != nil {
				return nil, fmt.Errorf("page persist for %s: %w", token.Symbol, err)
			}
			recordsSaved.WithLabelValues(token.Symbol).Add(float64(len(records)))
			collected = append(collected, records...)
		}

		if !hasMore {
			break
		}

		// Advance past the oldest raw transaction even when the page parsed
		// to zero records; irrelevant pages must not stall the walk.
		before = page[len(page)-1].Signature

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.pageDelay):
		}
	}

	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].Timestamp != collected[j].Timestamp {
			return collected[i].Timestamp < collected[j].Timestamp
		}
		return collected[i].Signature < collected[j].Signature
	})
	return collected, nil
}

// CheckAll syncs every configured token sequentially. A failing token does
// not stop the others; the joined error reports every failure.
func (t *Tracker) CheckAll(ctx context.Context) error {
	var errs []error
	for _, token := range t.tokens {
		count, err := t.store.TransactionCount(ctx, token.Mint)
		if err != nil {
			log.Printf("tracker: %s count lookup failed: %v", token.Symbol, err)
		}

		records, err := t.SyncAccount(ctx, token)
		if err != nil {
			syncFailures.WithLabelValues(token.Symbol).Inc()
			log.Printf("tracker: %s sync failed: %v", token.Symbol, err)
			errs = append(errs, fmt.Errorf("%s: %w", token.Symbol, err))
			continue
		}

		if len(records) == 0 {
			log.Printf("tracker: %s up to date (%d stored)", token.Symbol, count)
			continue
		}

		log.Printf("tracker: %s synced %d new records (%s to %s)",
			token.Symbol, len(records),
			time.Unix(records[0].Timestamp, 0).UTC().Format(time.RFC3339),
			time.Unix(records[len(records)-1].Timestamp, 0).UTC().Format(time.RFC3339))
	}
	return errors.Join(errs...)
}
