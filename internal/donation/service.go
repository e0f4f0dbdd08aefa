// Package donation folds qualifying transfer records into per-sender
// donation aggregates. The fold is commutative and associative, so a full
// recompute and any sequence of incremental passes over the same records
// produce identical aggregates.
package donation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minidoge/donation-tracker/internal/cache"
	"github.com/minidoge/donation-tracker/internal/models"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_donation_runs_total",
		Help: "Aggregation passes by mode and outcome",
	}, []string{"mode", "outcome"})

	recordsFolded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_donation_records_folded_total",
		Help: "Qualifying transfer records folded into aggregates",
	})
)

// Store is the slice of the persistence layer the aggregation engine needs.
type Store interface {
	QualifyingTransactions(ctx context.Context) ([]models.TransferRecord, error)
	QualifyingTransactionsSince(ctx context.Context, sinceUnix int64) ([]models.TransferRecord, error)
	AllDonations(ctx context.Context) ([]models.Donation, error)
	MaxLastDonationTime(ctx context.Context) (int64, error)
	SaveDonations(ctx context.Context, donations []models.Donation) error
}

// Result summarizes one aggregation pass.
type Result struct {
	NewRecords     int
	TotalDonations int
	TimeRangeStart int64
	TimeRangeEnd   int64
	Duration       time.Duration
}

// Service runs aggregation passes. A mutex serializes them: two concurrent
// full passes reading and writing the donations table would race.
type Service struct {
	store            Store
	cache            *cache.Cache
	symbols          map[string]string
	receivingAccount string
	minAmount        float64

	mu sync.Mutex
}

func NewService(store Store, c *cache.Cache, symbols map[string]string, receivingAccount string, minAmount float64) *Service {
	return &Service{
		store:            store,
		cache:            c,
		symbols:          symbols,
		receivingAccount: receivingAccount,
		minAmount:        minAmount,
	}
}

// Aggregate folds records into a working set seeded from existing. Records
// that do not satisfy the qualification predicate are skipped. The input
// aggregates are not mutated. The returned slice is sorted by first donation
// time ascending.
func (s *Service) Aggregate(records []models.TransferRecord, existing []models.Donation) []models.Donation {
	working := make(map[string]models.Donation, len(existing))
	for _, d := range existing {
		// Copy the amounts map so folding never writes through to the
		// caller's aggregates.
		amounts := make(map[string]float64, len(d.TokenAmounts))
		for k, v := range d.TokenAmounts {
			amounts[k] = v
		}
		d.TokenAmounts = amounts
		working[d.FromAccount] = d
	}

	for _, r := range records {
		if !r.QualifiesAsDonation(s.receivingAccount, s.minAmount) {
			continue
		}

		symbol, ok := s.symbols[r.Mint]
		if !ok {
			symbol = r.Mint
		}

		d, ok := working[r.FromAccount]
		if !ok {
			d = models.Donation{
				FromAccount:       r.FromAccount,
				TokenAmounts:      make(map[string]float64),
				FirstDonationTime: r.Timestamp,
				LastDonationTime:  r.Timestamp,
			}
		}

		d.TokenAmounts[symbol] += r.TokenAmount
		if r.Timestamp < d.FirstDonationTime {
			d.FirstDonationTime = r.Timestamp
		}
		if r.Timestamp > d.LastDonationTime {
			d.LastDonationTime = r.Timestamp
		}
		d.LastProcessedSignature = r.Signature
		d.DonationCount++

		working[r.FromAccount] = d
	}

	donations := make([]models.Donation, 0, len(working))
	for _, d := range working {
		donations = append(donations, d)
	}
	sort.Slice(donations, func(i, j int) bool {
		if donations[i].FirstDonationTime != donations[j].FirstDonationTime {
			return donations[i].FirstDonationTime < donations[j].FirstDonationTime
		}
		return donations[i].FromAccount < donations[j].FromAccount
	})
	return donations
}

// Process runs one aggregation pass. Incremental passes fold only records
// strictly newer than the newest aggregate's last donation time into the
// stored aggregates; full passes recompute everything from the ledger.
func (s *Service) Process(ctx context.Context, incremental bool) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := "full"
	if incremental {
		mode = "incremental"
	}
	start := time.Now()

	records, existing, err := s.load(ctx, incremental)
	if err != nil {
		runsTotal.WithLabelValues(mode, "error").Inc()
		return nil, err
	}

	if len(records) == 0 {
		log.Printf("donation: %s pass found no new records", mode)
		runsTotal.WithLabelValues(mode, "noop").Inc()
		return &Result{Duration: time.Since(start)}, nil
	}

	donations := s.Aggregate(records, existing)

	if err := s.store.SaveDonations(ctx, donations); err != nil {
		runsTotal.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("donation save failed: %w", err)
	}
	s.cache.InvalidateDonations(ctx)

	recordsFolded.Add(float64(len(records)))
	runsTotal.WithLabelValues(mode, "ok").Inc()

	res := &Result{
		NewRecords:     len(records),
		TotalDonations: len(donations),
		TimeRangeStart: records[0].Timestamp,
		TimeRangeEnd:   records[len(records)-1].Timestamp,
		Duration:       time.Since(start),
	}
	log.Printf("donation: %s pass folded %d records into %d aggregates in %s",
		mode, res.NewRecords, res.TotalDonations, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (s *Service) load(ctx context.Context, incremental bool) ([]models.TransferRecord, []models.Donation, error) {
	if !incremental {
		records, err := s.store.QualifyingTransactions(ctx)
		if err != nil {
			return nil, nil, err
		}
		return records, nil, nil
	}

	since, err := s.store.MaxLastDonationTime(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.store.QualifyingTransactionsSince(ctx, since)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	existing, err := s.store.AllDonations(ctx)
	if err != nil {
		return nil, nil, err
	}
	return records, existing, nil
}
