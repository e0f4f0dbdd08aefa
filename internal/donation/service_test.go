package donation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/minidoge/donation-tracker/internal/models"
)

const (
	receiving = "receiving-account"
	minAmount = 0.0001
)

var symbols = map[string]string{
	"sol-mint":  "SOL",
	"usdc-mint": "USDC",
}

func newTestService(store Store) *Service {
	return NewService(store, nil, symbols, receiving, minAmount)
}

func record(sig, from string, amount float64, mint string, ts int64) models.TransferRecord {
	return models.TransferRecord{
		Signature:        sig,
		FromAccount:      from,
		ToAccount:        receiving,
		TokenAmount:      amount,
		Mint:             mint,
		Timestamp:        ts,
		IsSimpleTransfer: true,
	}
}

func TestAggregateFoldsOneSender(t *testing.T) {
	s := newTestService(nil)

	records := []models.TransferRecord{
		record("sig1", "alice", 1.0, "sol-mint", 100),
		record("sig2", "alice", 2.0, "sol-mint", 200),
	}

	donations := s.Aggregate(records, nil)
	if len(donations) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(donations))
	}

	d := donations[0]
	if d.TokenAmounts["SOL"] != 3.0 {
		t.Errorf("expected SOL total 3.0, got %v", d.TokenAmounts["SOL"])
	}
	if d.FirstDonationTime != 100 || d.LastDonationTime != 200 {
		t.Errorf("expected time range [100,200], got [%d,%d]", d.FirstDonationTime, d.LastDonationTime)
	}
	if d.DonationCount != 2 {
		t.Errorf("expected count 2, got %d", d.DonationCount)
	}
	if d.LastProcessedSignature != "sig2" {
		t.Errorf("expected last signature sig2, got %s", d.LastProcessedSignature)
	}
}

func TestAggregateIncrementalEqualsFullFold(t *testing.T) {
	s := newTestService(nil)

	all := []models.TransferRecord{
		record("sig1", "alice", 1.0, "sol-mint", 100),
		record("sig2", "bob", 0.5, "usdc-mint", 150),
		record("sig3", "alice", 2.0, "sol-mint", 200),
		record("sig4", "bob", 0.25, "sol-mint", 250),
	}

	full := s.Aggregate(all, nil)

	firstBatch := s.Aggregate(all[:2], nil)
	incremental := s.Aggregate(all[2:], firstBatch)

	if !reflect.DeepEqual(full, incremental) {
		t.Errorf("incremental fold diverged from full fold:\nfull:        %+v\nincremental: %+v", full, incremental)
	}
}

func TestAggregateThresholdBoundary(t *testing.T) {
	s := newTestService(nil)

	records := []models.TransferRecord{
		record("at", "exact", minAmount, "sol-mint", 100),
		record("below", "short", minAmount/2, "sol-mint", 100),
	}

	donations := s.Aggregate(records, nil)
	if len(donations) != 1 {
		t.Fatalf("expected only the at-threshold record to qualify, got %d aggregates", len(donations))
	}
	if donations[0].FromAccount != "exact" {
		t.Errorf("expected sender 'exact', got %s", donations[0].FromAccount)
	}
}

func TestAggregateExcludesCompoundAndWrongRecipient(t *testing.T) {
	s := newTestService(nil)

	compound := record("c", "alice", 5.0, "sol-mint", 100)
	compound.IsSimpleTransfer = false

	elsewhere := record("e", "bob", 5.0, "sol-mint", 100)
	elsewhere.ToAccount = "someone-else"

	if donations := s.Aggregate([]models.TransferRecord{compound, elsewhere}, nil); len(donations) != 0 {
		t.Fatalf("expected no aggregates, got %d", len(donations))
	}
}

func TestAggregateUnknownMintKeepsRawMint(t *testing.T) {
	s := newTestService(nil)

	donations := s.Aggregate([]models.TransferRecord{
		record("sig", "alice", 7.0, "mystery-mint", 100),
	}, nil)
	if len(donations) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(donations))
	}
	if donations[0].TokenAmounts["mystery-mint"] != 7.0 {
		t.Errorf("unknown mint must key by the raw mint, got %v", donations[0].TokenAmounts)
	}
}

func TestAggregateDoesNotMutateExisting(t *testing.T) {
	s := newTestService(nil)

	existing := []models.Donation{{
		FromAccount:       "alice",
		TokenAmounts:      map[string]float64{"SOL": 1.0},
		FirstDonationTime: 100,
		LastDonationTime:  100,
		DonationCount:     1,
	}}

	s.Aggregate([]models.TransferRecord{record("sig", "alice", 2.0, "sol-mint", 200)}, existing)

	if existing[0].TokenAmounts["SOL"] != 1.0 {
		t.Errorf("input aggregate was mutated: %v", existing[0].TokenAmounts)
	}
}

func TestAggregateSortsByFirstDonationTime(t *testing.T) {
	s := newTestService(nil)

	donations := s.Aggregate([]models.TransferRecord{
		record("s1", "late", 1.0, "sol-mint", 300),
		record("s2", "early", 1.0, "sol-mint", 100),
	}, nil)
	if len(donations) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(donations))
	}
	if donations[0].FromAccount != "early" || donations[1].FromAccount != "late" {
		t.Errorf("expected ascending first-donation order, got %s then %s",
			donations[0].FromAccount, donations[1].FromAccount)
	}
}

// fakeStore drives Process without a database.
type fakeStore struct {
	all      []models.TransferRecord
	existing []models.Donation
	maxLast  int64

	saved     []models.Donation
	saveErr   error
	sinceSeen int64
}

func (f *fakeStore) QualifyingTransactions(ctx context.Context) ([]models.TransferRecord, error) {
	return f.all, nil
}

func (f *fakeStore) QualifyingTransactionsSince(ctx context.Context, since int64) ([]models.TransferRecord, error) {
	f.sinceSeen = since
	var out []models.TransferRecord
	for _, r := range f.all {
		if r.Timestamp > since {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) AllDonations(ctx context.Context) ([]models.Donation, error) {
	return f.existing, nil
}

func (f *fakeStore) MaxLastDonationTime(ctx context.Context) (int64, error) {
	return f.maxLast, nil
}

func (f *fakeStore) SaveDonations(ctx context.Context, donations []models.Donation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = donations
	return nil
}

func TestProcessFullPass(t *testing.T) {
	fs := &fakeStore{all: []models.TransferRecord{
		record("sig1", "alice", 1.0, "sol-mint", 100),
		record("sig2", "bob", 2.0, "sol-mint", 200),
	}}
	s := newTestService(fs)

	res, err := s.Process(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewRecords != 2 || res.TotalDonations != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(fs.saved) != 2 {
		t.Errorf("expected 2 aggregates saved, got %d", len(fs.saved))
	}
	if res.TimeRangeStart != 100 || res.TimeRangeEnd != 200 {
		t.Errorf("unexpected time range: %+v", res)
	}
}

func TestProcessIncrementalFoldsOnlyNewRecords(t *testing.T) {
	fs := &fakeStore{
		all: []models.TransferRecord{
			record("sig1", "alice", 1.0, "sol-mint", 100),
			record("sig2", "alice", 2.0, "sol-mint", 200),
		},
		existing: []models.Donation{{
			FromAccount:            "alice",
			TokenAmounts:           map[string]float64{"SOL": 1.0},
			FirstDonationTime:      100,
			LastDonationTime:       100,
			LastProcessedSignature: "sig1",
			DonationCount:          1,
		}},
		maxLast: 100,
	}
	s := newTestService(fs)

	res, err := s.Process(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.sinceSeen != 100 {
		t.Errorf("expected since=100, got %d", fs.sinceSeen)
	}
	if res.NewRecords != 1 {
		t.Errorf("expected 1 new record, got %d", res.NewRecords)
	}

	if len(fs.saved) != 1 {
		t.Fatalf("expected 1 aggregate saved, got %d", len(fs.saved))
	}
	d := fs.saved[0]
	if d.TokenAmounts["SOL"] != 3.0 || d.DonationCount != 2 {
		t.Errorf("incremental fold wrong: %+v", d)
	}
	if d.FirstDonationTime != 100 || d.LastDonationTime != 200 {
		t.Errorf("incremental time range wrong: %+v", d)
	}
}

func TestProcessIncrementalNoopWithoutNewRecords(t *testing.T) {
	fs := &fakeStore{
		all:     []models.TransferRecord{record("sig1", "alice", 1.0, "sol-mint", 100)},
		maxLast: 100,
	}
	s := newTestService(fs)

	res, err := s.Process(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewRecords != 0 {
		t.Errorf("expected noop, got %+v", res)
	}
	if fs.saved != nil {
		t.Error("noop pass must not write aggregates")
	}
}

func TestProcessSurfacesSaveError(t *testing.T) {
	boom := errors.New("db down")
	fs := &fakeStore{
		all:     []models.TransferRecord{record("sig1", "alice", 1.0, "sol-mint", 100)},
		saveErr: boom,
	}
	s := newTestService(fs)

	if _, err := s.Process(context.Background(), false); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped save error, got %v", err)
	}
}
