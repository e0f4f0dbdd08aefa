package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/minidoge/donation-tracker/internal/models"
	"github.com/minidoge/donation-tracker/internal/store"
)

type fakeStore struct {
	page      *models.DonationPage
	donation  *models.Donation
	count     int64
	signature string

	gotPage, gotPageSize int
}

func (f *fakeStore) DonationPage(ctx context.Context, page, pageSize int) (*models.DonationPage, error) {
	f.gotPage, f.gotPageSize = page, pageSize
	return f.page, nil
}

func (f *fakeStore) Donation(ctx context.Context, fromAccount string) (*models.Donation, error) {
	if f.donation == nil || f.donation.FromAccount != fromAccount {
		return nil, store.ErrNotFound
	}
	return f.donation, nil
}

func (f *fakeStore) TransactionCount(ctx context.Context, mint string) (int64, error) {
	return f.count, nil
}

func (f *fakeStore) LatestSignature(ctx context.Context, mint string) (string, error) {
	return f.signature, nil
}

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/donations", h.GetDonationsHandler).Methods("GET")
	r.HandleFunc("/api/v1/donations/{account}", h.GetDonationHandler).Methods("GET")
	r.HandleFunc("/api/v1/transactions/count", h.GetTransactionCountHandler).Methods("GET")
	r.HandleFunc("/api/v1/signatures/latest", h.GetLatestSignatureHandler).Methods("GET")
	return r
}

func TestGetDonationsDefaultsAndClampsPaging(t *testing.T) {
	fs := &fakeStore{page: &models.DonationPage{Page: 1, PageSize: 10, Donations: []models.Donation{}}}
	router := newRouter(NewHandler(fs, nil))

	req := httptest.NewRequest("GET", "/api/v1/donations?page=0&page_size=9999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fs.gotPage != 1 || fs.gotPageSize != defaultPageSize {
		t.Errorf("expected clamped paging (1, %d), got (%d, %d)",
			defaultPageSize, fs.gotPage, fs.gotPageSize)
	}
}

func TestGetDonationsReturnsPage(t *testing.T) {
	fs := &fakeStore{page: &models.DonationPage{
		Donations: []models.Donation{{
			FromAccount:   "alice",
			TokenAmounts:  map[string]float64{"SOL": 3},
			DonationCount: 2,
		}},
		Total: 1, Page: 1, PageSize: 10, TotalPages: 1,
	}}
	router := newRouter(NewHandler(fs, nil))

	req := httptest.NewRequest("GET", "/api/v1/donations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var got models.DonationPage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if got.Total != 1 || len(got.Donations) != 1 || got.Donations[0].FromAccount != "alice" {
		t.Errorf("unexpected page: %+v", got)
	}
}

func TestGetDonationNotFound(t *testing.T) {
	router := newRouter(NewHandler(&fakeStore{}, nil))

	req := httptest.NewRequest("GET", "/api/v1/donations/nobody", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetTransactionCountRequiresMint(t *testing.T) {
	router := newRouter(NewHandler(&fakeStore{count: 42}, nil))

	req := httptest.NewRequest("GET", "/api/v1/transactions/count", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without mint, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/transactions/count?mint=abc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["count"] != 42 {
		t.Errorf("expected count 42, got %v", got)
	}
}

func TestGetLatestSignature(t *testing.T) {
	router := newRouter(NewHandler(&fakeStore{signature: "sig-xyz"}, nil))

	req := httptest.NewRequest("GET", "/api/v1/signatures/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without mint, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/signatures/latest?mint=m", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]string
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["signature"] != "sig-xyz" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestGetLatestSignatureNotFound(t *testing.T) {
	router := newRouter(NewHandler(&fakeStore{}, nil))

	req := httptest.NewRequest("GET", "/api/v1/signatures/latest?mint=m", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty cursor, got %d", rec.Code)
	}
}
