package helius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minidoge/donation-tracker/internal/config"
	"github.com/minidoge/donation-tracker/internal/retry"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_helius_fetches_total",
		Help: "Transaction page fetches against the Helius API",
	}, []string{"outcome"})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_helius_fetch_retries_total",
		Help: "Individual failed attempts inside the fetch retry loop",
	})
)

// RemoteError is a non-2xx response from the Helius API. It is retried the
// same as a transport failure up to the attempt budget.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("helius: unexpected status %d: %s", e.Status, e.Body)
}

// Client fetches transaction history pages for one account. It is purely
// functional from the caller's perspective: no state beyond the HTTP client.
type Client struct {
	endpoint string
	apiKey   string
	policy   retry.Policy
	http     *http.Client
}

func NewClient(endpoint, apiKey string, policy retry.Policy) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		policy:   policy,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Transactions fetches one page of transaction history for address, newest
// first. An empty before requests the most recent page; otherwise the page
// holds transactions strictly before that signature. limit is clamped to the
// API's page maximum.
func (c *Client) Transactions(ctx context.Context, address, before string, limit int) ([]Transaction, error) {
	if limit < 1 || limit > config.HeliusPageLimit {
		limit = config.HeliusPageLimit
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("helius: bad endpoint: %w", err)
	}
	u.Path += "/addresses/" + address + "/transactions"

	q := u.Query()
	q.Set("api-key", c.apiKey)
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	u.RawQuery = q.Encode()

	var page []Transaction
	attempt := 0
	err = c.policy.Do(ctx, func() error {
		attempt++
		page, err = c.fetch(ctx, u.String())
		if err != nil {
			fetchRetriesTotal.Inc()
			log.Printf("helius: fetch attempt %d/%d for %s failed: %v",
				attempt, c.policy.MaxAttempts, address, err)
		}
		return err
	})
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	fetchesTotal.WithLabelValues("ok").Inc()
	return page, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("helius: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helius: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	var page []Transaction
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("helius: decode response: %w", err)
	}
	return page, nil
}
